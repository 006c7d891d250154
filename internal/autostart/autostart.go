// Package autostart starts the controller at login.
package autostart

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

const label = "com.softkm.controller"

const macLaunchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
{{- range .Args}}
        <string>{{.}}</string>
{{- end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`

const xdgDesktopEntry = `[Desktop Entry]
Type=Application
Name=softKM
Comment=Share keyboard and mouse with a peer
Exec={{join .Args " "}}
X-GNOME-Autostart-enabled=true
`

var templates = template.Must(template.Must(template.New("plist").Parse(macLaunchAgentPlist)).
	New("desktop").Funcs(template.FuncMap{"join": strings.Join}).Parse(xdgDesktopEntry))

// Overridable in tests.
var (
	goos        = runtime.GOOS
	userHomeDir = os.UserHomeDir
)

// entryPath is where the login entry lives for this platform.
func entryPath() (path, tmpl string, err error) {
	home, err := userHomeDir()
	if err != nil {
		return "", "", errors.Wrap(err, "locate home directory")
	}
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", label+".plist"), "plist", nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return filepath.Join(home, ".config", "autostart", "softkm.desktop"), "desktop", nil
	}
	return "", "", errors.Errorf("autostart is not supported on %s", goos)
}

// Enable writes a login entry that runs the current executable with args.
func Enable(args ...string) error {
	path, tmpl, err := entryPath()
	if err != nil {
		return err
	}
	execPath, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "failed to get executable path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create autostart directory")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	data := struct {
		Label string
		Args  []string
	}{label, append([]string{execPath}, args...)}
	return errors.Wrapf(templates.ExecuteTemplate(f, tmpl, data), "write %s", path)
}

// Disable removes the login entry. Removing a missing entry is not an error.
func Disable() error {
	path, _, err := entryPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", path)
	}
	return nil
}

// IsEnabled checks if auto-start is enabled
func IsEnabled() bool {
	path, _, err := entryPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
