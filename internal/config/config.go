// Package config provides configuration management for softkm.
package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"softkm/internal/arrangement"
	"softkm/internal/edge"
)

// Config represents the application configuration
type Config struct {
	Connection  ConnectionConfig        `json:"connection" yaml:"connection" structs:"connection"`
	Edge        EdgeConfig              `json:"edge" yaml:"edge" structs:"edge"`
	Arrangement arrangement.Arrangement `json:"arrangement" yaml:"arrangement" structs:"arrangement"`
	Hotkeys     HotkeysConfig           `json:"hotkeys" yaml:"hotkeys" structs:"hotkeys"`
	Status      StatusConfig            `json:"status" yaml:"status" structs:"status"`
}

// ConnectionConfig is where the peer runs.
type ConnectionConfig struct {
	Host string `json:"host" yaml:"host" structs:"host"`
	Port int    `json:"port" yaml:"port" structs:"port"`

	// UseTLS wraps the connection in TLS without verifying the certificate
	UseTLS bool `json:"use_tls" yaml:"use_tls" structs:"use_tls"`
}

// EdgeConfig controls when the cursor crosses to the peer.
type EdgeConfig struct {
	// SwitchEdge is used when the arrangement does not touch any edge
	SwitchEdge arrangement.Edge `json:"switch_edge" yaml:"switch_edge" structs:"switch_edge"`

	// DwellSeconds is how long the cursor must rest at the edge
	DwellSeconds float64 `json:"dwell_seconds" yaml:"dwell_seconds" structs:"dwell_seconds"`

	// ThresholdPixels is how close to the edge counts as at the edge
	ThresholdPixels float64 `json:"threshold_pixels" yaml:"threshold_pixels" structs:"threshold_pixels"`
}

// HotkeysConfig holds chord strings such as "Ctrl+Cmd+Delete".
type HotkeysConfig struct {
	TeamMonitor string `json:"team_monitor" yaml:"team_monitor" structs:"team_monitor"`
}

// StatusConfig controls the local status server.
type StatusConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" structs:"enabled"`
	Addr    string `json:"addr" yaml:"addr" structs:"addr"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Host: "127.0.0.1",
			Port: 31337,
		},
		Edge: EdgeConfig{
			SwitchEdge:      arrangement.EdgeRight,
			DwellSeconds:    0.3,
			ThresholdPixels: 5,
		},
		Arrangement: arrangement.Default(),
		Hotkeys: HotkeysConfig{
			TeamMonitor: "Ctrl+Cmd+Delete",
		},
		Status: StatusConfig{
			Enabled: true,
			Addr:    "127.0.0.1:31338",
		},
	}
}

// Dwell is the dwell time as a duration.
func (c *Config) Dwell() time.Duration {
	return time.Duration(c.Edge.DwellSeconds * float64(time.Second))
}

// EdgeSettings is the view of c the edge detector reads on each check.
func (c *Config) EdgeSettings() edge.Settings {
	return edge.Settings{
		Edge:        c.Edge.SwitchEdge,
		Threshold:   c.Edge.ThresholdPixels,
		Dwell:       c.Dwell(),
		Arrangement: c.Arrangement,
	}
}

// validate replaces out-of-range values with their defaults and returns one
// warning per replaced value.
func (c *Config) validate() []string {
	def := DefaultConfig()
	var warnings []string

	if c.Connection.Port < 1 || c.Connection.Port > 65535 {
		warnings = append(warnings, "connection.port out of range")
		c.Connection.Port = def.Connection.Port
	}
	if strings.TrimSpace(c.Connection.Host) == "" {
		warnings = append(warnings, "connection.host is empty")
		c.Connection.Host = def.Connection.Host
	}
	if c.Edge.DwellSeconds < 0 {
		warnings = append(warnings, "edge.dwell_seconds is negative")
		c.Edge.DwellSeconds = def.Edge.DwellSeconds
	}
	if c.Edge.ThresholdPixels < 1 {
		warnings = append(warnings, "edge.threshold_pixels is below 1")
		c.Edge.ThresholdPixels = def.Edge.ThresholdPixels
	}
	if e, err := arrangement.ParseEdge(string(c.Edge.SwitchEdge)); err != nil {
		warnings = append(warnings, "edge.switch_edge is not a screen edge")
		c.Edge.SwitchEdge = def.Edge.SwitchEdge
	} else {
		c.Edge.SwitchEdge = e
	}
	if c.Arrangement.Local.Empty() || c.Arrangement.Remote.Empty() {
		warnings = append(warnings, "arrangement has an empty rectangle")
		c.Arrangement = def.Arrangement
	}
	return warnings
}

// overriddenSwitchEdge returns the arrangement's connected edge when it
// differs from edge.switch_edge. The connected edge wins whenever the screens
// touch.
func (c *Config) overriddenSwitchEdge() (arrangement.Edge, bool) {
	connected := c.Arrangement.ConnectedEdge()
	if connected == arrangement.EdgeNone || connected == c.Edge.SwitchEdge {
		return arrangement.EdgeNone, false
	}
	return connected, true
}

// checkConfig validates cfg in place and logs what it changed or ignores.
func checkConfig(cfg *Config) {
	for _, w := range cfg.validate() {
		log.Printf("Config: Warning: %s, using default", w)
	}
	if e, ok := cfg.overriddenSwitchEdge(); ok {
		log.Printf("Config: Warning: edge.switch_edge %q is ignored, the arrangement places the peer on the %s edge",
			cfg.Edge.SwitchEdge, e)
	}
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	callbacks  []func(Config)
}

// NewManager creates a configuration manager for the default per-user path
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(configPath), nil
}

// NewManagerAt creates a configuration manager for an explicit file. The
// extension selects the format: .yaml and .yml are YAML, anything else JSON.
func NewManagerAt(path string) *Manager {
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "locate home directory")
		}
		configDir = filepath.Join(home, "Library", "Application Support", "softkm")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", errors.Wrap(err, "locate home directory")
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "softkm")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "locate home directory")
		}
		configDir = filepath.Join(home, ".config", "softkm")
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Path is the file the manager reads and writes.
func (m *Manager) Path() string {
	return m.configPath
}

func (m *Manager) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(m.configPath))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the configuration from disk. A missing file leaves the defaults
// in place.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		log.Printf("Config: No configuration at %s, using defaults", m.configPath)
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read %s", m.configPath)
	}

	cfg := DefaultConfig()
	if m.isYAML() {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return errors.Wrapf(err, "parse %s", m.configPath)
	}
	checkConfig(cfg)

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	m.changed()
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var data []byte
	var err error
	if m.isYAML() {
		data, err = yaml.Marshal(m.config)
	} else {
		data, err = json.MarshalIndent(m.config, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "encode configuration")
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	log.Printf("Config: Saving configuration to %s (%d bytes)", m.configPath, len(data))
	return errors.Wrapf(os.WriteFile(m.configPath, data, 0644), "write %s", m.configPath)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := *m.config
	return &cfg
}

// Set validates and replaces the configuration, then runs the change
// callbacks.
func (m *Manager) Set(config *Config) {
	cfg := *config
	checkConfig(&cfg)

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	m.changed()
}

// Update applies fn to a copy of the configuration and stores the result.
func (m *Manager) Update(fn func(*Config)) {
	cfg := m.Get()
	fn(cfg)
	m.Set(cfg)
}

// RepositionRemote moves the remote screen's origin in arrangement space,
// snapping it to a nearby edge of the local screen.
func (m *Manager) RepositionRemote(x, y float64) arrangement.Arrangement {
	var a arrangement.Arrangement
	m.Update(func(c *Config) {
		c.Arrangement.Reposition(x, y)
		a = c.Arrangement
	})
	log.Printf("Config: Remote screen moved to %s, connected edge %s", a.Remote, a.ConnectedEdge())
	return a
}

// RegisterChangeCallback registers a function to be called with the new
// configuration whenever it changes
func (m *Manager) RegisterChangeCallback(fn func(Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

func (m *Manager) changed() {
	m.mu.Lock()
	cfg := *m.config
	callbacks := append(([]func(Config))(nil), m.callbacks...)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}
