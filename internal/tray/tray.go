// Package tray provides a system tray indicator using getlantern/systray.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"softkm/internal/connection"
	"softkm/internal/input"
	"softkm/internal/network"
)

// MenuItem represents a menu item
type MenuItem struct {
	ID       int
	Title    string
	Disabled bool
	Callback func()
	item     *systray.MenuItem
}

// Tray manages the system tray icon and menu
type Tray struct {
	mu      sync.Mutex
	items   []*MenuItem
	ready   bool
	title   string
	tooltip string

	statusID     int
	connectID    int
	disconnectID int

	onExit func()
	quitCh chan struct{}
}

// Actions are the menu callbacks.
type Actions struct {
	Connect    func()
	Disconnect func()
	Quit       func()
}

// New creates the tray menu: a status line, Connect, Disconnect and Quit.
func New(actions Actions) *Tray {
	t := &Tray{
		title:  "softKM",
		quitCh: make(chan struct{}),
	}
	t.statusID = t.AddMenuItem("Disconnected", nil)
	t.items[t.statusID].Disabled = true
	t.AddSeparator()
	t.connectID = t.AddMenuItem("Connect", actions.Connect)
	t.disconnectID = t.AddMenuItem("Disconnect", actions.Disconnect)
	t.AddSeparator()
	t.AddMenuItem("Quit", func() {
		if actions.Quit != nil {
			actions.Quit()
		}
		t.Stop()
	})

	t.onExit = func() {
		close(t.quitCh)
	}
	return t
}

// AddMenuItem adds a menu item to the tray
func (t *Tray) AddMenuItem(title string, callback func()) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := len(t.items)
	t.items = append(t.items, &MenuItem{
		ID:       id,
		Title:    title,
		Callback: callback,
	})
	return id
}

// AddSeparator adds a separator to the menu
func (t *Tray) AddSeparator() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, nil) // nil indicates separator
}

// SetStatus reflects a connection snapshot in the title, tooltip and menu.
func (t *Tray) SetStatus(snap connection.Snapshot) {
	title, tooltip := Label(snap)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.title = title
	t.tooltip = tooltip
	t.items[t.statusID].Title = tooltip
	t.items[t.connectID].Disabled = snap.State == network.StatusConnected
	t.items[t.disconnectID].Disabled = snap.State == network.StatusDisconnected
	if t.ready {
		t.applyLocked()
	}
}

// Label is the tray title and tooltip for a snapshot.
func Label(snap connection.Snapshot) (title, tooltip string) {
	switch snap.State {
	case network.StatusConnected:
		title = "softKM ●"
		tooltip = fmt.Sprintf("Connected to %s:%d", snap.Host, snap.Port)
		if snap.Mode == input.ModeCapturing {
			title = "softKM ▶"
			tooltip += " (controlling peer)"
		}
	case network.StatusConnecting:
		title = "softKM …"
		tooltip = fmt.Sprintf("Connecting to %s:%d", snap.Host, snap.Port)
	case network.StatusError:
		title = "softKM !"
		tooltip = "Error: " + snap.Message
	default:
		title = "softKM"
		tooltip = "Disconnected"
	}
	return title, tooltip
}

func (t *Tray) applyLocked() {
	systray.SetTitle(t.title)
	systray.SetTooltip(t.tooltip)
	for _, mi := range t.items {
		if mi == nil || mi.item == nil {
			continue
		}
		mi.item.SetTitle(mi.Title)
		if mi.Disabled {
			mi.item.Disable()
		} else {
			mi.item.Enable()
		}
	}
}

// Run starts the tray event loop (blocks)
func (t *Tray) Run() {
	systray.Run(t.setupMenu, t.onExit)
}

// setupMenu is called when systray is ready
func (t *Tray) setupMenu() {
	systray.SetIcon(getIcon())

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, menuItem := range t.items {
		if menuItem == nil {
			systray.AddSeparator()
			continue
		}
		menuItem.item = systray.AddMenuItem(menuItem.Title, "")

		if menuItem.Callback != nil {
			go func(mi *MenuItem) {
				for {
					select {
					case <-mi.item.ClickedCh:
						mi.Callback()
					case <-t.quitCh:
						return
					}
				}
			}(menuItem)
		}
	}
	t.ready = true
	t.applyLocked()
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

// getIcon returns a placeholder icon (valid 16x16 ICO)
func getIcon() []byte {
	icon := make([]byte, 1118)
	// ICO header
	copy(icon[0:6], []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00})
	// Icon directory: 16x16, 32bpp, 1096 bytes at offset 22
	copy(icon[6:22], []byte{
		0x10, 0x10, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00,
		0x48, 0x04, 0x00, 0x00,
		0x16, 0x00, 0x00, 0x00,
	})
	// BITMAPINFOHEADER, height doubled for the mask
	copy(icon[22:62], []byte{
		0x28, 0x00, 0x00, 0x00,
		0x10, 0x00, 0x00, 0x00,
		0x20, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x20, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x04, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	})
	return icon
}
