// Package hotkey parses chord strings such as "Ctrl+Cmd+Delete" and matches
// them against captured key events.
package hotkey

import (
	"log"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"softkm/internal/protocol"
)

// chordMods are the modifier bits a chord must match exactly. Caps lock is
// ignored.
const chordMods = protocol.ModShift | protocol.ModOption | protocol.ModControl | protocol.ModCommand | protocol.ModFunction

// Chord is a parsed hotkey: a set of modifiers plus one key.
type Chord struct {
	Modifiers uint32
	KeyCodes  []uint16
	original  string
}

// Parse reads a chord like "Ctrl+Cmd+Delete". Names are case-insensitive and
// exactly one non-modifier key is required.
func Parse(s string) (Chord, error) {
	c := Chord{original: s}
	for _, part := range strings.Split(strings.ToUpper(s), "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			return Chord{}, errors.Errorf("hotkey %q: empty part", s)
		}
		if bit, ok := modifierNames[part]; ok {
			c.Modifiers |= bit
			continue
		}
		codes, ok := keyNames[part]
		if !ok {
			return Chord{}, errors.Errorf("hotkey %q: unknown key %q", s, part)
		}
		if c.KeyCodes != nil {
			return Chord{}, errors.Errorf("hotkey %q: more than one key", s)
		}
		c.KeyCodes = codes
	}
	if c.KeyCodes == nil {
		return Chord{}, errors.Errorf("hotkey %q: no key", s)
	}
	return c, nil
}

// Matches reports whether keyCode pressed with the given wire modifiers
// triggers the chord.
func (c Chord) Matches(keyCode uint16, modifiers uint32) bool {
	if modifiers&chordMods != c.Modifiers {
		return false
	}
	for _, code := range c.KeyCodes {
		if code == keyCode {
			return true
		}
	}
	return false
}

func (c Chord) String() string {
	return c.original
}

// Manager holds registered chords and runs their callbacks.
type Manager struct {
	mu      sync.RWMutex
	hotkeys []*registeredHotkey
}

type registeredHotkey struct {
	chord    Chord
	callback func()
}

// NewManager creates an empty hotkey manager
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a chord string and its callback. An empty string registers
// nothing.
func (m *Manager) Register(hotkeyStr string, callback func()) error {
	if hotkeyStr == "" {
		return nil
	}
	chord, err := Parse(hotkeyStr)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = append(m.hotkeys, &registeredHotkey{chord: chord, callback: callback})
	return nil
}

// Clear removes all registered hotkeys
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = nil
}

// Match runs the callback of the first chord matching the key-down and
// reports whether one matched. The callback runs on the caller's goroutine,
// so it must be quick.
func (m *Manager) Match(keyCode uint16, modifiers uint32) bool {
	m.mu.RLock()
	var hit *registeredHotkey
	for _, hk := range m.hotkeys {
		if hk.chord.Matches(keyCode, modifiers) {
			hit = hk
			break
		}
	}
	m.mu.RUnlock()

	if hit == nil {
		return false
	}
	log.Printf("Hotkey: %s triggered", hit.chord)
	if hit.callback != nil {
		hit.callback()
	}
	return true
}
