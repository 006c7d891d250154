// Package input defines the contract with the raw OS input source: the
// notifications it delivers, the verdict the handler returns, and the cursor
// side effects the switch controller drives. It also owns modifier tracking
// and key text resolution, which both depend only on raw notifications.
package input

import (
	"softkm/internal/arrangement"
)

// Point is a screen position, top-left origin.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Mode is who currently receives local input.
type Mode int

const (
	// ModeMonitoring passes input through to this machine.
	ModeMonitoring Mode = iota
	// ModeCapturing suppresses input locally and forwards it to the peer.
	ModeCapturing
)

func (m Mode) String() string {
	if m == ModeCapturing {
		return "capturing"
	}
	return "monitoring"
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	*m = ModeMonitoring
	if string(b) == "capturing" {
		*m = ModeCapturing
	}
	return nil
}

// Kind identifies a raw notification.
type Kind string

const (
	KindMouseMove    Kind = "mouse_move" // includes drags
	KindMouseDown    Kind = "mouse_down"
	KindMouseUp      Kind = "mouse_up"
	KindScroll       Kind = "scroll"
	KindKeyDown      Kind = "key_down"
	KindKeyUp        Kind = "key_up"
	KindFlagsChanged Kind = "flags_changed"
	// KindTapDisabled is sent when the OS switched the capture off, usually
	// because a handler was too slow.
	KindTapDisabled Kind = "tap_disabled"
)

// Positional reports whether notifications of this kind carry a meaningful
// cursor location.
func (k Kind) Positional() bool {
	switch k {
	case KindMouseMove, KindMouseDown, KindMouseUp, KindScroll:
		return true
	}
	return false
}

// Notification is one raw input report.
type Notification struct {
	Kind     Kind  `json:"kind"`
	Location Point `json:"location"`

	// Device deltas of a pointer move.
	DeltaX float64 `json:"dx,omitempty"`
	DeltaY float64 `json:"dy,omitempty"`

	// Button is 0 for primary, 1 for secondary, 2 and up for the others.
	Button     int `json:"button,omitempty"`
	ClickCount int `json:"clicks,omitempty"`

	ScrollX float64 `json:"scroll_x,omitempty"`
	ScrollY float64 `json:"scroll_y,omitempty"`

	KeyCode uint16 `json:"keycode,omitempty"`
	// Flags is the aggregate modifier state the OS reported. It is only
	// trusted for diffing in FlagsChanged notifications.
	Flags Flags `json:"flags,omitempty"`
	// Characters is the text the OS attached to a key event, if any.
	Characters string `json:"chars,omitempty"`
}

// Disposition is the handler's verdict on a notification.
type Disposition int

const (
	PassThrough Disposition = iota
	Consume
)

func (d Disposition) String() string {
	if d == Consume {
		return "consume"
	}
	return "pass"
}

// Handler processes one notification on the capture's callback path. It must
// return quickly.
type Handler func(n Notification) Disposition

// Capture is the raw OS input source.
type Capture interface {
	// Start begins delivering notifications to h.
	Start(h Handler) error
	Stop() error
	// SetEnabled re-arms or pauses delivery without tearing the capture down.
	SetEnabled(enabled bool)
}

// Translator maps a key code and wire modifier bits to the text the active
// keyboard layout would produce.
type Translator interface {
	TranslateKey(keyCode uint16, modifiers uint32) string
}

// Sink performs the cursor side effects of switching.
type Sink interface {
	Translator

	// ScreenBounds is the local screen in screen coordinates.
	ScreenBounds() arrangement.Rect
	CursorPosition() Point
	WarpCursor(p Point)
	// SetCursorAssociated attaches or detaches the cursor from physical
	// mouse motion.
	SetCursorAssociated(associated bool)
	HideCursor()
	ShowCursor()
	// HeldModifierKeys lists the modifier key codes physically down right now.
	HeldModifierKeys() []uint16
}
