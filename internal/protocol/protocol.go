// Package protocol defines the input events exchanged with the peer and their
// binary frame encoding.
package protocol

import "fmt"

// EventType is the wire tag carried in every frame header.
type EventType uint8

const (
	TypeKeyDown       EventType = 0x01
	TypeKeyUp         EventType = 0x02
	TypeMouseMove     EventType = 0x03
	TypeMouseDown     EventType = 0x04
	TypeMouseUp       EventType = 0x05
	TypeMouseWheel    EventType = 0x06
	TypeControlSwitch EventType = 0x10
	TypeScreenInfo    EventType = 0x11
	TypeSettingsSync  EventType = 0x12
	TypeTeamMonitor   EventType = 0x13
	TypeHeartbeat     EventType = 0xF0
	TypeHeartbeatAck  EventType = 0xF1
)

var typeNames = map[EventType]string{
	TypeKeyDown:       "KEY_DOWN",
	TypeKeyUp:         "KEY_UP",
	TypeMouseMove:     "MOUSE_MOVE",
	TypeMouseDown:     "MOUSE_DOWN",
	TypeMouseUp:       "MOUSE_UP",
	TypeMouseWheel:    "MOUSE_WHEEL",
	TypeControlSwitch: "CONTROL_SWITCH",
	TypeScreenInfo:    "SCREEN_INFO",
	TypeSettingsSync:  "SETTINGS_SYNC",
	TypeTeamMonitor:   "TEAM_MONITOR",
	TypeHeartbeat:     "HEARTBEAT",
	TypeHeartbeatAck:  "HEARTBEAT_ACK",
}

func (t EventType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", uint8(t))
}

// Modifier bits carried in the modifiers field of input events.
const (
	ModShift    uint32 = 0x01
	ModOption   uint32 = 0x02
	ModControl  uint32 = 0x04
	ModFunction uint32 = 0x10
	ModCapsLock uint32 = 0x20
	ModCommand  uint32 = 0x40
)

// Mouse button bits.
const (
	ButtonPrimary   uint32 = 0x01
	ButtonSecondary uint32 = 0x02
	ButtonTertiary  uint32 = 0x04
	Button4         uint32 = 0x08
	Button5         uint32 = 0x10
)

// Event is one message of the protocol. Every concrete event maps to exactly
// one EventType.
type Event interface {
	Type() EventType
}

// KeyDown carries the resolved UTF-8 text of the key, which may be empty.
type KeyDown struct {
	KeyCode   uint32
	Modifiers uint32
	Text      string
}

type KeyUp struct {
	KeyCode   uint32
	Modifiers uint32
}

// MouseMove carries deltas when Relative is set, absolute coordinates otherwise.
type MouseMove struct {
	X         float32
	Y         float32
	Relative  bool
	Modifiers uint32
}

type MouseDown struct {
	Buttons    uint32
	X          float32
	Y          float32
	Modifiers  uint32
	ClickCount uint32
}

type MouseUp struct {
	Buttons   uint32
	X         float32
	Y         float32
	Modifiers uint32
}

type MouseWheel struct {
	DeltaX    float32
	DeltaY    float32
	Modifiers uint32
}

// ControlSwitch hands input focus to the peer (ToRemote) or back to this
// machine. YFromBottom is the handoff coordinate measured from the bottom of
// the sender's screen.
type ControlSwitch struct {
	ToRemote    bool
	YFromBottom float32
}

// ScreenInfo announces the sender's screen size in pixels.
type ScreenInfo struct {
	Width  float32
	Height float32
}

// SettingsSync shares the edge dwell time with the peer.
type SettingsSync struct {
	DwellSeconds float32
}

// TeamMonitorRequest asks the peer to open its team monitor.
type TeamMonitorRequest struct{}

type Heartbeat struct{}

type HeartbeatAck struct{}

func (KeyDown) Type() EventType            { return TypeKeyDown }
func (KeyUp) Type() EventType              { return TypeKeyUp }
func (MouseMove) Type() EventType          { return TypeMouseMove }
func (MouseDown) Type() EventType          { return TypeMouseDown }
func (MouseUp) Type() EventType            { return TypeMouseUp }
func (MouseWheel) Type() EventType         { return TypeMouseWheel }
func (ControlSwitch) Type() EventType      { return TypeControlSwitch }
func (ScreenInfo) Type() EventType         { return TypeScreenInfo }
func (SettingsSync) Type() EventType       { return TypeSettingsSync }
func (TeamMonitorRequest) Type() EventType { return TypeTeamMonitor }
func (Heartbeat) Type() EventType          { return TypeHeartbeat }
func (HeartbeatAck) Type() EventType       { return TypeHeartbeatAck }
