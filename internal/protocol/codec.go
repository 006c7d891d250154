package protocol

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	// Magic is "SK" read as a little-endian uint16.
	Magic   uint16 = 0x534B
	Version uint8  = 0x01

	// HeaderSize: magic(2) + version(1) + type(1) + length(4)
	HeaderSize = 8

	// MaxTextLen is the largest KeyDown text that fits the 1-byte length prefix.
	MaxTextLen = 255

	// MaxPayloadSize bounds a frame's declared length. A larger value can only
	// come from a corrupted stream.
	MaxPayloadSize = 64 * 1024
)

var (
	ErrBadMagic     = errors.New("protocol: bad magic")
	ErrBadLength    = errors.New("protocol: payload length out of range")
	ErrShortPayload = errors.New("protocol: payload too short")
	ErrUnknownType  = errors.New("protocol: unknown event type")
)

// Wire format per type (payload only, all little-endian):
//
//	KeyDown       (0x01): keyCode u32 + modifiers u32 + textLen u8 + text
//	KeyUp         (0x02): keyCode u32 + modifiers u32                       = 8 bytes
//	MouseMove     (0x03): x f32 + y f32 + relative u8 + modifiers u32       = 13 bytes
//	MouseDown     (0x04): buttons u32 + x f32 + y f32 + mods u32 + clicks u32 = 20 bytes
//	MouseUp       (0x05): buttons u32 + x f32 + y f32 + mods u32            = 16 bytes
//	MouseWheel    (0x06): dx f32 + dy f32 + modifiers u32                   = 12 bytes
//	ControlSwitch (0x10): direction u8 + yFromBottom f32                    = 5 bytes
//	ScreenInfo    (0x11): width f32 + height f32                            = 8 bytes
//	SettingsSync  (0x12): dwellSeconds f32                                  = 4 bytes
//	TeamMonitor, Heartbeat, HeartbeatAck: empty

// Encode serializes ev into a complete frame.
func Encode(ev Event) []byte {
	return AppendFrame(make([]byte, 0, HeaderSize+payloadSize(ev)), ev)
}

// AppendFrame appends the frame for ev to dst and returns the extended slice.
func AppendFrame(dst []byte, ev Event) []byte {
	start := len(dst)
	dst = binary.LittleEndian.AppendUint16(dst, Magic)
	dst = append(dst, Version, uint8(ev.Type()))
	dst = binary.LittleEndian.AppendUint32(dst, 0)
	dst = appendPayload(dst, ev)
	binary.LittleEndian.PutUint32(dst[start+4:start+8], uint32(len(dst)-start-HeaderSize))
	return dst
}

func payloadSize(ev Event) int {
	switch e := ev.(type) {
	case KeyDown:
		return 9 + len(clampText(e.Text))
	case KeyUp:
		return 8
	case MouseMove:
		return 13
	case MouseDown:
		return 20
	case MouseUp:
		return 16
	case MouseWheel:
		return 12
	case ControlSwitch:
		return 5
	case ScreenInfo:
		return 8
	case SettingsSync:
		return 4
	}
	return 0
}

func appendPayload(dst []byte, ev Event) []byte {
	le := binary.LittleEndian
	switch e := ev.(type) {
	case KeyDown:
		text := clampText(e.Text)
		dst = le.AppendUint32(dst, e.KeyCode)
		dst = le.AppendUint32(dst, e.Modifiers)
		dst = append(dst, uint8(len(text)))
		dst = append(dst, text...)
	case KeyUp:
		dst = le.AppendUint32(dst, e.KeyCode)
		dst = le.AppendUint32(dst, e.Modifiers)
	case MouseMove:
		dst = appendFloat(dst, e.X)
		dst = appendFloat(dst, e.Y)
		dst = append(dst, boolByte(e.Relative))
		dst = le.AppendUint32(dst, e.Modifiers)
	case MouseDown:
		dst = le.AppendUint32(dst, e.Buttons)
		dst = appendFloat(dst, e.X)
		dst = appendFloat(dst, e.Y)
		dst = le.AppendUint32(dst, e.Modifiers)
		dst = le.AppendUint32(dst, e.ClickCount)
	case MouseUp:
		dst = le.AppendUint32(dst, e.Buttons)
		dst = appendFloat(dst, e.X)
		dst = appendFloat(dst, e.Y)
		dst = le.AppendUint32(dst, e.Modifiers)
	case MouseWheel:
		dst = appendFloat(dst, e.DeltaX)
		dst = appendFloat(dst, e.DeltaY)
		dst = le.AppendUint32(dst, e.Modifiers)
	case ControlSwitch:
		// 0 = to remote, 1 = to local
		dst = append(dst, boolByte(!e.ToRemote))
		dst = appendFloat(dst, e.YFromBottom)
	case ScreenInfo:
		dst = appendFloat(dst, e.Width)
		dst = appendFloat(dst, e.Height)
	case SettingsSync:
		dst = appendFloat(dst, e.DwellSeconds)
	case TeamMonitorRequest, Heartbeat, HeartbeatAck:
		// no payload
	}
	return dst
}

// DecodePayload rebuilds the event of type t from its payload bytes. Bytes past
// the fixed layout are ignored.
func DecodePayload(t EventType, p []byte) (Event, error) {
	le := binary.LittleEndian
	need := func(n int) error {
		if len(p) < n {
			return errors.Wrapf(ErrShortPayload, "%s: have %d bytes, need %d", t, len(p), n)
		}
		return nil
	}

	switch t {
	case TypeKeyDown:
		if err := need(9); err != nil {
			return nil, err
		}
		n := int(p[8])
		if err := need(9 + n); err != nil {
			return nil, err
		}
		return KeyDown{
			KeyCode:   le.Uint32(p[0:4]),
			Modifiers: le.Uint32(p[4:8]),
			Text:      string(p[9 : 9+n]),
		}, nil
	case TypeKeyUp:
		if err := need(8); err != nil {
			return nil, err
		}
		return KeyUp{KeyCode: le.Uint32(p[0:4]), Modifiers: le.Uint32(p[4:8])}, nil
	case TypeMouseMove:
		if err := need(13); err != nil {
			return nil, err
		}
		return MouseMove{
			X:         readFloat(p[0:4]),
			Y:         readFloat(p[4:8]),
			Relative:  p[8] != 0,
			Modifiers: le.Uint32(p[9:13]),
		}, nil
	case TypeMouseDown:
		if err := need(20); err != nil {
			return nil, err
		}
		return MouseDown{
			Buttons:    le.Uint32(p[0:4]),
			X:          readFloat(p[4:8]),
			Y:          readFloat(p[8:12]),
			Modifiers:  le.Uint32(p[12:16]),
			ClickCount: le.Uint32(p[16:20]),
		}, nil
	case TypeMouseUp:
		if err := need(16); err != nil {
			return nil, err
		}
		return MouseUp{
			Buttons:   le.Uint32(p[0:4]),
			X:         readFloat(p[4:8]),
			Y:         readFloat(p[8:12]),
			Modifiers: le.Uint32(p[12:16]),
		}, nil
	case TypeMouseWheel:
		if err := need(12); err != nil {
			return nil, err
		}
		return MouseWheel{
			DeltaX:    readFloat(p[0:4]),
			DeltaY:    readFloat(p[4:8]),
			Modifiers: le.Uint32(p[8:12]),
		}, nil
	case TypeControlSwitch:
		if err := need(1); err != nil {
			return nil, err
		}
		ev := ControlSwitch{ToRemote: p[0] == 0}
		// Older peers send the direction byte alone.
		if len(p) >= 5 {
			ev.YFromBottom = readFloat(p[1:5])
		}
		return ev, nil
	case TypeScreenInfo:
		if err := need(8); err != nil {
			return nil, err
		}
		return ScreenInfo{Width: readFloat(p[0:4]), Height: readFloat(p[4:8])}, nil
	case TypeSettingsSync:
		if err := need(4); err != nil {
			return nil, err
		}
		return SettingsSync{DwellSeconds: readFloat(p[0:4])}, nil
	case TypeTeamMonitor:
		return TeamMonitorRequest{}, nil
	case TypeHeartbeat:
		return Heartbeat{}, nil
	case TypeHeartbeatAck:
		return HeartbeatAck{}, nil
	}
	return nil, errors.Wrapf(ErrUnknownType, "type %s", t)
}

// Decoder reassembles frames from a byte stream delivered in arbitrary chunks.
// Bytes accumulate until a whole frame is present. On a magic mismatch the
// entire buffer is discarded; there is no attempt to scan for the next header,
// so a genuine mid-stream desync is only cured by reconnecting.
type Decoder struct {
	buf []byte
}

// Write appends stream bytes. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Next returns the next complete event. It returns (nil, nil) when more bytes
// are needed. A non-nil error reports a dropped frame or a discarded buffer;
// the caller keeps calling Next until it returns (nil, nil).
func (d *Decoder) Next() (Event, error) {
	if len(d.buf) < HeaderSize {
		return nil, nil
	}

	le := binary.LittleEndian
	if magic := le.Uint16(d.buf[0:2]); magic != Magic {
		d.Reset()
		return nil, errors.Wrapf(ErrBadMagic, "got 0x%04X", magic)
	}

	length := le.Uint32(d.buf[4:8])
	if length > MaxPayloadSize {
		d.Reset()
		return nil, errors.Wrapf(ErrBadLength, "declared %d bytes", length)
	}

	size := HeaderSize + int(length)
	if len(d.buf) < size {
		return nil, nil
	}

	t := EventType(d.buf[3])
	payload := d.buf[HeaderSize:size]
	ev, err := DecodePayload(t, payload)

	d.buf = d.buf[size:]
	if len(d.buf) == 0 {
		d.buf = d.buf[:0:0]
	}
	return ev, err
}

// Buffered reports how many bytes are waiting for the rest of their frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset drops all buffered bytes.
func (d *Decoder) Reset() {
	d.buf = nil
}

// clampText limits s to MaxTextLen bytes without splitting a UTF-8 sequence.
func clampText(s string) string {
	if len(s) <= MaxTextLen {
		return s
	}
	cut := MaxTextLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func appendFloat(dst []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
}

func readFloat(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
