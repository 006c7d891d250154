package input

import "softkm/internal/protocol"

// Virtual key codes of the capturing keyboard (ANSI layout positions).
const (
	KeyA            uint16 = 0x00
	KeyE            uint16 = 0x0E
	KeyU            uint16 = 0x20
	KeyI            uint16 = 0x22
	KeyN            uint16 = 0x2D
	KeyGrave        uint16 = 0x32
	KeyReturn       uint16 = 0x24
	KeyTab          uint16 = 0x30
	KeySpace        uint16 = 0x31
	KeyDelete       uint16 = 0x33
	KeyEscape       uint16 = 0x35

	KeyForwardDelete uint16 = 0x75

	KeyRightCommand uint16 = 0x36
	KeyCommand      uint16 = 0x37
	KeyShift        uint16 = 0x38
	KeyCapsLock     uint16 = 0x39
	KeyOption       uint16 = 0x3A
	KeyControl      uint16 = 0x3B
	KeyRightShift   uint16 = 0x3C
	KeyRightOption  uint16 = 0x3D
	KeyRightControl uint16 = 0x3E
	KeyFunction     uint16 = 0x3F
)

// modifierKey ties a modifier key code to its aggregate flag, its
// device-specific side flag (zero for keys without sides) and its wire bit.
type modifierKey struct {
	code  uint16
	class Flags
	side  Flags
	wire  uint32
}

// Left keys come first within a class; the tracker relies on that when the OS
// reports a class without a side.
var modifierKeys = []modifierKey{
	{KeyShift, FlagShift, FlagLeftShift, protocol.ModShift},
	{KeyRightShift, FlagShift, FlagRightShift, protocol.ModShift},
	{KeyControl, FlagControl, FlagLeftControl, protocol.ModControl},
	{KeyRightControl, FlagControl, FlagRightControl, protocol.ModControl},
	{KeyOption, FlagOption, FlagLeftOption, protocol.ModOption},
	{KeyRightOption, FlagOption, FlagRightOption, protocol.ModOption},
	{KeyCommand, FlagCommand, FlagLeftCommand, protocol.ModCommand},
	{KeyRightCommand, FlagCommand, FlagRightCommand, protocol.ModCommand},
	{KeyCapsLock, FlagCapsLock, 0, protocol.ModCapsLock},
	{KeyFunction, FlagFunction, 0, protocol.ModFunction},
}

func lookupModifier(code uint16) (modifierKey, bool) {
	for _, k := range modifierKeys {
		if k.code == code {
			return k, true
		}
	}
	return modifierKey{}, false
}

// IsModifierKey reports whether code is one of the tracked modifier keys.
func IsModifierKey(code uint16) bool {
	_, ok := lookupModifier(code)
	return ok
}

// ButtonMask maps a notification's button number to the wire button bit.
func ButtonMask(button int) uint32 {
	switch button {
	case 0:
		return protocol.ButtonPrimary
	case 1:
		return protocol.ButtonSecondary
	case 3:
		return protocol.Button4
	case 4:
		return protocol.Button5
	}
	return protocol.ButtonTertiary
}
