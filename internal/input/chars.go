package input

import "softkm/internal/protocol"

// deadKeyMods are the modifier bits that select a dead-key table entry.
const deadKeyMods = protocol.ModShift | protocol.ModOption | protocol.ModControl | protocol.ModCommand

type deadKey struct {
	code uint16
	mods uint32
}

// Combinations some layouts swallow as dead keys, so neither the event nor the
// layout translation yields their accent.
var deadKeys = map[deadKey]string{
	{KeyE, protocol.ModOption}:     "´",
	{KeyU, protocol.ModOption}:     "¨",
	{KeyI, protocol.ModOption}:     "ˆ",
	{KeyN, protocol.ModOption}:     "˜",
	{KeyGrave, protocol.ModOption}: "`",
}

// ResolveText finds the text of a key-down. It tries the characters the OS
// attached, then the layout translation, then the dead-key table. An empty
// result is normal for keys that produce no text.
func ResolveText(n Notification, mods uint32, tr Translator) string {
	if n.Characters != "" {
		return n.Characters
	}
	if tr != nil {
		if s := tr.TranslateKey(n.KeyCode, mods); s != "" {
			return s
		}
	}
	return deadKeys[deadKey{code: n.KeyCode, mods: mods & deadKeyMods}]
}
