package input

import (
	"sort"
	"sync"
)

// Flags is the aggregate modifier state attached to raw notifications. The
// class bits say "some shift is down"; the device bits say which side.
type Flags uint64

const (
	FlagLeftControl  Flags = 0x00000001
	FlagLeftShift    Flags = 0x00000002
	FlagRightShift   Flags = 0x00000004
	FlagLeftCommand  Flags = 0x00000008
	FlagRightCommand Flags = 0x00000010
	FlagLeftOption   Flags = 0x00000020
	FlagRightOption  Flags = 0x00000040
	FlagRightControl Flags = 0x00002000

	FlagCapsLock Flags = 0x00010000
	FlagShift    Flags = 0x00020000
	FlagControl  Flags = 0x00040000
	FlagOption   Flags = 0x00080000
	FlagCommand  Flags = 0x00100000
	FlagFunction Flags = 0x00800000
)

// FlagsFor returns the aggregate flags the OS would report with exactly the
// given keys held.
func FlagsFor(keys ...uint16) Flags {
	var f Flags
	for _, code := range keys {
		if k, ok := lookupModifier(code); ok {
			f |= k.class | k.side
		}
	}
	return f
}

// Change is one derived modifier key transition.
type Change struct {
	KeyCode uint16
	Down    bool
}

// ModifierTracker keeps the authoritative set of held modifier keys. The OS
// reports only aggregate flags on a modifier change, sometimes repeating the
// same state or dropping the side bits, so the tracker diffs each report
// against the last one and keeps its own per-key pressed set.
type ModifierTracker struct {
	mu      sync.Mutex
	pressed map[uint16]bool
	last    Flags
	primed  bool
}

func NewModifierTracker() *ModifierTracker {
	return &ModifierTracker{pressed: make(map[uint16]bool)}
}

// Snapshot replaces the tracked set with keys, typically read once from the
// hardware when capture starts. Non-modifier codes are ignored.
func (t *ModifierTracker) Snapshot(keys []uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pressed = make(map[uint16]bool)
	for _, code := range keys {
		if IsModifierKey(code) {
			t.pressed[code] = true
		}
	}
	t.last = FlagsFor(keys...)
	t.primed = true
}

// Apply folds one aggregate report into the pressed set and returns the key
// transitions it implies, releases before presses. A report identical to the
// previous one yields nothing. hint is the key code the OS attached to the
// report; it only decides the side when the report carries no side bits.
func (t *ModifierTracker) Apply(flags Flags, hint uint16) []Change {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.primed && flags == t.last {
		return nil
	}
	t.last = flags
	t.primed = true

	want := make(map[uint16]bool, len(modifierKeys))
	for i := 0; i < len(modifierKeys); i++ {
		k := modifierKeys[i]
		on := flags&k.class != 0
		if k.side == 0 {
			want[k.code] = on
			continue
		}

		// Sided keys come in left/right pairs.
		right := modifierKeys[i+1]
		i++
		if !on {
			continue
		}
		leftOn, rightOn := flags&k.side != 0, flags&right.side != 0
		if !leftOn && !rightOn {
			// Class without side: keep whatever is already held, else
			// trust the hint, else assume the left key.
			leftOn, rightOn = t.pressed[k.code], t.pressed[right.code]
			if !leftOn && !rightOn {
				if hint == right.code {
					rightOn = true
				} else {
					leftOn = true
				}
			}
		}
		want[k.code] = leftOn
		want[right.code] = rightOn
	}

	var ups, downs []Change
	for _, k := range modifierKeys {
		switch {
		case t.pressed[k.code] && !want[k.code]:
			delete(t.pressed, k.code)
			ups = append(ups, Change{KeyCode: k.code, Down: false})
		case !t.pressed[k.code] && want[k.code]:
			t.pressed[k.code] = true
			downs = append(downs, Change{KeyCode: k.code, Down: true})
		}
	}
	return append(ups, downs...)
}

// Modifiers returns the wire modifier bits of the held keys.
func (t *ModifierTracker) Modifiers() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var mods uint32
	for code := range t.pressed {
		if k, ok := lookupModifier(code); ok {
			mods |= k.wire
		}
	}
	return mods
}

func (t *ModifierTracker) IsDown(code uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pressed[code]
}

// Pressed lists the held key codes in ascending order.
func (t *ModifierTracker) Pressed() []uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]uint16, 0, len(t.pressed))
	for code := range t.pressed {
		keys = append(keys, code)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Clear forgets every held key and the last report.
func (t *ModifierTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pressed = make(map[uint16]bool)
	t.last = 0
	t.primed = false
}
