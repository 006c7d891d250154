package input

import (
	"sync"

	"softkm/internal/arrangement"
)

// VirtualScreen is a Sink with no OS behind it. It tracks what the cursor
// side effects would have done, for the replay backend and for tests.
type VirtualScreen struct {
	mu         sync.Mutex
	bounds     arrangement.Rect
	cursor     Point
	associated bool
	hidden     bool
	held       []uint16
	warps      int
	layout     map[uint16]string
}

func NewVirtualScreen(width, height float64) *VirtualScreen {
	return &VirtualScreen{
		bounds:     arrangement.Rect{Width: width, Height: height},
		cursor:     Point{X: width / 2, Y: height / 2},
		associated: true,
		layout:     make(map[uint16]string),
	}
}

func (v *VirtualScreen) ScreenBounds() arrangement.Rect {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bounds
}

func (v *VirtualScreen) CursorPosition() Point {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cursor
}

func (v *VirtualScreen) WarpCursor(p Point) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cursor = v.clamp(p)
	v.warps++
}

// MoveCursor is a physical pointer move. It is ignored while the cursor is
// detached from the mouse.
func (v *VirtualScreen) MoveCursor(p Point) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.associated {
		v.cursor = v.clamp(p)
	}
}

func (v *VirtualScreen) SetCursorAssociated(associated bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.associated = associated
}

func (v *VirtualScreen) HideCursor() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hidden = true
}

func (v *VirtualScreen) ShowCursor() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hidden = false
}

// SetHeldModifierKeys sets what HeldModifierKeys reports.
func (v *VirtualScreen) SetHeldModifierKeys(keys ...uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.held = append([]uint16(nil), keys...)
}

func (v *VirtualScreen) HeldModifierKeys() []uint16 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]uint16(nil), v.held...)
}

// SetLayout maps a key code to the text TranslateKey returns for it,
// regardless of modifiers.
func (v *VirtualScreen) SetLayout(code uint16, text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.layout[code] = text
}

func (v *VirtualScreen) TranslateKey(keyCode uint16, modifiers uint32) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.layout[keyCode]
}

func (v *VirtualScreen) Hidden() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hidden
}

func (v *VirtualScreen) Associated() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.associated
}

// Warps counts WarpCursor calls.
func (v *VirtualScreen) Warps() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.warps
}

func (v *VirtualScreen) clamp(p Point) Point {
	b := v.bounds
	if p.X < b.MinX() {
		p.X = b.MinX()
	}
	if p.X > b.MaxX()-1 {
		p.X = b.MaxX() - 1
	}
	if p.Y < b.MinY() {
		p.Y = b.MinY()
	}
	if p.Y > b.MaxY()-1 {
		p.Y = b.MaxY() - 1
	}
	return p
}
