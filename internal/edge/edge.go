// Package edge decides when the cursor has dwelt at a screen edge long enough
// to hand input to the other machine.
package edge

import (
	"sync"
	"time"

	"softkm/internal/arrangement"
	"softkm/internal/input"
)

// Direction is the way a crossing hands control.
type Direction int

const (
	ToRemote Direction = iota + 1
	ToLocal
)

func (d Direction) String() string {
	switch d {
	case ToRemote:
		return "to-remote"
	case ToLocal:
		return "to-local"
	}
	return "none"
}

// Settings are the inputs of an edge check. They are read again on every
// check so edits apply immediately.
type Settings struct {
	// Edge is used when the arrangement does not name a connected edge.
	Edge        arrangement.Edge
	Threshold   float64
	Dwell       time.Duration
	Arrangement arrangement.Arrangement
}

// Detector tracks how long the cursor has stayed at the watched edge.
type Detector struct {
	settings func() Settings
	screen   func() arrangement.Rect

	mu      sync.Mutex
	now     func() time.Time
	entered time.Time
}

// NewDetector builds a detector reading its settings and the local screen
// bounds from the given functions.
func NewDetector(settings func() Settings, screen func() arrangement.Rect) *Detector {
	return &Detector{
		settings: settings,
		screen:   screen,
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (d *Detector) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// Check feeds one cursor sample. While monitoring it watches the active edge
// within the overlap band; while capturing it watches the opposite edge. It
// fires once the cursor has stayed at the edge for the full dwell, then starts
// over. Leaving the edge discards any time already spent there.
func (d *Detector) Check(pos input.Point, mode input.Mode) (Direction, bool) {
	s := d.settings()
	frame := d.screen()
	active := activeEdge(s)

	var at bool
	var dir Direction
	if mode == input.ModeCapturing {
		at = atEdge(pos, frame, active.Opposite(), s.Threshold, 0, 1)
		dir = ToLocal
	} else {
		lo, hi := s.Arrangement.OverlapBand(s.Arrangement.ConnectedEdge())
		at = atEdge(pos, frame, active, s.Threshold, lo, hi)
		dir = ToRemote
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !at {
		d.entered = time.Time{}
		return 0, false
	}
	now := d.now()
	if d.entered.IsZero() {
		d.entered = now
	}
	if now.Sub(d.entered) >= s.Dwell {
		d.entered = time.Time{}
		return dir, true
	}
	return 0, false
}

// Reset clears the dwell timer.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entered = time.Time{}
}

// Settings returns the settings the next check will use.
func (d *Detector) Settings() Settings {
	return d.settings()
}

// ActiveEdge is the edge leading to the remote screen.
func (d *Detector) ActiveEdge() arrangement.Edge {
	return activeEdge(d.settings())
}

// EdgePoint is where the cursor is pinned while capturing: one pixel inside
// the active edge, halfway along the overlap band.
func (d *Detector) EdgePoint() input.Point {
	s := d.settings()
	frame := d.screen()
	active := activeEdge(s)
	lo, hi := s.Arrangement.OverlapBand(s.Arrangement.ConnectedEdge())
	mid := (lo + hi) / 2

	switch active {
	case arrangement.EdgeLeft:
		return input.Point{X: frame.MinX() + 1, Y: frame.MinY() + frame.Height*mid}
	case arrangement.EdgeTop:
		return input.Point{X: frame.MinX() + frame.Width*mid, Y: frame.MinY() + 1}
	case arrangement.EdgeBottom:
		return input.Point{X: frame.MinX() + frame.Width*mid, Y: frame.MaxY() - 1}
	}
	return input.Point{X: frame.MaxX() - 1, Y: frame.MinY() + frame.Height*mid}
}

func activeEdge(s Settings) arrangement.Edge {
	if e := s.Arrangement.ConnectedEdge(); e != arrangement.EdgeNone {
		return e
	}
	if s.Edge == arrangement.EdgeNone || s.Edge == "" {
		return arrangement.EdgeRight
	}
	return s.Edge
}

// atEdge reports whether pos is within threshold of the given border of frame
// and inside the [lo,hi] fraction of that border.
func atEdge(pos input.Point, frame arrangement.Rect, e arrangement.Edge, threshold, lo, hi float64) bool {
	var near bool
	var along float64
	switch e {
	case arrangement.EdgeRight:
		near = pos.X >= frame.MaxX()-threshold
		along = fraction(pos.Y, frame.MinY(), frame.Height)
	case arrangement.EdgeLeft:
		near = pos.X <= frame.MinX()+threshold
		along = fraction(pos.Y, frame.MinY(), frame.Height)
	case arrangement.EdgeTop:
		near = pos.Y <= frame.MinY()+threshold
		along = fraction(pos.X, frame.MinX(), frame.Width)
	case arrangement.EdgeBottom:
		near = pos.Y >= frame.MaxY()-threshold
		along = fraction(pos.X, frame.MinX(), frame.Width)
	default:
		return false
	}
	return near && along >= lo && along <= hi
}

func fraction(v, origin, extent float64) float64 {
	if extent <= 0 {
		return 0
	}
	return (v - origin) / extent
}
