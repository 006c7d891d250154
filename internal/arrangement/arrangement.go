// Package arrangement models where the remote screen sits relative to the
// local one and derives the adjacency facts the edge detector and the switch
// controller need.
//
// Coordinates use a top-left origin with y growing downward, the same
// orientation as screen coordinates.
package arrangement

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// SnapThreshold is the distance within which two rectangles count as touching
// and within which a repositioned rectangle is pulled flush.
const SnapThreshold = 20.0

// Edge names a side of the local screen.
type Edge string

const (
	EdgeRight  Edge = "right"
	EdgeLeft   Edge = "left"
	EdgeTop    Edge = "top"
	EdgeBottom Edge = "bottom"
	EdgeNone   Edge = "none"
)

// Opposite returns the facing side. EdgeNone has no opposite.
func (e Edge) Opposite() Edge {
	switch e {
	case EdgeRight:
		return EdgeLeft
	case EdgeLeft:
		return EdgeRight
	case EdgeTop:
		return EdgeBottom
	case EdgeBottom:
		return EdgeTop
	}
	return EdgeNone
}

// Horizontal reports whether the edge is a left or right side.
func (e Edge) Horizontal() bool {
	return e == EdgeLeft || e == EdgeRight
}

// ParseEdge accepts the four side names, case-insensitively.
func ParseEdge(s string) (Edge, error) {
	switch e := Edge(strings.ToLower(strings.TrimSpace(s))); e {
	case EdgeRight, EdgeLeft, EdgeTop, EdgeBottom:
		return e, nil
	}
	return EdgeNone, errors.Errorf("unknown edge %q", s)
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	X      float64 `json:"x" yaml:"x" structs:"x"`
	Y      float64 `json:"y" yaml:"y" structs:"y"`
	Width  float64 `json:"width" yaml:"width" structs:"width"`
	Height float64 `json:"height" yaml:"height" structs:"height"`
}

func (r Rect) MinX() float64 { return r.X }
func (r Rect) MaxX() float64 { return r.X + r.Width }
func (r Rect) MinY() float64 { return r.Y }
func (r Rect) MaxY() float64 { return r.Y + r.Height }
func (r Rect) MidX() float64 { return r.X + r.Width/2 }
func (r Rect) MidY() float64 { return r.Y + r.Height/2 }

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Rect) String() string {
	return fmt.Sprintf("%gx%g@(%g,%g)", r.Width, r.Height, r.X, r.Y)
}

// Arrangement places the remote screen in the local screen's planning space.
type Arrangement struct {
	Local  Rect `json:"local" yaml:"local" structs:"local"`
	Remote Rect `json:"remote" yaml:"remote" structs:"remote"`
}

// Default puts a 240x150 local screen at the origin with a 210x150 remote
// screen flush against its right side.
func Default() Arrangement {
	return Arrangement{
		Local:  Rect{X: 0, Y: 0, Width: 240, Height: 150},
		Remote: Rect{X: 240, Y: 0, Width: 210, Height: 150},
	}
}

// FromScreenSizes builds an arrangement from real pixel sizes, scaled so the
// taller screen is baseHeight high. The screens are bottom-aligned with the
// remote one on the right.
func FromScreenSizes(localW, localH, remoteW, remoteH, baseHeight float64) Arrangement {
	if localH <= 0 || remoteH <= 0 || baseHeight <= 0 {
		return Default()
	}
	scale := math.Min(baseHeight/localH, baseHeight/remoteH)

	local := Rect{Width: localW * scale, Height: localH * scale}
	remote := Rect{
		X:      local.Width,
		Y:      local.Height - remoteH*scale,
		Width:  remoteW * scale,
		Height: remoteH * scale,
	}
	return Arrangement{Local: local, Remote: remote}
}

// ConnectedEdge reports which side of the local screen the remote one touches.
// Sides are tried in the order right, left, top, bottom; a side matches when
// the facing borders are closer than SnapThreshold and the rectangles overlap
// along that side.
func (a Arrangement) ConnectedEdge() Edge {
	l, r := a.Local, a.Remote

	overlapY := math.Min(l.MaxY(), r.MaxY()) - math.Max(l.MinY(), r.MinY())
	overlapX := math.Min(l.MaxX(), r.MaxX()) - math.Max(l.MinX(), r.MinX())

	switch {
	case math.Abs(l.MaxX()-r.MinX()) < SnapThreshold && overlapY > 0:
		return EdgeRight
	case math.Abs(l.MinX()-r.MaxX()) < SnapThreshold && overlapY > 0:
		return EdgeLeft
	case math.Abs(l.MinY()-r.MaxY()) < SnapThreshold && overlapX > 0:
		return EdgeTop
	case math.Abs(l.MaxY()-r.MinY()) < SnapThreshold && overlapX > 0:
		return EdgeBottom
	}
	return EdgeNone
}

// OverlapBand returns the shared stretch of the given edge as fractions of the
// local screen's extent along it, measured from the top (left/right edges) or
// from the left (top/bottom edges). The result is clamped to [0,1]. EdgeNone
// yields the full extent.
func (a Arrangement) OverlapBand(e Edge) (lo, hi float64) {
	l, r := a.Local, a.Remote

	var start, end, origin, extent float64
	switch e {
	case EdgeRight, EdgeLeft:
		start, end = math.Max(l.MinY(), r.MinY()), math.Min(l.MaxY(), r.MaxY())
		origin, extent = l.MinY(), l.Height
	case EdgeTop, EdgeBottom:
		start, end = math.Max(l.MinX(), r.MinX()), math.Min(l.MaxX(), r.MaxX())
		origin, extent = l.MinX(), l.Width
	default:
		return 0, 1
	}
	if extent <= 0 {
		return 0, 1
	}

	lo = clamp((start-origin)/extent, 0, 1)
	hi = clamp((end-origin)/extent, 0, 1)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// VerticalOffsetRatio is how far the remote bottom edge sits above the local
// bottom edge, as a fraction of the local height. Bottom-aligned screens give 0.
func (a Arrangement) VerticalOffsetRatio() float64 {
	if a.Local.Height <= 0 {
		return 0
	}
	return (a.Local.MaxY() - a.Remote.MaxY()) / a.Local.Height
}

// Snap pulls the remote rectangle flush against the nearest side of the local
// one when it is within SnapThreshold. Only the coordinate facing that side
// moves. Ties resolve right, left, top, bottom.
func (a *Arrangement) Snap() bool {
	l, r := a.Local, a.Remote

	dists := [4]float64{
		math.Abs(r.MinX() - l.MaxX()), // right
		math.Abs(r.MaxX() - l.MinX()), // left
		math.Abs(r.MaxY() - l.MinY()), // top
		math.Abs(r.MinY() - l.MaxY()), // bottom
	}
	best := 0
	for i := 1; i < len(dists); i++ {
		if dists[i] < dists[best] {
			best = i
		}
	}
	if dists[best] > SnapThreshold {
		return false
	}

	switch best {
	case 0:
		a.Remote.X = l.MaxX()
	case 1:
		a.Remote.X = l.MinX() - r.Width
	case 2:
		a.Remote.Y = l.MinY() - r.Height
	case 3:
		a.Remote.Y = l.MaxY()
	}
	return true
}

// Reposition moves the remote rectangle's origin to (x, y) and applies Snap,
// so a drag that ends near a side commits the snapped position.
func (a *Arrangement) Reposition(x, y float64) {
	a.Remote.X = x
	a.Remote.Y = y
	a.Snap()
}

func (a Arrangement) String() string {
	return fmt.Sprintf("local=%s remote=%s edge=%s", a.Local, a.Remote, a.ConnectedEdge())
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
