// Package switcher is the central input state machine. It decides, for every
// raw notification, whether input stays on this machine or is forwarded to the
// peer, and drives the cursor side effects of switching.
package switcher

import (
	"log"
	"math"
	"sync"

	"softkm/internal/arrangement"
	"softkm/internal/edge"
	"softkm/internal/hotkey"
	"softkm/internal/input"
	"softkm/internal/protocol"
)

// LandingMargin keeps the cursor this far inside the active edge after a
// switch back, so it does not immediately re-trigger.
const LandingMargin = 20.0

// Link is the controller's view of the network connection.
type Link interface {
	IsConnected() bool
	// Send queues an event without blocking.
	Send(ev protocol.Event)
	// RemoteScreenSize is the peer's announced screen size, zero if unknown.
	RemoteScreenSize() (width, height float64)
}

// Controller owns the Monitoring/Capturing mode.
type Controller struct {
	link     Link
	sink     input.Sink
	detector *edge.Detector
	hotkeys  *hotkey.Manager
	tracker  *input.ModifierTracker

	mu      sync.Mutex
	mode    input.Mode
	lock    input.Point
	swallow map[uint16]bool
	capture input.Capture

	// Callbacks for mode changes
	observersMu sync.Mutex
	observers   []func(input.Mode)
}

// New creates a controller in Monitoring mode.
func New(link Link, sink input.Sink, detector *edge.Detector, hotkeys *hotkey.Manager) *Controller {
	if hotkeys == nil {
		hotkeys = hotkey.NewManager()
	}
	return &Controller{
		link:     link,
		sink:     sink,
		detector: detector,
		hotkeys:  hotkeys,
		tracker:  input.NewModifierTracker(),
		swallow:  make(map[uint16]bool),
	}
}

// RegisterTeamMonitorChord makes the chord send a TeamMonitorRequest instead
// of its key events while capturing.
func (c *Controller) RegisterTeamMonitorChord(chord string) error {
	return c.hotkeys.Register(chord, func() {
		c.link.Send(protocol.TeamMonitorRequest{})
	})
}

// Start attaches the capture and begins handling its notifications.
func (c *Controller) Start(capture input.Capture) error {
	c.mu.Lock()
	c.capture = capture
	c.mu.Unlock()
	return capture.Start(c.Handle)
}

// OnModeChange registers a callback run after every mode transition.
func (c *Controller) OnModeChange(fn func(input.Mode)) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	c.observers = append(c.observers, fn)
}

// Mode returns the current mode.
func (c *Controller) Mode() input.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Handle is the capture callback. Positional notifications go to the edge
// detector first; anything that does not cause a transition is then handled
// per mode.
func (c *Controller) Handle(n input.Notification) input.Disposition {
	if n.Kind == input.KindTapDisabled {
		c.rearm()
		return input.PassThrough
	}

	c.mu.Lock()
	if n.Kind.Positional() {
		if dir, ok := c.detector.Check(n.Location, c.mode); ok {
			var switched bool
			if dir == edge.ToRemote {
				switched = c.activateLocked(n.Location)
			} else {
				switched = c.deactivateLocked(c.returnLanding(n.Location))
			}
			if switched {
				mode := c.mode
				c.mu.Unlock()
				c.notify(mode)
				return input.Consume
			}
		}
	}

	if c.mode == input.ModeMonitoring {
		c.mu.Unlock()
		return input.PassThrough
	}
	d := c.forwardLocked(n)
	c.mu.Unlock()
	return d
}

// SwitchToLocal handles the peer handing control back. yFromBottom is the
// peer's handoff coordinate in its own pixels.
func (c *Controller) SwitchToLocal(yFromBottom float64) {
	c.mu.Lock()
	if c.mode != input.ModeCapturing {
		c.mu.Unlock()
		return
	}
	log.Printf("Switch: Peer returned control at %.0f", yFromBottom)
	c.deactivateLocked(c.peerLanding(yFromBottom))
	mode := c.mode
	c.mu.Unlock()
	c.notify(mode)
}

// ConnectionLost gives the cursor back if the connection drops mid-capture.
func (c *Controller) ConnectionLost() {
	c.mu.Lock()
	if c.mode != input.ModeCapturing {
		c.mu.Unlock()
		return
	}
	log.Printf("Switch: Connection lost while capturing, releasing input")
	c.deactivateLocked(c.returnLanding(c.lock))
	mode := c.mode
	c.mu.Unlock()
	c.notify(mode)
}

func (c *Controller) rearm() {
	c.mu.Lock()
	capture := c.capture
	c.mu.Unlock()

	log.Printf("Switch: Capture was disabled by the system, re-enabling")
	if capture != nil {
		capture.SetEnabled(true)
	}
}

func (c *Controller) notify(mode input.Mode) {
	c.observersMu.Lock()
	observers := append(([]func(input.Mode))(nil), c.observers...)
	c.observersMu.Unlock()

	for _, fn := range observers {
		fn(mode)
	}
}

func (c *Controller) activateLocked(pos input.Point) bool {
	if c.mode == input.ModeCapturing || !c.link.IsConnected() {
		return false
	}

	handoff := c.handoff(pos)
	c.detector.Reset()
	c.lock = c.detector.EdgePoint()
	c.mode = input.ModeCapturing

	c.sink.WarpCursor(c.lock)
	c.sink.SetCursorAssociated(false)
	c.sink.HideCursor()
	c.link.Send(protocol.ControlSwitch{ToRemote: true, YFromBottom: float32(handoff)})
	c.tracker.Snapshot(c.sink.HeldModifierKeys())

	log.Printf("Switch: Capturing via %s edge, handoff at %.0f", c.detector.ActiveEdge(), handoff)
	return true
}

func (c *Controller) deactivateLocked(landing input.Point) bool {
	if c.mode != input.ModeCapturing {
		return false
	}
	c.mode = input.ModeMonitoring
	c.detector.Reset()

	c.sink.SetCursorAssociated(true)
	c.sink.ShowCursor()
	c.sink.WarpCursor(landing)

	// Modifiers still held on the peer would otherwise stay stuck there.
	for _, code := range c.tracker.Pressed() {
		c.link.Send(protocol.KeyUp{KeyCode: uint32(code)})
	}
	c.link.Send(protocol.ControlSwitch{ToRemote: false})
	c.tracker.Clear()
	c.swallow = make(map[uint16]bool)

	log.Printf("Switch: Monitoring, cursor at (%.0f, %.0f)", landing.X, landing.Y)
	return true
}

// forwardLocked translates a notification into peer events while capturing.
func (c *Controller) forwardLocked(n input.Notification) input.Disposition {
	switch n.Kind {
	case input.KindMouseMove:
		if n.DeltaX != 0 || n.DeltaY != 0 {
			c.link.Send(protocol.MouseMove{
				X:         float32(n.DeltaX),
				Y:         float32(n.DeltaY),
				Relative:  true,
				Modifiers: c.tracker.Modifiers(),
			})
		}
		c.sink.WarpCursor(c.lock)

	case input.KindMouseDown:
		c.link.Send(protocol.MouseDown{
			Buttons:    input.ButtonMask(n.Button),
			X:          float32(n.Location.X),
			Y:          float32(n.Location.Y),
			Modifiers:  c.tracker.Modifiers(),
			ClickCount: uint32(n.ClickCount),
		})

	case input.KindMouseUp:
		c.link.Send(protocol.MouseUp{
			Buttons:   input.ButtonMask(n.Button),
			X:         float32(n.Location.X),
			Y:         float32(n.Location.Y),
			Modifiers: c.tracker.Modifiers(),
		})

	case input.KindScroll:
		c.link.Send(protocol.MouseWheel{
			DeltaX:    float32(n.ScrollX),
			DeltaY:    float32(n.ScrollY),
			Modifiers: c.tracker.Modifiers(),
		})

	case input.KindKeyDown:
		mods := c.tracker.Modifiers()
		if c.hotkeys.Match(n.KeyCode, mods) {
			c.swallow[n.KeyCode] = true
			break
		}
		c.link.Send(protocol.KeyDown{
			KeyCode:   uint32(n.KeyCode),
			Modifiers: mods,
			Text:      input.ResolveText(n, mods, c.sink),
		})

	case input.KindKeyUp:
		if c.swallow[n.KeyCode] {
			delete(c.swallow, n.KeyCode)
			break
		}
		c.link.Send(protocol.KeyUp{KeyCode: uint32(n.KeyCode), Modifiers: c.tracker.Modifiers()})

	case input.KindFlagsChanged:
		for _, ch := range c.tracker.Apply(n.Flags, n.KeyCode) {
			mods := c.tracker.Modifiers()
			if ch.Down {
				c.link.Send(protocol.KeyDown{KeyCode: uint32(ch.KeyCode), Modifiers: mods})
			} else {
				c.link.Send(protocol.KeyUp{KeyCode: uint32(ch.KeyCode), Modifiers: mods})
			}
		}

	default:
		return input.PassThrough
	}
	return input.Consume
}

// handoff is the coordinate sent with ControlSwitch{ToRemote}: for side edges
// the height above the local bottom, corrected so it is measured from the
// remote screen's bottom; for top and bottom edges the distance from the
// left.
func (c *Controller) handoff(pos input.Point) float64 {
	frame := c.sink.ScreenBounds()
	if !c.detector.ActiveEdge().Horizontal() {
		return pos.X - frame.MinX()
	}
	a := c.detector.Settings().Arrangement
	return frame.MaxY() - pos.Y - a.VerticalOffsetRatio()*frame.Height
}

// peerLanding is the inverse of handoff for a coordinate reported by the
// peer, scaled from remote to local pixels and kept LandingMargin inside the
// active edge.
func (c *Controller) peerLanding(v float64) input.Point {
	frame := c.sink.ScreenBounds()
	active := c.detector.ActiveEdge()
	rw, rh := c.link.RemoteScreenSize()

	var p input.Point
	if active.Horizontal() {
		scale := 1.0
		if rh > 0 {
			scale = frame.Height / rh
		}
		a := c.detector.Settings().Arrangement
		p.Y = frame.MaxY() - (v*scale + a.VerticalOffsetRatio()*frame.Height)
	} else {
		scale := 1.0
		if rw > 0 {
			scale = frame.Width / rw
		}
		p.X = frame.MinX() + v*scale
	}
	return inset(p, frame, active)
}

// returnLanding keeps pos but moves it LandingMargin inside the active edge.
func (c *Controller) returnLanding(pos input.Point) input.Point {
	return inset(pos, c.sink.ScreenBounds(), c.detector.ActiveEdge())
}

func inset(p input.Point, frame arrangement.Rect, active arrangement.Edge) input.Point {
	switch active {
	case arrangement.EdgeLeft:
		p.X = frame.MinX() + LandingMargin
	case arrangement.EdgeTop:
		p.Y = frame.MinY() + LandingMargin
	case arrangement.EdgeBottom:
		p.Y = frame.MaxY() - 1 - LandingMargin
	default:
		p.X = frame.MaxX() - 1 - LandingMargin
	}
	p.X = clamp(p.X, frame.MinX(), frame.MaxX()-1)
	p.Y = clamp(p.Y, frame.MinY(), frame.MaxY()-1)
	return p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
