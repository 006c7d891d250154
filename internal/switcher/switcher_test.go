package switcher

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"softkm/internal/arrangement"
	"softkm/internal/edge"
	"softkm/internal/input"
	"softkm/internal/protocol"
)

type fakeLink struct {
	mu        sync.Mutex
	connected bool
	remoteW   float64
	remoteH   float64
	sent      []protocol.Event
}

func (l *fakeLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *fakeLink) Send(ev protocol.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, ev)
}

func (l *fakeLink) RemoteScreenSize() (float64, float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remoteW, l.remoteH
}

func (l *fakeLink) take() []protocol.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	sent := l.sent
	l.sent = nil
	return sent
}

type fakeCapture struct {
	enabled []bool
}

func (c *fakeCapture) Start(input.Handler) error { return nil }
func (c *fakeCapture) Stop() error               { return nil }
func (c *fakeCapture) SetEnabled(enabled bool)   { c.enabled = append(c.enabled, enabled) }

type harness struct {
	ctrl     *Controller
	link     *fakeLink
	screen   *input.VirtualScreen
	settings *edge.Settings
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		link:   &fakeLink{connected: true},
		screen: input.NewVirtualScreen(1000, 500),
		settings: &edge.Settings{
			Edge:        arrangement.EdgeRight,
			Threshold:   5,
			Dwell:       300 * time.Millisecond,
			Arrangement: arrangement.Default(),
		},
		now: time.Unix(1700000000, 0),
	}
	det := edge.NewDetector(func() edge.Settings { return *h.settings }, h.screen.ScreenBounds)
	det.SetClock(func() time.Time { return h.now })
	h.ctrl = New(h.link, h.screen, det, nil)
	require.NoError(t, h.ctrl.RegisterTeamMonitorChord("Ctrl+Cmd+Delete"))
	return h
}

func move(x, y float64) input.Notification {
	return input.Notification{Kind: input.KindMouseMove, Location: input.Point{X: x, Y: y}}
}

// dwell holds the cursor at (x, y) long enough to trigger a crossing.
func (h *harness) dwell(x, y float64) input.Disposition {
	h.ctrl.Handle(move(x, y))
	h.now = h.now.Add(300 * time.Millisecond)
	return h.ctrl.Handle(move(x, y))
}

func TestMonitoringPassesThrough(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, input.PassThrough, h.ctrl.Handle(move(500, 250)))
	assert.Equal(t, input.PassThrough, h.ctrl.Handle(input.Notification{Kind: input.KindKeyDown, KeyCode: input.KeyA}))
	assert.Empty(t, h.link.take())
	assert.Equal(t, input.ModeMonitoring, h.ctrl.Mode())
}

func TestActivateAtEdge(t *testing.T) {
	h := newHarness(t)
	h.screen.SetHeldModifierKeys(input.KeyShift)

	var modes []input.Mode
	h.ctrl.OnModeChange(func(m input.Mode) { modes = append(modes, m) })

	assert.Equal(t, input.Consume, h.dwell(999, 100))
	require.Equal(t, input.ModeCapturing, h.ctrl.Mode())
	assert.Equal(t, []input.Mode{input.ModeCapturing}, modes)

	sent := h.link.take()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.ControlSwitch{ToRemote: true, YFromBottom: 400}, sent[0])

	assert.True(t, h.screen.Hidden())
	assert.False(t, h.screen.Associated())
	assert.Equal(t, input.Point{X: 999, Y: 250}, h.screen.CursorPosition())

	// The held shift from the snapshot annotates later events.
	h.ctrl.Handle(input.Notification{Kind: input.KindScroll, ScrollY: -2})
	assert.Equal(t, []protocol.Event{
		protocol.MouseWheel{DeltaY: -2, Modifiers: protocol.ModShift},
	}, h.link.take())
}

func TestNoActivationWhileDisconnected(t *testing.T) {
	h := newHarness(t)
	h.link.connected = false

	assert.Equal(t, input.PassThrough, h.dwell(999, 100))
	assert.Equal(t, input.ModeMonitoring, h.ctrl.Mode())
	assert.Empty(t, h.link.take())
}

func TestCapturingForwardsMotion(t *testing.T) {
	h := newHarness(t)
	h.dwell(999, 250)
	h.link.take()
	warps := h.screen.Warps()

	d := h.ctrl.Handle(input.Notification{
		Kind:     input.KindMouseMove,
		Location: input.Point{X: 700, Y: 250},
		DeltaX:   -3,
		DeltaY:   4.5,
	})
	assert.Equal(t, input.Consume, d)
	assert.Equal(t, []protocol.Event{protocol.MouseMove{X: -3, Y: 4.5, Relative: true}}, h.link.take())
	assert.Equal(t, warps+1, h.screen.Warps(), "cursor re-pinned")
	assert.Equal(t, input.Point{X: 999, Y: 250}, h.screen.CursorPosition())

	// Zero-delta samples are re-pinned but not sent.
	h.ctrl.Handle(move(999, 250))
	assert.Empty(t, h.link.take())
}

func TestCapturingTranslatesButtonsAndKeys(t *testing.T) {
	h := newHarness(t)
	h.dwell(999, 250)
	h.link.take()
	h.screen.SetLayout(input.KeyA, "a")

	h.ctrl.Handle(input.Notification{Kind: input.KindMouseDown, Button: 1, ClickCount: 2, Location: input.Point{X: 999, Y: 250}})
	h.ctrl.Handle(input.Notification{Kind: input.KindMouseUp, Button: 1, Location: input.Point{X: 999, Y: 250}})
	h.ctrl.Handle(input.Notification{Kind: input.KindKeyDown, KeyCode: input.KeyA, Flags: input.FlagCommand})
	h.ctrl.Handle(input.Notification{Kind: input.KindKeyUp, KeyCode: input.KeyA})

	assert.Equal(t, []protocol.Event{
		protocol.MouseDown{Buttons: protocol.ButtonSecondary, X: 999, Y: 250, ClickCount: 2},
		protocol.MouseUp{Buttons: protocol.ButtonSecondary, X: 999, Y: 250},
		// OS flags on the key event are not trusted.
		protocol.KeyDown{KeyCode: uint32(input.KeyA), Text: "a"},
		protocol.KeyUp{KeyCode: uint32(input.KeyA)},
	}, h.link.take())
}

func TestFlagsChangedDeduplicated(t *testing.T) {
	h := newHarness(t)
	h.dwell(999, 250)
	h.link.take()

	flags := []input.Flags{
		input.FlagsFor(input.KeyOption),
		input.FlagsFor(input.KeyOption),
		input.FlagOption,
		0,
		0,
	}
	for _, f := range flags {
		assert.Equal(t, input.Consume, h.ctrl.Handle(input.Notification{
			Kind:    input.KindFlagsChanged,
			KeyCode: input.KeyOption,
			Flags:   f,
		}))
	}

	assert.Equal(t, []protocol.Event{
		protocol.KeyDown{KeyCode: uint32(input.KeyOption), Modifiers: protocol.ModOption},
		protocol.KeyUp{KeyCode: uint32(input.KeyOption)},
	}, h.link.take())
}

func TestDeadKeyFallback(t *testing.T) {
	h := newHarness(t)
	h.dwell(999, 250)
	h.ctrl.Handle(input.Notification{Kind: input.KindFlagsChanged, KeyCode: input.KeyOption, Flags: input.FlagsFor(input.KeyOption)})
	h.link.take()

	h.ctrl.Handle(input.Notification{Kind: input.KindKeyDown, KeyCode: input.KeyE})
	assert.Equal(t, []protocol.Event{
		protocol.KeyDown{KeyCode: uint32(input.KeyE), Modifiers: protocol.ModOption, Text: "´"},
	}, h.link.take())
}

func TestTeamMonitorChord(t *testing.T) {
	h := newHarness(t)
	h.dwell(999, 250)
	h.ctrl.Handle(input.Notification{
		Kind:    input.KindFlagsChanged,
		KeyCode: input.KeyCommand,
		Flags:   input.FlagsFor(input.KeyControl, input.KeyCommand),
	})
	h.link.take()

	assert.Equal(t, input.Consume, h.ctrl.Handle(input.Notification{Kind: input.KindKeyDown, KeyCode: input.KeyDelete}))
	assert.Equal(t, input.Consume, h.ctrl.Handle(input.Notification{Kind: input.KindKeyUp, KeyCode: input.KeyDelete}))
	assert.Equal(t, []protocol.Event{protocol.TeamMonitorRequest{}}, h.link.take())

	// Without the chord modifiers, delete is an ordinary key.
	h.ctrl.Handle(input.Notification{Kind: input.KindFlagsChanged, KeyCode: input.KeyCommand, Flags: 0})
	h.link.take()
	h.ctrl.Handle(input.Notification{Kind: input.KindKeyDown, KeyCode: input.KeyDelete})
	assert.Equal(t, []protocol.Event{protocol.KeyDown{KeyCode: uint32(input.KeyDelete)}}, h.link.take())
}

func TestPeerSwitchBackRestoresHeight(t *testing.T) {
	for _, y := range []float64{40, 250, 460} {
		h := newHarness(t)
		h.dwell(999, y)
		sent := h.link.take()
		require.Len(t, sent, 1)
		cs := sent[0].(protocol.ControlSwitch)

		h.ctrl.SwitchToLocal(float64(cs.YFromBottom))

		pos := h.screen.CursorPosition()
		assert.InDelta(t, y, pos.Y, LandingMargin, "y=%v", y)
		assert.Equal(t, 999-LandingMargin, pos.X)
		assert.Equal(t, input.ModeMonitoring, h.ctrl.Mode())
		assert.False(t, h.screen.Hidden())
		assert.True(t, h.screen.Associated())
		assert.Equal(t, []protocol.Event{protocol.ControlSwitch{ToRemote: false}}, h.link.take())
	}
}

func TestPeerSwitchBackWithOffsetAndScale(t *testing.T) {
	h := newHarness(t)
	// Remote bottom sits 30 of 150 units (20%) above the local bottom.
	h.settings.Arrangement = arrangement.Arrangement{
		Local:  arrangement.Rect{Width: 240, Height: 150},
		Remote: arrangement.Rect{X: 240, Y: -30, Width: 210, Height: 150},
	}
	h.link.remoteH = 1000 // twice the local height

	h.dwell(999, 200)
	cs := h.link.take()[0].(protocol.ControlSwitch)
	// 300 px above the local bottom, less the 100 px offset.
	assert.InDelta(t, 200, cs.YFromBottom, 1e-3)

	// The peer reports 400 of its own pixels: 200 local, plus the offset.
	h.ctrl.SwitchToLocal(400)
	assert.InDelta(t, 200, h.screen.CursorPosition().Y, 1e-9)
}

func TestSwitchBackClampsToScreen(t *testing.T) {
	h := newHarness(t)
	h.dwell(999, 250)
	h.ctrl.SwitchToLocal(5000)
	assert.Equal(t, input.Point{X: 999 - LandingMargin, Y: 0}, h.screen.CursorPosition())
}

func TestSwitchBackReleasesHeldModifiers(t *testing.T) {
	h := newHarness(t)
	h.screen.SetHeldModifierKeys(input.KeyCommand)
	h.dwell(999, 250)
	h.link.take()

	h.ctrl.SwitchToLocal(250)
	assert.Equal(t, []protocol.Event{
		protocol.KeyUp{KeyCode: uint32(input.KeyCommand)},
		protocol.ControlSwitch{ToRemote: false},
	}, h.link.take())

	// Tracker was cleared.
	h.screen.SetHeldModifierKeys()
	h.dwell(999, 250)
	h.link.take()
	h.ctrl.Handle(input.Notification{Kind: input.KindScroll, ScrollX: 1})
	assert.Equal(t, []protocol.Event{protocol.MouseWheel{DeltaX: 1}}, h.link.take())
}

func TestSwitchToLocalIgnoredWhileMonitoring(t *testing.T) {
	h := newHarness(t)
	before := h.screen.Warps()
	h.ctrl.SwitchToLocal(100)
	assert.Equal(t, before, h.screen.Warps())
	assert.Empty(t, h.link.take())
}

func TestEdgeReturnWhileCapturing(t *testing.T) {
	h := newHarness(t)
	h.dwell(999, 250)
	h.link.take()

	assert.Equal(t, input.Consume, h.dwell(2, 250))
	assert.Equal(t, input.ModeMonitoring, h.ctrl.Mode())
	assert.Equal(t, []protocol.Event{protocol.ControlSwitch{ToRemote: false}}, h.link.take())
}

func TestConnectionLostReleases(t *testing.T) {
	h := newHarness(t)
	h.dwell(999, 250)
	h.link.connected = false

	h.ctrl.ConnectionLost()
	assert.Equal(t, input.ModeMonitoring, h.ctrl.Mode())
	assert.False(t, h.screen.Hidden())
	assert.Equal(t, input.Point{X: 999 - LandingMargin, Y: 250}, h.screen.CursorPosition())
}

func TestTapDisabledRearms(t *testing.T) {
	h := newHarness(t)
	capture := &fakeCapture{}
	require.NoError(t, h.ctrl.Start(capture))

	assert.Equal(t, input.PassThrough, h.ctrl.Handle(input.Notification{Kind: input.KindTapDisabled}))
	assert.Equal(t, []bool{true}, capture.enabled)
}
