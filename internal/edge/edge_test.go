package edge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"softkm/internal/arrangement"
	"softkm/internal/input"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDetector(s *Settings) (*Detector, *fakeClock) {
	screen := arrangement.Rect{Width: 1000, Height: 500}
	d := NewDetector(
		func() Settings { return *s },
		func() arrangement.Rect { return screen },
	)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	d.SetClock(clock.now)
	return d, clock
}

func defaultSettings() *Settings {
	return &Settings{
		Edge:        arrangement.EdgeRight,
		Threshold:   5,
		Dwell:       300 * time.Millisecond,
		Arrangement: arrangement.Default(),
	}
}

func TestDwellFiresOnce(t *testing.T) {
	d, clock := newTestDetector(defaultSettings())
	at := input.Point{X: 999, Y: 250}

	_, fired := d.Check(at, input.ModeMonitoring)
	require.False(t, fired)

	clock.advance(300 * time.Millisecond)
	dir, fired := d.Check(at, input.ModeMonitoring)
	require.True(t, fired)
	assert.Equal(t, ToRemote, dir)

	// The timer restarted: the next sample is a fresh entry.
	_, fired = d.Check(at, input.ModeMonitoring)
	assert.False(t, fired)
}

func TestShortDwellNeverFires(t *testing.T) {
	d, clock := newTestDetector(defaultSettings())
	at := input.Point{X: 998, Y: 100}

	for i := 0; i < 29; i++ {
		_, fired := d.Check(at, input.ModeMonitoring)
		require.False(t, fired, "sample %d", i)
		clock.advance(10 * time.Millisecond)
	}
}

func TestInterruptionResetsTimer(t *testing.T) {
	d, clock := newTestDetector(defaultSettings())
	at := input.Point{X: 999, Y: 250}
	away := input.Point{X: 500, Y: 250}

	d.Check(at, input.ModeMonitoring)
	clock.advance(200 * time.Millisecond)
	_, fired := d.Check(away, input.ModeMonitoring)
	require.False(t, fired)

	d.Check(at, input.ModeMonitoring)
	clock.advance(200 * time.Millisecond)
	_, fired = d.Check(at, input.ModeMonitoring)
	assert.False(t, fired, "no credit carried across the interruption")

	clock.advance(100 * time.Millisecond)
	_, fired = d.Check(at, input.ModeMonitoring)
	assert.True(t, fired)
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		x    float64
		want bool
	}{
		{999, true},
		{995, true},
		{994.9, false},
		{10, false},
	}

	for _, tt := range tests {
		s := defaultSettings()
		s.Dwell = 0
		d, _ := newTestDetector(s)
		_, fired := d.Check(input.Point{X: tt.x, Y: 250}, input.ModeMonitoring)
		assert.Equal(t, tt.want, fired, "x=%v", tt.x)
	}
}

func TestOutsideOverlapBandNeverFires(t *testing.T) {
	s := defaultSettings()
	// Remote covers only the lower half of the right edge.
	s.Arrangement = arrangement.Arrangement{
		Local:  arrangement.Rect{Width: 240, Height: 150},
		Remote: arrangement.Rect{X: 240, Y: 75, Width: 210, Height: 150},
	}
	d, clock := newTestDetector(s)

	upper := input.Point{X: 999, Y: 100}
	for i := 0; i < 10; i++ {
		_, fired := d.Check(upper, input.ModeMonitoring)
		require.False(t, fired)
		clock.advance(100 * time.Millisecond)
	}

	lower := input.Point{X: 999, Y: 400}
	d.Check(lower, input.ModeMonitoring)
	clock.advance(300 * time.Millisecond)
	_, fired := d.Check(lower, input.ModeMonitoring)
	assert.True(t, fired)
}

func TestCapturingWatchesOppositeEdge(t *testing.T) {
	d, clock := newTestDetector(defaultSettings())

	right := input.Point{X: 999, Y: 250}
	d.Check(right, input.ModeCapturing)
	clock.advance(time.Second)
	_, fired := d.Check(right, input.ModeCapturing)
	require.False(t, fired)

	left := input.Point{X: 2, Y: 250}
	d.Check(left, input.ModeCapturing)
	clock.advance(300 * time.Millisecond)
	dir, fired := d.Check(left, input.ModeCapturing)
	require.True(t, fired)
	assert.Equal(t, ToLocal, dir)
}

func TestResetClearsTimer(t *testing.T) {
	d, clock := newTestDetector(defaultSettings())
	at := input.Point{X: 999, Y: 250}

	d.Check(at, input.ModeMonitoring)
	clock.advance(250 * time.Millisecond)
	d.Reset()
	clock.advance(100 * time.Millisecond)
	_, fired := d.Check(at, input.ModeMonitoring)
	assert.False(t, fired)
}

func TestActiveEdgeFollowsArrangement(t *testing.T) {
	s := defaultSettings()
	s.Arrangement.Reposition(-210, 0)
	d, clock := newTestDetector(s)

	assert.Equal(t, arrangement.EdgeLeft, d.ActiveEdge())
	assert.Equal(t, input.Point{X: 1, Y: 250}, d.EdgePoint())

	at := input.Point{X: 0, Y: 250}
	d.Check(at, input.ModeMonitoring)
	clock.advance(300 * time.Millisecond)
	_, fired := d.Check(at, input.ModeMonitoring)
	assert.True(t, fired)

	// Detached arrangement falls back to the configured edge.
	s.Arrangement.Remote.X = 600
	s.Edge = arrangement.EdgeBottom
	assert.Equal(t, arrangement.EdgeBottom, d.ActiveEdge())
	assert.Equal(t, input.Point{X: 500, Y: 499}, d.EdgePoint())
}

func TestEdgePointCentersOnBand(t *testing.T) {
	s := defaultSettings()
	s.Arrangement = arrangement.Arrangement{
		Local:  arrangement.Rect{Width: 200, Height: 100},
		Remote: arrangement.Rect{X: 200, Y: 50, Width: 200, Height: 100},
	}
	d, _ := newTestDetector(s)
	assert.Equal(t, input.Point{X: 999, Y: 375}, d.EdgePoint())
}
