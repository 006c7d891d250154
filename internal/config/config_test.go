package config

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"softkm/internal/arrangement"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1", cfg.Connection.Host)
	assert.Equal(t, 31337, cfg.Connection.Port)
	assert.False(t, cfg.Connection.UseTLS)
	assert.Equal(t, arrangement.EdgeRight, cfg.Edge.SwitchEdge)
	assert.Equal(t, 300*time.Millisecond, cfg.Dwell())
	assert.Equal(t, arrangement.Default(), cfg.Arrangement)
	assert.Equal(t, "Ctrl+Cmd+Delete", cfg.Hotkeys.TeamMonitor)
	assert.Empty(t, cfg.validate())
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	m := NewManagerAt(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, m.Load())
	assert.Equal(t, DefaultConfig(), m.Get())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			m := NewManagerAt(path)
			m.Update(func(c *Config) {
				c.Connection.Host = "10.0.0.7"
				c.Connection.Port = 4000
				c.Connection.UseTLS = true
				c.Edge.DwellSeconds = 0.5
			})
			m.RepositionRemote(-200, 10)
			require.NoError(t, m.Save())

			loaded := NewManagerAt(path)
			require.NoError(t, loaded.Load())
			assert.Equal(t, m.Get(), loaded.Get())
			assert.Equal(t, arrangement.EdgeLeft, loaded.Get().Arrangement.ConnectedEdge())
		})
	}
}

func TestLoadYAMLPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "softkm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connection:\n  host: peer.local\nedge:\n  switch_edge: Top\n"), 0644))

	m := NewManagerAt(path)
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, "peer.local", cfg.Connection.Host)
	assert.Equal(t, 31337, cfg.Connection.Port, "unset keys keep defaults")
	assert.Equal(t, arrangement.EdgeTop, cfg.Edge.SwitchEdge)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"connection": {"host": "peer", "port": 70000},
		"edge": {"switch_edge": "diagonal", "dwell_seconds": -1, "threshold_pixels": 0},
		"arrangement": {"local": {"width": 0, "height": 10}, "remote": {"width": 5, "height": 5}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	m := NewManagerAt(path)
	require.NoError(t, m.Load())

	cfg := m.Get()
	def := DefaultConfig()
	assert.Equal(t, "peer", cfg.Connection.Host)
	assert.Equal(t, def.Connection.Port, cfg.Connection.Port)
	assert.Equal(t, def.Edge, cfg.Edge)
	assert.Equal(t, def.Arrangement, cfg.Arrangement)
}

func TestOverriddenSwitchEdge(t *testing.T) {
	cfg := DefaultConfig()
	_, ok := cfg.overriddenSwitchEdge()
	assert.False(t, ok, "default edge matches the default arrangement")

	cfg.Edge.SwitchEdge = arrangement.EdgeLeft
	e, ok := cfg.overriddenSwitchEdge()
	assert.True(t, ok)
	assert.Equal(t, arrangement.EdgeRight, e)

	// Screens apart: the configured edge is used as is.
	cfg.Arrangement.Remote.X = 1000
	_, ok = cfg.overriddenSwitchEdge()
	assert.False(t, ok)
}

func TestLoadWarnsWhenSwitchEdgeIsOverridden(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"edge": {"switch_edge": "left"}}`), 0644))

	var out bytes.Buffer
	log.SetOutput(&out)
	defer log.SetOutput(os.Stderr)

	m := NewManagerAt(path)
	require.NoError(t, m.Load())

	assert.Equal(t, arrangement.EdgeLeft, m.Get().Edge.SwitchEdge, "setting is kept")
	assert.Contains(t, out.String(), `edge.switch_edge "left" is ignored`)
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	m := NewManagerAt(path)
	assert.Error(t, m.Load())
	assert.Equal(t, DefaultConfig(), m.Get())
}

func TestChangeCallbacks(t *testing.T) {
	m := NewManagerAt(filepath.Join(t.TempDir(), "config.json"))

	var first, second []Config
	m.RegisterChangeCallback(func(c Config) { first = append(first, c) })
	m.RegisterChangeCallback(func(c Config) { second = append(second, c) })

	m.Update(func(c *Config) { c.Edge.DwellSeconds = 1 })

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, 1.0, first[0].Edge.DwellSeconds)
}

func TestGetReturnsCopy(t *testing.T) {
	m := NewManagerAt(filepath.Join(t.TempDir(), "config.json"))
	cfg := m.Get()
	cfg.Connection.Port = 1

	assert.Equal(t, 31337, m.Get().Connection.Port)
}

func TestEdgeSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Edge.ThresholdPixels = 3
	cfg.Edge.DwellSeconds = 0.25

	s := cfg.EdgeSettings()
	assert.Equal(t, arrangement.EdgeRight, s.Edge)
	assert.Equal(t, 3.0, s.Threshold)
	assert.Equal(t, 250*time.Millisecond, s.Dwell)
	assert.Equal(t, cfg.Arrangement, s.Arrangement)
}

func TestRepositionRemoteSnaps(t *testing.T) {
	m := NewManagerAt(filepath.Join(t.TempDir(), "config.json"))

	a := m.RepositionRemote(30, 160)
	assert.Equal(t, arrangement.EdgeBottom, a.ConnectedEdge())
	assert.Equal(t, 150.0, m.Get().Arrangement.Remote.Y)
}
