package api

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"softkm/internal/config"
	"softkm/internal/connection"
	"softkm/internal/input"
	"softkm/internal/network"
)

type fakeStatus struct {
	mu   sync.Mutex
	snap connection.Snapshot
	subs []func(connection.Snapshot)
}

func (f *fakeStatus) Snapshot() connection.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeStatus) Subscribe(fn func(connection.Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
}

func (f *fakeStatus) set(snap connection.Snapshot) {
	f.mu.Lock()
	f.snap = snap
	subs := append(([]func(connection.Snapshot))(nil), f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func newTestServer(t *testing.T) (*Server, *fakeStatus, *httptest.Server) {
	t.Helper()
	status := &fakeStatus{snap: connection.Snapshot{
		State:   network.StatusConnected,
		Host:    "10.0.0.2",
		Port:    31337,
		Updated: time.Unix(1700000000, 0).UTC(),
	}}
	cfg := config.NewManagerAt(filepath.Join(t.TempDir(), "config.json"))
	s := NewServer(cfg, status)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Stop(context.Background())
	})
	return s, status, ts
}

func TestHealth(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatus(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, network.StatusConnected, got.State)
	assert.Equal(t, input.ModeMonitoring, got.Mode)
	assert.Equal(t, "10.0.0.2", got.Host)
	assert.Equal(t, 31337, got.Port)
}

func TestStatusIsGzipped(t *testing.T) {
	_, _, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/status", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")

	// Setting the header ourselves turns off transparent decompression.
	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.NewDecoder(zr).Decode(&got))
	assert.Equal(t, "connected", got["state"])
}

func TestSettings(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/settings")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))

	conn, ok := got["connection"].(map[string]interface{})
	require.True(t, ok, "sections are nested maps")
	assert.Equal(t, "127.0.0.1", conn["host"])
	assert.Equal(t, float64(31337), conn["port"])

	edge := got["edge"].(map[string]interface{})
	assert.Equal(t, "right", edge["switch_edge"])
	assert.True(t, strings.HasSuffix(got["config_path"].(string), "config.json"))
}

func TestReadOnly(t *testing.T) {
	_, _, ts := newTestServer(t)

	for _, path := range []string{"/api/status", "/api/settings"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader("{}"))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		})
	}
}

func TestRecoverMiddleware(t *testing.T) {
	s := &Server{}
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebSocketPushesSnapshots(t *testing.T) {
	_, status, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	read := func() connection.Snapshot {
		var msg struct {
			Type    string              `json:"type"`
			Payload connection.Snapshot `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, TypeStatus, msg.Type)
		return msg.Payload
	}

	first := read()
	assert.Equal(t, network.StatusConnected, first.State)

	status.set(connection.Snapshot{State: network.StatusError, Message: "refused", Mode: input.ModeCapturing})
	next := read()
	assert.Equal(t, network.StatusError, next.State)
	assert.Equal(t, "refused", next.Message)
	assert.Equal(t, input.ModeCapturing, next.Mode)
}

func TestStartStop(t *testing.T) {
	status := &fakeStatus{}
	s := NewServer(config.NewManagerAt(filepath.Join(t.TempDir(), "c.json")), status)
	require.NoError(t, s.Start("127.0.0.1:0"))

	resp, err := http.Get("http://" + s.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	// Broadcasting after Stop must not block.
	status.set(connection.Snapshot{})
}
