// Package connection binds the settings store to the network client and
// publishes a single observable view of the link to the rest of the program.
package connection

import (
	"log"
	"sync"
	"time"

	"softkm/internal/config"
	"softkm/internal/input"
	"softkm/internal/network"
	"softkm/internal/protocol"
)

// Snapshot is the read-only state shown by the status server and the tray.
type Snapshot struct {
	State        network.Status `json:"state"`
	Message      string         `json:"message,omitempty"`
	Connected    bool           `json:"connected"`
	Mode         input.Mode     `json:"mode"`
	SessionID    string         `json:"session_id,omitempty"`
	RemoteWidth  float64        `json:"remote_width"`
	RemoteHeight float64        `json:"remote_height"`
	Host         string         `json:"host"`
	Port         int            `json:"port"`
	Updated      time.Time      `json:"updated"`
}

// Manager owns the network client for the configured peer.
type Manager struct {
	cfg    *config.Manager
	client *network.Client
	queue  *network.Queue

	mu        sync.Mutex
	snap      Snapshot
	wanted    bool
	target    network.Target
	dwell     float64
	onReturn  func(yFromBottom float64)
	onLost    func()
	observers []func(Snapshot)
}

// New creates a manager. opts supplies timing overrides; its callbacks,
// queue and target function are replaced.
func New(cfg *config.Manager, opts network.Options) *Manager {
	c := cfg.Get()
	m := &Manager{
		cfg:    cfg,
		queue:  network.NewQueue(),
		target: targetOf(c),
		dwell:  c.Edge.DwellSeconds,
	}
	m.snap = Snapshot{Host: c.Connection.Host, Port: c.Connection.Port, Updated: time.Now()}

	opts.Queue = m.queue
	opts.Target = m.currentTarget
	opts.OnState = m.handleState
	opts.OnEvent = m.handleEvent
	m.client = network.NewClient(opts)

	cfg.RegisterChangeCallback(m.configChanged)
	return m
}

func targetOf(c *config.Config) network.Target {
	return network.Target{
		Host:   c.Connection.Host,
		Port:   c.Connection.Port,
		UseTLS: c.Connection.UseTLS,
	}
}

func (m *Manager) currentTarget() network.Target {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

// OnSwitchToLocal sets the handler for the peer handing control back.
func (m *Manager) OnSwitchToLocal(fn func(yFromBottom float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReturn = fn
}

// OnConnectionLost sets the handler run when an established connection ends.
func (m *Manager) OnConnectionLost(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLost = fn
}

// Subscribe registers fn for every snapshot change. Observers run one at a
// time, in order, off the caller's goroutine.
func (m *Manager) Subscribe(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Connect starts connecting to the configured peer and keeps reconnecting
// until Disconnect.
func (m *Manager) Connect() {
	m.mu.Lock()
	m.wanted = true
	t := m.target
	m.mu.Unlock()
	m.client.Connect(t)
}

// Disconnect closes the connection and stops reconnecting.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.wanted = false
	m.mu.Unlock()
	m.client.Disconnect()
}

// Close disconnects and waits for queued notifications to finish.
func (m *Manager) Close() {
	m.Disconnect()
	m.client.Close()
	m.queue.Close()
}

// Send queues an event for the peer. It never blocks.
func (m *Manager) Send(ev protocol.Event) {
	m.client.Send(ev)
}

func (m *Manager) IsConnected() bool {
	return m.client.IsConnected()
}

// RemoteScreenSize is the size the peer announced, zero until it does.
func (m *Manager) RemoteScreenSize() (width, height float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.RemoteWidth, m.snap.RemoteHeight
}

// SetMode records the controller's mode in the snapshot.
func (m *Manager) SetMode(mode input.Mode) {
	m.update(func(s *Snapshot) { s.Mode = mode })
}

// Snapshot returns the current view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Sync waits until all notifications caused so far have been delivered.
func (m *Manager) Sync() {
	m.queue.Sync()
}

func (m *Manager) update(fn func(*Snapshot)) {
	m.mu.Lock()
	fn(&m.snap)
	m.snap.Updated = time.Now()
	snap := m.snap
	observers := append(([]func(Snapshot))(nil), m.observers...)
	m.mu.Unlock()

	m.queue.Post(func() {
		for _, o := range observers {
			o(snap)
		}
	})
}

// handleState runs on the queue.
func (m *Manager) handleState(st network.State) {
	m.mu.Lock()
	wasConnected := m.snap.Connected
	lost := m.onLost
	dwell := m.dwell
	m.mu.Unlock()

	connected := st.Status == network.StatusConnected
	m.update(func(s *Snapshot) {
		s.State = st.Status
		s.Message = st.Message
		s.Connected = connected
		s.SessionID = st.SessionID
	})

	if connected {
		m.client.Send(protocol.SettingsSync{DwellSeconds: float32(dwell)})
	}
	if wasConnected && !connected {
		log.Printf("Connection: Lost connection (%s)", st.Status)
		if lost != nil {
			lost()
		}
	}
}

// handleEvent runs on the queue.
func (m *Manager) handleEvent(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.ScreenInfo:
		log.Printf("Connection: Peer screen is %.0fx%.0f", e.Width, e.Height)
		m.update(func(s *Snapshot) {
			s.RemoteWidth = float64(e.Width)
			s.RemoteHeight = float64(e.Height)
		})

	case protocol.ControlSwitch:
		if e.ToRemote {
			return
		}
		m.mu.Lock()
		fn := m.onReturn
		m.mu.Unlock()
		if fn != nil {
			fn(float64(e.YFromBottom))
		}

	case protocol.SettingsSync:
		// The local setting stays authoritative.
		log.Printf("Connection: Peer reports dwell %.2fs", e.DwellSeconds)

	default:
		log.Printf("Connection: Ignoring %s from peer", ev.Type())
	}
}

func (m *Manager) configChanged(c config.Config) {
	t := targetOf(&c)

	m.mu.Lock()
	retarget := t != m.target
	redwell := c.Edge.DwellSeconds != m.dwell
	m.target = t
	m.dwell = c.Edge.DwellSeconds
	wanted := m.wanted
	m.mu.Unlock()

	if retarget {
		m.update(func(s *Snapshot) {
			s.Host = t.Host
			s.Port = t.Port
		})
		if wanted {
			log.Printf("Connection: Peer address changed to %s, reconnecting", t.Addr())
			m.client.Connect(t)
			return
		}
	}
	if redwell && m.client.IsConnected() {
		m.client.Send(protocol.SettingsSync{DwellSeconds: float32(c.Edge.DwellSeconds)})
	}
}
