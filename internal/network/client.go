package network

import (
	"context"
	"crypto/tls"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"softkm/internal/protocol"
)

// Status is the connection lifecycle stage.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	}
	return "disconnected"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "connecting":
		*s = StatusConnecting
	case "connected":
		*s = StatusConnected
	case "error":
		*s = StatusError
	default:
		*s = StatusDisconnected
	}
	return nil
}

// State is a connection state as observed from outside.
type State struct {
	Status  Status
	Message string
	// SessionID identifies the established connection while Connected.
	SessionID string
}

// Target is where to connect.
type Target struct {
	Host   string
	Port   int
	UseTLS bool
}

func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Options tune the client. Zero durations take the defaults.
type Options struct {
	HeartbeatInterval time.Duration
	FlushInterval     time.Duration
	ReconnectDelay    time.Duration
	DialTimeout       time.Duration
	WriteTimeout      time.Duration

	// Target is read at every reconnect attempt so a changed host or port
	// takes effect. Without it the last connected target is reused.
	Target func() Target

	// OnState and OnEvent run on Queue, one at a time, in order.
	OnState func(State)
	OnEvent func(protocol.Event)
	Queue   *Queue

	// Dial replaces the TCP/TLS dialer.
	Dial func(ctx context.Context, t Target) (net.Conn, error)
}

const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultFlushInterval     = 16 * time.Millisecond
	DefaultReconnectDelay    = 5 * time.Second
	DefaultDialTimeout       = 5 * time.Second
	DefaultWriteTimeout      = 2 * time.Second

	sendBuffer = 1024
)

// Client keeps one connection to the peer alive and streams events over it.
type Client struct {
	opts  Options
	queue *Queue

	mu        sync.Mutex
	state     State
	sess      *session
	gen       uint64
	last      Target
	reconnect *time.Timer
	closed    bool

	// Pending relative motion, shared between Send and the flush tick.
	batchMu     sync.Mutex
	pendingX    float32
	pendingY    float32
	pendingMods uint32
	hasPending  bool
}

type session struct {
	id   string
	conn net.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	sent    int
	dropped atomic.Int64
	lastLog time.Time
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// enqueue hands a frame to the writer without blocking.
func (s *session) enqueue(frame []byte) {
	select {
	case s.out <- frame:
	case <-s.done:
	default:
		s.dropped.Add(1)
	}
}

// NewClient creates a disconnected client.
func NewClient(opts Options) *Client {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	q := opts.Queue
	if q == nil {
		q = NewQueue()
	}
	c := &Client{opts: opts, queue: q}
	if c.opts.Dial == nil {
		c.opts.Dial = c.dialTarget
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected returns true if a session is established
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Status == StatusConnected
}

// Connect drops any existing connection and starts connecting to t in the
// background.
func (c *Client) Connect(t Target) {
	c.Disconnect()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.startLocked(t)
}

// Disconnect closes the connection, cancels a scheduled reconnect and drops
// pending motion. It is safe to call in any state and returns after the
// connection's goroutines have exited.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	s := c.sess
	c.sess = nil
	c.setStateLocked(State{Status: StatusDisconnected})
	c.mu.Unlock()

	c.clearPending()
	if s != nil {
		log.Printf("Network: Disconnecting session %s", s.id)
		s.close()
		s.wg.Wait()
	}
}

// Close disconnects for good. Later Connect calls do nothing.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Disconnect()
}

// Send queues ev for the peer and returns immediately. Events are dropped
// while not connected. Relative motion is summed and sent once per flush
// interval; any other event first flushes pending motion so ordering holds.
func (c *Client) Send(ev protocol.Event) {
	c.mu.Lock()
	s := c.sess
	connected := c.state.Status == StatusConnected
	c.mu.Unlock()
	if s == nil || !connected {
		return
	}

	// Frames are queued under batchMu so motion flushed by the tick can never
	// be written ahead of a discrete event sent before it.
	c.batchMu.Lock()
	defer c.batchMu.Unlock()
	if mm, ok := ev.(protocol.MouseMove); ok && mm.Relative {
		c.pendingX += mm.X
		c.pendingY += mm.Y
		c.pendingMods = mm.Modifiers
		c.hasPending = true
		return
	}

	if pending, ok := c.takePendingLocked(); ok {
		s.enqueue(protocol.Encode(pending))
	}
	s.enqueue(protocol.Encode(ev))
}

// flushPending queues the summed motion behind whatever is already queued.
func (c *Client) flushPending(s *session) {
	c.batchMu.Lock()
	defer c.batchMu.Unlock()
	if pending, ok := c.takePendingLocked(); ok {
		s.enqueue(protocol.Encode(pending))
	}
}

func (c *Client) takePendingLocked() (protocol.MouseMove, bool) {
	if !c.hasPending {
		return protocol.MouseMove{}, false
	}
	ev := protocol.MouseMove{
		X:         c.pendingX,
		Y:         c.pendingY,
		Relative:  true,
		Modifiers: c.pendingMods,
	}
	c.pendingX, c.pendingY, c.pendingMods, c.hasPending = 0, 0, 0, false
	return ev, true
}

func (c *Client) clearPending() {
	c.batchMu.Lock()
	c.takePendingLocked()
	c.batchMu.Unlock()
}

func (c *Client) setStateLocked(st State) {
	if st == c.state {
		return
	}
	c.state = st
	if fn := c.opts.OnState; fn != nil {
		c.queue.Post(func() { fn(st) })
	}
}

func (c *Client) startLocked(t Target) {
	c.gen++
	gen := c.gen
	c.last = t
	c.setStateLocked(State{Status: StatusConnecting})
	log.Printf("Network: Connecting to %s (TLS: %v)", t.Addr(), t.UseTLS)
	go c.establish(gen, t)
}

func (c *Client) establish(gen uint64, t Target) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DialTimeout)
	conn, err := c.opts.Dial(ctx, t)
	cancel()

	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		log.Printf("Network: %v", err)
		c.setStateLocked(State{Status: StatusError, Message: err.Error()})
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}

	s := &session{
		id:      uuid.NewString(),
		conn:    conn,
		out:     make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		lastLog: time.Now(),
	}
	c.sess = s
	c.setStateLocked(State{Status: StatusConnected, SessionID: s.id})
	s.wg.Add(2)
	c.mu.Unlock()

	log.Printf("Network: Connected to %s, session %s", t.Addr(), s.id)
	go c.readLoop(s)
	go c.writeLoop(s)
}

// dialTarget resolves and connects, wrapping failures in ErrResolve or
// ErrConnect.
func (c *Client) dialTarget(ctx context.Context, t Target) (net.Conn, error) {
	addrs, err := net.DefaultResolver.LookupHost(ctx, t.Host)
	if err != nil || len(addrs) == 0 {
		return nil, errors.Wrapf(ErrResolve, "%s: %v", t.Host, err)
	}

	dialer := &net.Dialer{KeepAlive: 30 * time.Second, Control: controlSocket}
	addr := net.JoinHostPort(addrs[0], strconv.Itoa(t.Port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(ErrConnect, "%s: %v", addr, err)
	}
	if !t.UseTLS {
		return conn, nil
	}

	// Peers run with self-signed certificates.
	tlsConn := tls.Client(conn, &tls.Config{InsecureSkipVerify: true, ServerName: t.Host})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrapf(ErrConnect, "TLS handshake with %s: %v", addr, err)
	}
	return tlsConn, nil
}

func (c *Client) readLoop(s *session) {
	defer s.wg.Done()

	var dec protocol.Decoder
	buf := make([]byte, 4096)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			_, _ = dec.Write(buf[:n])
			for {
				ev, derr := dec.Next()
				if derr != nil {
					log.Printf("Network: Dropped inbound data: %v", derr)
					continue
				}
				if ev == nil {
					break
				}
				c.dispatch(ev)
			}
		}
		if err != nil {
			if err == io.EOF {
				c.sessionFailed(s, ErrPeerClosed)
			} else {
				c.sessionFailed(s, errors.Wrap(ErrReceive, err.Error()))
			}
			return
		}
	}
}

func (c *Client) dispatch(ev protocol.Event) {
	if _, ok := ev.(protocol.HeartbeatAck); ok {
		return
	}
	if fn := c.opts.OnEvent; fn != nil {
		c.queue.Post(func() { fn(ev) })
	}
}

func (c *Client) writeLoop(s *session) {
	defer s.wg.Done()

	heartbeat := time.NewTicker(c.opts.HeartbeatInterval)
	defer heartbeat.Stop()
	flush := time.NewTicker(c.opts.FlushInterval)
	defer flush.Stop()

	heartbeatFrame := protocol.Encode(protocol.Heartbeat{})
	for {
		var frame []byte
		select {
		case <-s.done:
			return
		case frame = <-s.out:
		case <-flush.C:
			c.flushPending(s)
			continue
		case <-heartbeat.C:
			frame = heartbeatFrame
		}

		if err := c.write(s, frame); err != nil {
			c.sessionFailed(s, err)
			return
		}
	}
}

func (c *Client) write(s *session, frame []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if _, err := s.conn.Write(frame); err != nil {
		return errors.Wrap(ErrSend, err.Error())
	}

	s.sent++
	if now := time.Now(); now.Sub(s.lastLog) >= time.Second {
		if dropped := s.dropped.Swap(0); dropped > 0 {
			log.Printf("Network: Send rate: %d frames/s, %d dropped (buffer full)", s.sent, dropped)
		} else {
			log.Printf("Network: Send rate: %d frames/s", s.sent)
		}
		s.sent = 0
		s.lastLog = now
	}
	return nil
}

// sessionFailed ends s after an I/O failure and schedules one reconnect. It
// does nothing if s was already replaced or torn down.
func (c *Client) sessionFailed(s *session, err error) {
	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		s.close()
		return
	}
	c.sess = nil
	if errors.Cause(err) == ErrPeerClosed {
		c.setStateLocked(State{Status: StatusDisconnected, Message: err.Error()})
	} else {
		c.setStateLocked(State{Status: StatusError, Message: err.Error()})
	}
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	log.Printf("Network: Session %s ended: %v", s.id, err)
	s.close()
	c.clearPending()
}

// scheduleReconnectLocked arms the single reconnect timer. An explicit
// Disconnect or Connect in the meantime invalidates it.
func (c *Client) scheduleReconnectLocked() {
	if c.closed || c.reconnect != nil {
		return
	}
	gen := c.gen
	log.Printf("Network: Reconnecting in %v", c.opts.ReconnectDelay)
	c.reconnect = time.AfterFunc(c.opts.ReconnectDelay, func() { c.retry(gen) })
}

func (c *Client) retry(gen uint64) {
	var t Target
	if c.opts.Target != nil {
		t = c.opts.Target()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.reconnect = nil
	if c.closed || c.sess != nil {
		return
	}
	if c.opts.Target == nil {
		t = c.last
	}
	c.startLocked(t)
}
