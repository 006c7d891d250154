// Package peer is a minimal receiving side of the protocol. It accepts one
// controller at a time, announces its screen, acknowledges heartbeats and
// reports everything else it receives. It is used for loopback testing and
// by the "peer" command.
package peer

import (
	"io"
	"log"
	"net"
	"sync"

	"github.com/pkg/errors"

	"softkm/internal/protocol"
)

// Options configure a Server.
type Options struct {
	ScreenWidth  float32
	ScreenHeight float32

	// OnEvent receives every decoded event except heartbeats. It runs on the
	// client's read goroutine.
	OnEvent func(protocol.Event)
	// OnClient is called with true when a client is accepted and false when
	// it goes away.
	OnClient func(connected bool)
}

// Server listens for a single controller connection.
type Server struct {
	opts     Options
	listener net.Listener

	mu      sync.Mutex
	conn    net.Conn
	writeMu sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

// Listen starts accepting connections on addr.
func Listen(addr string, opts Options) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}
	s := &Server{opts: opts, listener: ln}
	s.wg.Add(1)
	go s.acceptLoop()
	log.Printf("Peer: Listening on %s", ln.Addr())
	return s, nil
}

// Addr is the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Connected reports whether a client is attached.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			log.Printf("Peer: Accept failed: %v", err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		// A new controller replaces the old one.
		if s.conn != nil {
			s.conn.Close()
		}
		s.conn = conn
		s.mu.Unlock()

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
		log.Printf("Peer: Client connected from %s", conn.RemoteAddr())
		if fn := s.opts.OnClient; fn != nil {
			fn(true)
		}
		if s.opts.ScreenWidth > 0 && s.opts.ScreenHeight > 0 {
			_ = s.write(conn, protocol.ScreenInfo{Width: s.opts.ScreenWidth, Height: s.opts.ScreenHeight})
		}

		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()

	var dec protocol.Decoder
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			_, _ = dec.Write(buf[:n])
			for {
				ev, derr := dec.Next()
				if derr != nil {
					log.Printf("Peer: %v", derr)
					continue
				}
				if ev == nil {
					break
				}
				s.process(conn, ev)
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("Peer: Read failed: %v", err)
			}
			break
		}
	}

	s.mu.Lock()
	current := s.conn == conn
	if current {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()

	log.Printf("Peer: Client disconnected")
	if current {
		if fn := s.opts.OnClient; fn != nil {
			fn(false)
		}
	}
}

func (s *Server) process(conn net.Conn, ev protocol.Event) {
	switch ev.(type) {
	case protocol.Heartbeat:
		_ = s.write(conn, protocol.HeartbeatAck{})
		return
	case protocol.HeartbeatAck:
		return
	}
	if fn := s.opts.OnEvent; fn != nil {
		fn(ev)
	}
}

func (s *Server) write(conn net.Conn, ev protocol.Event) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := conn.Write(protocol.Encode(ev)); err != nil {
		return errors.Wrapf(err, "send %s", ev.Type())
	}
	return nil
}

// Send writes ev to the attached client.
func (s *Server) Send(ev protocol.Event) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("no client connected")
	}
	return s.write(conn, ev)
}

// SendSwitchBack hands control back to the controller. yFromBottom is the
// exit height measured from the bottom of this screen.
func (s *Server) SendSwitchBack(yFromBottom float32) error {
	return s.Send(protocol.ControlSwitch{ToRemote: false, YFromBottom: yFromBottom})
}

// CloseClient drops the attached client, if any.
func (s *Server) CloseClient() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Close stops listening, drops the client and waits for goroutines to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	err := s.listener.Close()
	if conn != nil {
		conn.Close()
	}
	s.wg.Wait()
	return err
}
