// Package api provides a local, read-only HTTP view of the connection state.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"

	"github.com/NYTimes/gziphandler"
	"github.com/fatih/structs"
	"github.com/pkg/errors"

	"softkm/internal/config"
	"softkm/internal/connection"
	"softkm/internal/network"
)

// StatusSource is what the server reports on.
type StatusSource interface {
	Snapshot() connection.Snapshot
	Subscribe(fn func(connection.Snapshot))
}

// Server provides the status endpoints and websocket feed
type Server struct {
	configMgr *config.Manager
	status    StatusSource
	wsMgr     *WSManager

	httpSrv  *http.Server
	listener net.Listener
}

// NewServer creates a new API server and subscribes it to status changes.
func NewServer(configMgr *config.Manager, status StatusSource) *Server {
	s := &Server{
		configMgr: configMgr,
		status:    status,
	}
	s.wsMgr = newWSManager(s)
	go s.wsMgr.start()
	status.Subscribe(s.wsMgr.BroadcastStatus)
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/status", gziphandler.GzipHandler(http.HandlerFunc(s.handleStatus)))
	mux.Handle("/api/settings", gziphandler.GzipHandler(http.HandlerFunc(s.handleSettings)))
	mux.HandleFunc("/ws", s.wsMgr.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return s.logMiddleware(s.recoverMiddleware(mux))
}

// Start listens on addr and serves in the background. Listen errors are
// returned; serve errors are logged.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "status server listen on %s", addr)
	}
	s.listener = ln
	s.httpSrv = &http.Server{Handler: s.Handler()}

	log.Printf("API: Status server on http://%s", ln.Addr())
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("API: Server stopped: %v", err)
		}
	}()
	return nil
}

// Addr is the bound address after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the server down and disconnects websocket observers.
func (s *Server) Stop(ctx context.Context) error {
	s.wsMgr.stop()
	if s.httpSrv == nil {
		return nil
	}
	return errors.Wrap(s.httpSrv.Shutdown(ctx), "status server shutdown")
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("API: Recovered from panic: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			log.Printf("API: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: Failed to write response: %v", err)
	}
}

func onlyGET(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	connection.Snapshot
	LocalAddresses []string `json:"local_addresses,omitempty"`
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !onlyGET(w, r) {
		return
	}
	resp := StatusResponse{Snapshot: s.status.Snapshot()}
	if ips, err := network.LocalIPs(); err == nil {
		resp.LocalAddresses = ips
	}
	writeJSON(w, resp)
}

// handleSettings handles GET /api/settings. Settings are edited through the
// config file, never over HTTP.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if !onlyGET(w, r) {
		return
	}
	settings := structs.Map(s.configMgr.Get())
	settings["config_path"] = s.configMgr.Path()
	writeJSON(w, settings)
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
