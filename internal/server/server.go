package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/trailsync/internal/observability"
	"github.com/shaunagostinho/trailsync/internal/playback"
	"github.com/shaunagostinho/trailsync/internal/syncloop"
)

// Server exposes the live position channel and a small control API.
type Server struct {
	cfg   *Config
	hub   *Hub
	clock playback.Clock
	state *syncloop.Snapshot
	webFS fs.FS

	upgrader websocket.Upgrader
	ln       net.Listener
}

// StateResponse is returned by GET /api/state.
type StateResponse struct {
	State   *syncloop.State `json:"state,omitempty"` // nil before the first tick
	Playing *bool           `json:"playing,omitempty"`
	Hub     HubStats        `json:"hub"`
	Stamp   int64           `json:"stamp"` // Unix ms
}

// New creates a new Server. clock and state may be nil when the session has
// no player attached.
func New(cfg *Config, hub *Hub, clock playback.Clock, state *syncloop.Snapshot, webFS fs.FS) *Server {
	return &Server{
		cfg:   cfg,
		hub:   hub,
		clock: clock,
		state: state,
		webFS: webFS,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Listen binds the configured address. A bind failure is fatal for the
// session, so callers do this before starting anything else.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Server.ListenAddr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.cfg.Server.ListenAddr
}

// MapURL is the address of the embedded live map page.
func (s *Server) MapURL() string {
	host, port, err := net.SplitHostPort(s.Addr())
	if err != nil {
		return "http://" + s.Addr() + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	var files http.Handler = http.NotFoundHandler()
	if s.webFS != nil {
		files = http.FileServer(http.FS(s.webFS))
	}

	// Older viewers connect to the bare root, ws://localhost:8765.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.handleWS(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
	mux.HandleFunc("/ws", s.handleWS)

	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/play", s.handlePlay)
	mux.HandleFunc("/api/pause", s.handlePause)
	mux.HandleFunc("/api/seek", s.handleSeek)

	if s.cfg.Server.Metrics {
		observability.Register(mux)
	}
	return mux
}

// shutdownTimeout bounds how long Serve waits for in-flight requests.
var shutdownTimeout = 5 * time.Second

// Serve runs the hub and the HTTP server until ctx is cancelled. On return
// every websocket connection has been closed.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go s.hub.Run(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
	}

	log.Printf("[server] listening on %s", s.Addr())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(s.ln) }()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf("[server] shutdown: %v", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		log.Printf("[server] serve: %v", err)
	}
	<-s.hub.Done()
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}
	s.hub.attach(conn)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	resp := StateResponse{
		Hub:   s.hub.Stats(),
		Stamp: time.Now().UnixMilli(),
	}
	if s.state != nil {
		if st, ok := s.state.Latest(); ok {
			resp.State = &st
		}
	}
	if ctl, ok := s.clock.(playback.Controller); ok {
		playing := ctl.Playing()
		resp.Playing = &playing
	}
	writeJSON(w, resp)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	data, err := s.cfg.ToJSON()
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	if s.clock == nil {
		http.Error(w, "no player attached", http.StatusNotImplemented)
		return
	}
	s.clock.Play()
	writeOK(w)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	ctl, ok := s.controller(w, r)
	if !ok {
		return
	}
	ctl.Pause()
	writeOK(w)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	ctl, ok := s.controller(w, r)
	if !ok {
		return
	}
	t, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
	if err != nil {
		http.Error(w, "bad seek offset", 400)
		return
	}
	ctl.Seek(t)
	writeOK(w)
}

// controller checks the method and that the clock can be controlled.
func (s *Server) controller(w http.ResponseWriter, r *http.Request) (playback.Controller, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return nil, false
	}
	ctl, ok := s.clock.(playback.Controller)
	if !ok {
		http.Error(w, "player cannot be controlled", http.StatusNotImplemented)
		return nil, false
	}
	return ctl, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] json encode error: %v", err)
	}
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
