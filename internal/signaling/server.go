package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/origin"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/room"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/roomcode"
)

// MaxRoomCodeBytes bounds the {code} path segment of /ws/{code}.
const MaxRoomCodeBytes = 64

const (
	DefaultWriteWait       = 10 * time.Second
	DefaultMaxMessageBytes = int64(1 << 20)
)

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	Rooms *room.Registry[Conn]
	// Codes issues codes for GET /new-code. If nil, a default generator that
	// avoids active rooms is used.
	Codes   *roomcode.Generator
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Origins is consulted during the WebSocket upgrade. The zero value only
	// admits same-host browsers.
	Origins origin.Policy

	IdleTimeout          time.Duration
	WriteWait            time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
}

// Server implements the room signaling HTTP/WebSocket surface.
//
// Endpoints:
//   - GET /new-code            : {"code":"AB12"}
//   - GET /room/{code}/status  : {"room_code","peer_count","active"}
//   - GET /ws/{code}           : WebSocket relay for room code
type Server struct {
	cfg      Config
	log      *slog.Logger
	bc       *Broadcaster
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Rooms == nil {
		return nil, errors.New("signaling: Rooms is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Codes == nil {
		codes, err := roomcode.New(roomcode.Config{InUse: cfg.Rooms.Exists})
		if err != nil {
			return nil, err
		}
		cfg.Codes = codes
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = DefaultWriteWait
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}

	s := &Server{
		cfg:   cfg,
		log:   cfg.Logger,
		bc:    NewBroadcaster(cfg.Rooms, cfg.Logger, cfg.Metrics),
		conns: make(map[Conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			_, ok := s.cfg.Origins.Check(r)
			return ok
		},
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			s.cfg.Metrics.Inc(metrics.WebSocketUpgradeFailed)
			s.log.Debug("websocket upgrade failed", "path", r.URL.Path, "status", status, "err", reason)
			http.Error(w, http.StatusText(status), status)
		},
	}
	return s, nil
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /new-code", s.handleNewCode)
	mux.HandleFunc("GET /room/{code}/status", s.handleRoomStatus)
	mux.HandleFunc("GET /ws/{code}", s.handleWebSocket)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Close disconnects every live peer and waits for their sessions to finish
// cleanup. Connections upgraded after Close are rejected.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.CloseWith(websocket.CloseGoingAway, "server shutting down")
	}
	s.wg.Wait()
}

func (s *Server) track(c Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) handleNewCode(w http.ResponseWriter, r *http.Request) {
	code, err := s.cfg.Codes.Generate()
	if err != nil {
		s.log.Error("room code generation failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no room code available"})
		return
	}
	s.cfg.Metrics.Inc(metrics.RoomCodesIssued)
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

func (s *Server) handleRoomStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Rooms.Status(r.PathValue("code")))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" || len(code) > MaxRoomCodeBytes {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid room code"})
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already responded.
		return
	}

	conn := newWSConn(ws, s.cfg.WriteWait, s.cfg.MaxMessageBytes)
	if !s.track(conn) {
		_ = conn.CloseWith(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.untrack(conn)

	sess := NewSession(code, conn, SessionConfig{
		Rooms:       s.cfg.Rooms,
		Broadcaster: s.bc,
		Logger:      s.log,
		Metrics:     s.cfg.Metrics,
		IdleTimeout: s.cfg.IdleTimeout,
		Limiter:     ratelimit.PerSecond(ratelimit.RealClock{}, s.cfg.MaxMessagesPerSecond),
	})
	// The request context is detached from hijacked connections, so the
	// session ends through the connection itself.
	if err := sess.Run(context.Background()); err != nil {
		s.log.Info("session ended", "room", code, "peer_id", conn.ID(), "reason", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
