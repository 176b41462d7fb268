package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/room"
)

type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateReceiving
	StateProbing
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateReceiving:
		return "receiving"
	case StateProbing:
		return "probing"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const DefaultIdleTimeout = 300 * time.Second

var (
	errProbeUnanswered = errors.New("signaling: liveness probe unanswered")
	errRateLimited     = errors.New("signaling: rate limit exceeded")
)

type SessionConfig struct {
	Rooms       *room.Registry[Conn]
	Broadcaster *Broadcaster
	Logger      *slog.Logger
	Metrics     *metrics.Metrics

	// IdleTimeout defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration
	// Limiter throttles inbound frames. Nil means unlimited.
	Limiter *ratelimit.TokenBucket
}

// Session drives one connection through its room lifecycle:
// join, announce, relay until disconnect or silence, then leave.
type Session struct {
	code  string
	conn  Conn
	rooms *room.Registry[Conn]
	bc    *Broadcaster
	log   *slog.Logger
	m     *metrics.Metrics

	idle    time.Duration
	limiter *ratelimit.TokenBucket

	state       atomic.Int32
	joined      bool
	cleanupOnce sync.Once
}

func NewSession(code string, conn Conn, cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	bc := cfg.Broadcaster
	if bc == nil {
		bc = NewBroadcaster(cfg.Rooms, logger, cfg.Metrics)
	}
	return &Session{
		code:    code,
		conn:    conn,
		rooms:   cfg.Rooms,
		bc:      bc,
		log:     logger.With("room", code, "peer_id", conn.ID()),
		m:       cfg.Metrics,
		idle:    idle,
		limiter: cfg.Limiter,
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Run joins the room and relays frames until the connection ends. Cleanup
// (leave, notify survivors, close) happens exactly once on every path.
func (s *Session) Run(ctx context.Context) error {
	defer s.cleanup()

	count, err := s.rooms.Join(s.code, s.conn)
	if err != nil {
		return fmt.Errorf("join room %q: %w", s.code, err)
	}
	s.joined = true
	s.setState(StateJoined)
	s.m.Inc(metrics.SessionOpened)
	s.log.Info("peer joined", "count", count)

	s.bc.BroadcastPeerCount(s.code)

	err = s.receiveLoop(ctx)
	s.setState(StateClosing)
	return err
}

func (s *Session) receiveLoop(ctx context.Context) error {
	probed := false
	for {
		if probed {
			s.setState(StateProbing)
		} else {
			s.setState(StateReceiving)
		}

		frame, err := s.conn.Receive(ctx, s.idle)
		switch {
		case err == nil:
		case errors.Is(err, ErrIdleTimeout):
			if probed {
				s.m.Inc(metrics.LivenessProbeUnanswered)
				s.log.Info("peer unresponsive", "reason", "idle timeout")
				_ = s.conn.CloseWith(websocket.CloseNormalClosure, "idle timeout")
				return errProbeUnanswered
			}
			probed = true
			if err := s.conn.Probe(pingMessage); err != nil {
				s.m.Inc(metrics.LivenessProbeFailed)
				s.log.Info("liveness probe failed", "err", err)
				return fmt.Errorf("send liveness probe: %w", err)
			}
			s.m.Inc(metrics.LivenessProbeSent)
			s.log.Debug("liveness probe sent")
			continue
		case errors.Is(err, ErrDisconnected), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			return err
		}

		probed = false
		if frame.Kind == FrameHeartbeat {
			continue
		}

		if !s.limiter.Allow(1) {
			s.m.Inc(metrics.DropReasonRateLimited)
			s.log.Warn("peer rate limited", "reason", "rate limit exceeded")
			_ = s.conn.CloseWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return errRateLimited
		}

		if frame.Kind == FrameText {
			if typ, ok := messageType(frame.Data); ok {
				s.log.Debug("relaying message", "type", typ)
			} else {
				s.log.Debug("relaying non-json text", "bytes", len(frame.Data))
			}
		} else {
			s.log.Debug("relaying binary", "bytes", len(frame.Data))
		}
		s.bc.Forward(s.code, s.conn, frame)
	}
}

func (s *Session) cleanup() {
	s.cleanupOnce.Do(func() {
		s.setState(StateClosing)
		if s.joined {
			remaining, _ := s.rooms.Leave(s.code, s.conn)
			if remaining > 0 {
				s.bc.BroadcastPeerCount(s.code)
			}
			s.m.Inc(metrics.SessionClosed)
			s.log.Info("peer left", "count", remaining)
		}
		_ = s.conn.Close()
		s.setState(StateClosed)
	})
}
