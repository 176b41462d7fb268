package signaling

import (
	"log/slog"
	"slices"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/room"
)

// SendResult is the outcome of one delivery in a fan-out pass.
type SendResult struct {
	PeerID string
	Err    error
}

// Broadcaster fans frames out to the members of a room.
//
// Delivery is best-effort per peer: a failed send is logged, the peer is
// removed from the room and its connection closed, and the pass continues
// with the remaining members. The evicted peer's Session then performs the
// usual cleanup, which notifies the survivors of the new count.
type Broadcaster struct {
	rooms   *room.Registry[Conn]
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewBroadcaster(rooms *room.Registry[Conn], logger *slog.Logger, m *metrics.Metrics) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{rooms: rooms, log: logger, metrics: m}
}

// BroadcastPeerCount sends {"type":"peers","count":N} to every member of
// code, including the one whose join or leave triggered it. N is read at
// send time.
func (b *Broadcaster) BroadcastPeerCount(code string) []SendResult {
	members := b.rooms.Members(code)
	if len(members) == 0 {
		return nil
	}
	msg := EncodePeerCount(len(members))
	b.metrics.Inc(metrics.PeerCountBroadcasts)
	b.log.Debug("peer count broadcast", "room", code, "count", len(members))

	results := make([]SendResult, 0, len(members))
	for _, peer := range members {
		err := peer.SendText(msg)
		results = append(results, SendResult{PeerID: peer.ID(), Err: err})
		if err != nil {
			b.evict(code, peer, err)
		}
	}
	return results
}

// Forward sends frame verbatim to every member of code except sender.
// Frames from a sender that is no longer a member (evicted, or already left)
// are dropped regardless of how many members remain.
func (b *Broadcaster) Forward(code string, sender Conn, frame Frame) []SendResult {
	if frame.Kind != FrameText && frame.Kind != FrameBinary {
		return nil
	}
	members := b.rooms.Members(code)
	if !slices.Contains(members, sender) {
		return nil
	}

	results := make([]SendResult, 0, len(members)-1)
	for _, peer := range members {
		if peer == sender {
			continue
		}
		var err error
		if frame.Kind == FrameText {
			err = peer.SendText(frame.Data)
		} else {
			err = peer.SendBinary(frame.Data)
		}
		results = append(results, SendResult{PeerID: peer.ID(), Err: err})
		if err != nil {
			b.evict(code, peer, err)
		}
	}
	if len(results) == 0 {
		return nil
	}

	switch frame.Kind {
	case FrameText:
		b.metrics.Inc(metrics.TextFramesForwarded)
	case FrameBinary:
		b.metrics.Inc(metrics.BinaryFramesForwarded)
	}
	return results
}

func (b *Broadcaster) evict(code string, peer Conn, cause error) {
	b.metrics.Inc(metrics.PeerSendFailed)
	b.log.Warn("peer send failed", "room", code, "peer_id", peer.ID(), "err", cause)

	if _, removed := b.rooms.Leave(code, peer); removed {
		b.metrics.Inc(metrics.PeerEvicted)
		b.log.Info("peer evicted", "room", code, "peer_id", peer.ID())
	}
	_ = peer.Close()
}
