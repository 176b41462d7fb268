package metrics

import "sync"

// Event names. They are exported as the `event` label of the events_total
// counter.
const (
	SessionOpened = "session_opened"
	SessionClosed = "session_closed"

	TextFramesForwarded   = "text_frames_forwarded"
	BinaryFramesForwarded = "binary_frames_forwarded"
	PeerCountBroadcasts   = "peer_count_broadcasts"

	PeerSendFailed = "peer_send_failed"
	PeerEvicted    = "peer_evicted"

	LivenessProbeSent       = "liveness_probe_sent"
	LivenessProbeFailed     = "liveness_probe_failed"
	LivenessProbeUnanswered = "liveness_probe_unanswered"

	DropReasonRateLimited = "rate_limited"

	RoomCodesIssued          = "room_codes_issued"
	WebSocketUpgradeFailed   = "websocket_upgrade_failed"
	TURNRESTCredentialIssued = "turn_rest_credentials_issued"
)

// Metrics is a concurrency-safe counter registry keyed by event name.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += n
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
