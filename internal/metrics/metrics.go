package metrics

import "sync"

// Event counter names. Names are intentionally simple; a follow-up metrics
// task can standardize and export these via OTel.
const (
	EventIngestAllowed          = "ingest_allowed"
	EventIngestRateLimited      = "ingest_rate_limited"
	EventIngestInvalidSession   = "ingest_invalid_session"
	EventFramesStored           = "frames_stored"
	EventConnectionsEvicted     = "connections_evicted"
	EventFramesEvicted          = "frames_evicted"
	EventLimiterStatesEvicted   = "ratelimit_states_evicted"
	EventSignalingRelayed       = "signaling_messages_relayed"
	EventSignalingDropped       = "signaling_messages_dropped"
	EventSignalingPeerJoined    = "signaling_peers_joined"
	EventSignalingPeerLeft      = "signaling_peers_left"
	EventSignalingSendSkipped   = "signaling_sends_skipped"
	EventSignalingRateLimited   = "signaling_rate_limited"
	EventSignalingMessageTooBig = "signaling_message_too_big"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The production platform is expected to plug into a real metrics backend;
// this type keeps the relay's enforcement logic testable while still being
// scrapeable via the Prometheus text endpoint.
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
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
