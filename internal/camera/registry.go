package camera

import (
	"sync"
	"time"
)

// DefaultConnectionIdleTTL is how long a connection entry survives without
// being written or read. Idle-based on purpose; see the package doc.
const DefaultConnectionIdleTTL = 5 * time.Minute

// ConnectionState is the last-write-wins connection status of one session's
// secondary camera.
type ConnectionState struct {
	SessionID    string    `json:"sessionId"`
	Connected    bool      `json:"connected"`
	StreamURL    string    `json:"streamUrl,omitempty"`
	LastUpdated  time.Time `json:"lastUpdated"`
	LastAccessed time.Time `json:"lastAccessed"`
	FrameCount   int       `json:"frameCount"`
}

// ConnectionRegistry tracks ConnectionState per session id.
//
// All methods are safe for concurrent use; read-modify-write per key is
// atomic with respect to concurrent Upsert/Get/EvictStale calls.
type ConnectionRegistry struct {
	clock   Clock
	idleTTL time.Duration

	mu      sync.Mutex
	entries map[string]*ConnectionState
}

func NewConnectionRegistry(clock Clock, idleTTL time.Duration) *ConnectionRegistry {
	if clock == nil {
		clock = RealClock{}
	}
	if idleTTL <= 0 {
		idleTTL = DefaultConnectionIdleTTL
	}
	return &ConnectionRegistry{
		clock:   clock,
		idleTTL: idleTTL,
		entries: make(map[string]*ConnectionState),
	}
}

// Upsert records the latest connection status for sessionID and returns a
// snapshot of the updated state. FrameCount carries over from the prior entry
// and is incremented by one per call; a session evicted in between simply
// restarts at 1.
func (r *ConnectionRegistry) Upsert(sessionID string, connected bool, streamURL string) ConnectionState {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.entries[sessionID]
	if !ok {
		st = &ConnectionState{SessionID: sessionID}
		r.entries[sessionID] = st
	}
	st.Connected = connected
	st.StreamURL = streamURL
	st.LastUpdated = now
	st.LastAccessed = now
	st.FrameCount++

	return *st
}

// Get returns a snapshot of the session's connection state. Reading an entry
// counts as access and refreshes its idle TTL. Absence is a valid result, not
// an error.
func (r *ConnectionRegistry) Get(sessionID string) (ConnectionState, bool) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.entries[sessionID]
	if !ok {
		return ConnectionState{}, false
	}
	st.LastAccessed = now
	return *st, true
}

// GetAll returns a snapshot of every tracked connection state. Listing does
// not refresh idle TTLs.
func (r *ConnectionRegistry) GetAll() []ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ConnectionState, 0, len(r.entries))
	for _, st := range r.entries {
		out = append(out, *st)
	}
	return out
}

// EvictStale removes entries idle longer than the registry's TTL and reports
// how many were removed. Eviction is a storage decision, not a ban: the same
// session id re-enters via Upsert afterwards.
func (r *ConnectionRegistry) EvictStale(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, st := range r.entries {
		if now.Sub(st.LastAccessed) > r.idleTTL {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions.
func (r *ConnectionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
