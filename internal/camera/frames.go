package camera

import (
	"sync"
	"time"
)

// DefaultFrameMaxAge is how old a cached frame may get before eviction,
// measured from write time. Much shorter than the connection TTL: the
// analysis proxy only ever wants a near-live sample.
const DefaultFrameMaxAge = 30 * time.Second

// FrameRecord is the most recent frame snapshot delivered for a session.
type FrameRecord struct {
	SessionID  string    `json:"sessionId"`
	Payload    []byte    `json:"payload"`
	Timestamp  time.Time `json:"timestamp"`
	FrameCount int       `json:"frameCount"`
}

// FrameStore caches the single latest frame per session. Overwrite semantics,
// not a queue: a live feed only needs its newest sample.
type FrameStore struct {
	clock  Clock
	maxAge time.Duration

	mu      sync.Mutex
	entries map[string]*FrameRecord
}

func NewFrameStore(clock Clock, maxAge time.Duration) *FrameStore {
	if clock == nil {
		clock = RealClock{}
	}
	if maxAge <= 0 {
		maxAge = DefaultFrameMaxAge
	}
	return &FrameStore{
		clock:   clock,
		maxAge:  maxAge,
		entries: make(map[string]*FrameRecord),
	}
}

// Upsert replaces the session's frame with payload and returns a snapshot of
// the stored record. FrameCount continues from the prior record.
func (s *FrameStore) Upsert(sessionID string, payload []byte) FrameRecord {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	prevCount := 0
	if prev, ok := s.entries[sessionID]; ok {
		prevCount = prev.FrameCount
	}
	rec := &FrameRecord{
		SessionID:  sessionID,
		Payload:    payload,
		Timestamp:  now,
		FrameCount: prevCount + 1,
	}
	s.entries[sessionID] = rec
	return *rec
}

// Get returns a snapshot of the session's latest frame. Reads do not extend
// the record's life; freshness is judged by write time only.
func (s *FrameStore) Get(sessionID string) (FrameRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[sessionID]
	if !ok {
		return FrameRecord{}, false
	}
	return *rec, true
}

// GetAll returns a snapshot of every cached frame.
func (s *FrameStore) GetAll() []FrameRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]FrameRecord, 0, len(s.entries))
	for _, rec := range s.entries {
		out = append(out, *rec)
	}
	return out
}

// EvictStale removes frames written longer than maxAge ago and reports how
// many were removed.
func (s *FrameStore) EvictStale(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.entries {
		if now.Sub(rec.Timestamp) > s.maxAge {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached frames.
func (s *FrameStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
