// Package ratelimit contains per-session admission control for the camera
// ingestion path.
package ratelimit

import (
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultMaxTokens       = 30
	DefaultRefillPerSecond = 10
	DefaultGraceRequests   = 100
	DefaultStaleAfter      = 5 * time.Minute

	// refillInterval is the accounting unit for refill: RefillPerSecond tokens
	// are added per refillInterval of elapsed time.
	refillInterval = time.Second

	// overflowAllowProbability is the chance an over-budget request is let
	// through anyway. Soft degradation: for a live camera feed, occasionally
	// admitting an over-rate status ping beats cutting the feed's heartbeat.
	overflowAllowProbability = 0.5

	// denyRetryAfter is the backoff hint returned with a deny.
	denyRetryAfter = time.Second
)

// Limits holds the tunable knobs of SessionLimiter. Zero values fall back to
// the defaults above.
type Limits struct {
	// MaxTokens is the bucket capacity per session.
	MaxTokens int
	// RefillPerSecond is the sustained admission rate per session.
	RefillPerSecond int
	// GraceRequests is the size of the initial unconditional-allow window.
	// A mobile device reconnecting mid-exam bursts status updates; the grace
	// window keeps that handshake burst from ever being throttled.
	GraceRequests int
	// StaleAfter is how long a session's limiter state survives without any
	// request before Sweep removes it.
	StaleAfter time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.MaxTokens <= 0 {
		l.MaxTokens = DefaultMaxTokens
	}
	if l.RefillPerSecond <= 0 {
		l.RefillPerSecond = DefaultRefillPerSecond
	}
	if l.GraceRequests < 0 {
		l.GraceRequests = DefaultGraceRequests
	}
	if l.StaleAfter <= 0 {
		l.StaleAfter = DefaultStaleAfter
	}
	return l
}

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed bool
	// RetryAfter is a backoff hint, set only on deny.
	RetryAfter time.Duration
}

type sessionState struct {
	tokens       float64
	lastRefill   time.Time
	requestCount int
	lastRequest  time.Time
}

// SessionLimiter is a token-bucket admission controller keyed by session id.
//
// All methods are safe for concurrent use, including concurrent calls for the
// same session id; per-session state updates are serialized by the limiter's
// mutex.
type SessionLimiter struct {
	clock  Clock
	limits Limits

	// coin reports whether an over-budget request wins the probabilistic
	// pass-through. Injectable for deterministic tests.
	coin func() bool

	mu       sync.Mutex
	sessions map[string]*sessionState
}

func NewSessionLimiter(clock Clock, limits Limits) *SessionLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	return &SessionLimiter{
		clock:  clock,
		limits: limits.withDefaults(),
		coin: func() bool {
			return rand.Float64() < overflowAllowProbability
		},
		sessions: make(map[string]*sessionState),
	}
}

// Admit decides whether one request for sessionID is allowed right now.
//
// The first request for an unseen session creates state with one token
// already consumed. Requests inside the grace window are allowed without any
// token accounting. Beyond the grace window the bucket refills at
// RefillPerSecond up to MaxTokens and each allowed request costs one token;
// an empty bucket still admits with probability overflowAllowProbability.
func (l *SessionLimiter) Admit(sessionID string) Decision {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.sessions[sessionID]
	if !ok {
		l.sessions[sessionID] = &sessionState{
			tokens:       float64(l.limits.MaxTokens) - 1,
			lastRefill:   now,
			requestCount: 1,
			lastRequest:  now,
		}
		return Decision{Allowed: true}
	}

	st.requestCount++
	st.lastRequest = now

	if st.requestCount < l.limits.GraceRequests {
		return Decision{Allowed: true}
	}

	elapsed := now.Sub(st.lastRefill)
	if elapsed > 0 {
		refill := elapsed.Seconds() / refillInterval.Seconds() * float64(l.limits.RefillPerSecond)
		st.tokens += refill
		if st.tokens > float64(l.limits.MaxTokens) {
			st.tokens = float64(l.limits.MaxTokens)
		}
	}
	st.lastRefill = now

	if st.tokens > 0 {
		st.tokens--
		return Decision{Allowed: true}
	}

	if l.coin() {
		return Decision{Allowed: true}
	}
	return Decision{Allowed: false, RetryAfter: denyRetryAfter}
}

// RequestCount returns how many requests have been admitted-checked for the
// session, or 0 for an unseen session.
func (l *SessionLimiter) RequestCount(sessionID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.sessions[sessionID]
	if !ok {
		return 0
	}
	return st.requestCount
}

// Sweep removes limiter state for sessions whose last request is older than
// StaleAfter and reports how many entries were removed.
func (l *SessionLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, st := range l.sessions {
		if now.Sub(st.lastRequest) > l.limits.StaleAfter {
			delete(l.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions.
func (l *SessionLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}
