package ratelimit

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(clk Clock, limits Limits) *SessionLimiter {
	l := NewSessionLimiter(clk, limits)
	// Make the exhausted-bucket coin flip deterministic: always deny.
	l.coin = func() bool { return false }
	return l
}

func TestAdmit_FirstRequestCreatesStateAndAllows(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := newTestLimiter(clk, Limits{})

	d := l.Admit("session-a")
	if !d.Allowed {
		t.Fatalf("first request should be allowed")
	}
	if got := l.RequestCount("session-a"); got != 1 {
		t.Fatalf("requestCount=%d, want 1", got)
	}
	if got := l.RequestCount("session-b"); got != 0 {
		t.Fatalf("unseen session requestCount=%d, want 0", got)
	}
}

func TestAdmit_GraceWindowThenTokens(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := newTestLimiter(clk, Limits{})

	// With no time advancing at all: the creation request plus the grace
	// window plus the remaining bucket are all allowed deterministically.
	// Creation consumes one token, grace consumes none, so 29 token-paid
	// requests follow the 99 grace-covered ones.
	deterministic := (DefaultGraceRequests - 1) + (DefaultMaxTokens - 1)
	for i := 0; i < deterministic; i++ {
		if d := l.Admit("s"); !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	d := l.Admit("s")
	if d.Allowed {
		t.Fatalf("request after bucket exhaustion should be denied (coin rigged to deny)")
	}
	if d.RetryAfter != time.Second {
		t.Fatalf("RetryAfter=%v, want %v", d.RetryAfter, time.Second)
	}
}

func TestAdmit_GraceWindowIgnoresTiming(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := newTestLimiter(clk, Limits{})

	// No delay between requests: inside the grace window nothing is throttled.
	for i := 0; i < DefaultGraceRequests-1; i++ {
		if d := l.Admit("s"); !d.Allowed {
			t.Fatalf("grace request %d should be allowed", i+1)
		}
	}
}

func TestAdmit_RefillRestoresTokens(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := newTestLimiter(clk, Limits{MaxTokens: 5, RefillPerSecond: 10, GraceRequests: 0, StaleAfter: time.Minute})

	// Creation consumes one token, then drain the remaining 4.
	for i := 0; i < 5; i++ {
		if d := l.Admit("s"); !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if d := l.Admit("s"); d.Allowed {
		t.Fatalf("bucket should be empty")
	}

	// 10 tokens/sec refill, capped at MaxTokens=5.
	clk.Advance(2 * time.Second)
	for i := 0; i < 5; i++ {
		if d := l.Admit("s"); !d.Allowed {
			t.Fatalf("post-refill request %d should be allowed", i+1)
		}
	}
	if d := l.Admit("s"); d.Allowed {
		t.Fatalf("refill must clamp at capacity")
	}
}

func TestAdmit_ExhaustedBucketPassesAboutHalf(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewSessionLimiter(clk, Limits{MaxTokens: 1, RefillPerSecond: 10, GraceRequests: 0, StaleAfter: time.Minute})
	rng := rand.New(rand.NewSource(1))
	l.coin = func() bool { return rng.Float64() < overflowAllowProbability }

	// Drain: creation consumes the only token.
	if d := l.Admit("s"); !d.Allowed {
		t.Fatalf("creation request should be allowed")
	}

	// Clock never advances, so the bucket never refills; every subsequent
	// admit rides on the coin flip alone.
	allowed := 0
	const trials = 1000
	for i := 0; i < trials; i++ {
		if l.Admit("s").Allowed {
			allowed++
		}
	}
	if allowed < 350 || allowed > 650 {
		t.Fatalf("allowed=%d out of %d, want within [350, 650]", allowed, trials)
	}
}

func TestSweep_RemovesOnlyStaleState(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := newTestLimiter(clk, Limits{StaleAfter: 5 * time.Minute})

	l.Admit("stale")
	clk.Advance(4 * time.Minute)
	l.Admit("fresh")
	clk.Advance(90 * time.Second) // stale is now 5m30s old, fresh 1m30s.

	removed := l.Sweep(clk.Now())
	if removed != 1 {
		t.Fatalf("removed=%d, want 1", removed)
	}
	if got := l.RequestCount("stale"); got != 0 {
		t.Fatalf("stale state should be gone, requestCount=%d", got)
	}
	if got := l.RequestCount("fresh"); got != 1 {
		t.Fatalf("fresh state should survive, requestCount=%d", got)
	}
}

func TestSweep_EvictionIsNotABan(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := newTestLimiter(clk, Limits{StaleAfter: time.Minute})

	l.Admit("s")
	clk.Advance(2 * time.Minute)
	l.Sweep(clk.Now())

	// The session id re-enters as unseen: state is recreated and allowed.
	if d := l.Admit("s"); !d.Allowed {
		t.Fatalf("re-entry after eviction should be allowed")
	}
	if got := l.RequestCount("s"); got != 1 {
		t.Fatalf("requestCount=%d, want fresh state with 1", got)
	}
}

func TestAdmit_ConcurrentSameAndDistinctSessions(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := newTestLimiter(clk, Limits{})

	const sessions = 10
	const callsPerSession = 10

	var wg sync.WaitGroup
	for s := 0; s < sessions; s++ {
		id := fmt.Sprintf("session-%d", s)
		for c := 0; c < callsPerSession; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				l.Admit(id)
			}()
		}
	}
	wg.Wait()

	for s := 0; s < sessions; s++ {
		id := fmt.Sprintf("session-%d", s)
		if got := l.RequestCount(id); got != callsPerSession {
			t.Fatalf("session %s requestCount=%d, want %d (lost update)", id, got, callsPerSession)
		}
	}
	if l.Len() != sessions {
		t.Fatalf("Len=%d, want %d", l.Len(), sessions)
	}
}
