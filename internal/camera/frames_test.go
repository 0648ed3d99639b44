package camera

import (
	"bytes"
	"testing"
	"time"
)

func TestFrameStore_OverwriteKeepsOnlyLatest(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	s := NewFrameStore(clk, 30*time.Second)

	s.Upsert("s", []byte("frame-1"))
	clk.Advance(time.Second)
	s.Upsert("s", []byte("frame-2"))

	rec, ok := s.Get("s")
	if !ok {
		t.Fatalf("frame missing")
	}
	if !bytes.Equal(rec.Payload, []byte("frame-2")) {
		t.Fatalf("payload=%q, want frame-2 only", rec.Payload)
	}
	if rec.FrameCount != 2 {
		t.Fatalf("FrameCount=%d, want 2", rec.FrameCount)
	}
	if got := len(s.GetAll()); got != 1 {
		t.Fatalf("GetAll len=%d, want 1 (overwrite, not queue)", got)
	}
}

func TestFrameStore_GetAbsentIsNotAnError(t *testing.T) {
	s := NewFrameStore(&fakeClock{}, 30*time.Second)
	if _, ok := s.Get("missing"); ok {
		t.Fatalf("absent session should report ok=false")
	}
}

func TestFrameStore_EvictStaleByWriteTimeOnly(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	s := NewFrameStore(clk, 30*time.Second)

	s.Upsert("s", []byte("frame"))

	// Keep reading the frame; reads must not extend its life.
	for i := 0; i < 4; i++ {
		clk.Advance(10 * time.Second)
		s.Get("s")
	}

	if removed := s.EvictStale(clk.Now()); removed != 1 {
		t.Fatalf("removed=%d, want 1 (freshness is by write time)", removed)
	}
	if _, ok := s.Get("s"); ok {
		t.Fatalf("stale frame should be gone despite recent reads")
	}
}

func TestFrameStore_FreshFrameSurvivesSweep(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	s := NewFrameStore(clk, 30*time.Second)

	s.Upsert("s", []byte("frame"))
	clk.Advance(29 * time.Second)

	if removed := s.EvictStale(clk.Now()); removed != 0 {
		t.Fatalf("removed=%d, want 0", removed)
	}

	// Overwriting resets the write timestamp.
	s.Upsert("s", []byte("frame-2"))
	clk.Advance(29 * time.Second)
	if removed := s.EvictStale(clk.Now()); removed != 0 {
		t.Fatalf("removed=%d, want 0 after rewrite", removed)
	}
	clk.Advance(2 * time.Second)
	if removed := s.EvictStale(clk.Now()); removed != 1 {
		t.Fatalf("removed=%d, want 1", removed)
	}
}

func TestFrameStore_FrameCountRestartsAfterEviction(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	s := NewFrameStore(clk, 30*time.Second)

	s.Upsert("s", []byte("a"))
	s.Upsert("s", []byte("b"))
	clk.Advance(time.Minute)
	s.EvictStale(clk.Now())

	rec := s.Upsert("s", []byte("c"))
	if rec.FrameCount != 1 {
		t.Fatalf("FrameCount=%d, want 1 after eviction", rec.FrameCount)
	}
}
