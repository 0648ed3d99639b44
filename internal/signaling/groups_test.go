package signaling

import "testing"

func TestGroupRegistry_AddIsIdempotent(t *testing.T) {
	g := newGroupRegistry()
	p := &peer{id: "p1"}

	if !g.add("s", p) {
		t.Fatalf("first add should report newly added")
	}
	if g.add("s", p) {
		t.Fatalf("second add should be a no-op")
	}
	if got := g.groupSize("s"); got != 1 {
		t.Fatalf("groupSize=%d, want 1", got)
	}
}

func TestGroupRegistry_RemoveDeletesEmptyGroup(t *testing.T) {
	g := newGroupRegistry()
	p1 := &peer{id: "p1"}
	p2 := &peer{id: "p2"}
	g.add("s", p1)
	g.add("s", p2)

	if g.remove("s", p1) {
		t.Fatalf("group with a remaining peer must not be deleted")
	}
	if g.groupCount() != 1 {
		t.Fatalf("groupCount=%d, want 1", g.groupCount())
	}
	if !g.remove("s", p2) {
		t.Fatalf("removing the last peer must delete the group")
	}
	if g.groupCount() != 0 {
		t.Fatalf("groupCount=%d, want 0 (no lingering empty groups)", g.groupCount())
	}
}

func TestGroupRegistry_PeersExceptSkipsSender(t *testing.T) {
	g := newGroupRegistry()
	p1 := &peer{id: "p1"}
	p2 := &peer{id: "p2"}
	g.add("s", p1)
	g.add("s", p2)

	peers := g.peersExcept("s", p1)
	if len(peers) != 1 || peers[0] != p2 {
		t.Fatalf("peersExcept=%v, want only p2", peers)
	}
	if got := g.peersExcept("absent", p1); got != nil {
		t.Fatalf("absent session should yield nil, got %v", got)
	}
}
