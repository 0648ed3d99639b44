package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// peer is one open relay connection. Writes are serialized per peer so
// concurrent broadcasts from different senders cannot interleave frames.
type peer struct {
	id   string
	conn *websocket.Conn

	mu sync.Mutex
}

// send writes one message with a hard deadline. A slow or unresponsive peer
// fails the write and is skipped by the caller; it must never stall the
// sender's read loop indefinitely.
func (p *peer) send(messageType int, data []byte, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(timeout))
	return p.conn.WriteMessage(messageType, data)
}

// groupRegistry maps session ids to the set of open connections in that
// session's peer group. Empty groups are deleted eagerly so the map only
// ever holds live sessions.
type groupRegistry struct {
	mu     sync.Mutex
	groups map[string]map[*peer]struct{}
}

func newGroupRegistry() *groupRegistry {
	return &groupRegistry{
		groups: make(map[string]map[*peer]struct{}),
	}
}

// add registers p in the session's group. Idempotent; reports whether p was
// newly added.
func (g *groupRegistry) add(sessionID string, p *peer) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	group, ok := g.groups[sessionID]
	if !ok {
		group = make(map[*peer]struct{})
		g.groups[sessionID] = group
	}
	if _, exists := group[p]; exists {
		return false
	}
	group[p] = struct{}{}
	return true
}

// remove drops p from the session's group and reports whether the group
// became empty and was deleted.
func (g *groupRegistry) remove(sessionID string, p *peer) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	group, ok := g.groups[sessionID]
	if !ok {
		return false
	}
	delete(group, p)
	if len(group) == 0 {
		delete(g.groups, sessionID)
		return true
	}
	return false
}

// peersExcept returns a snapshot of the session's group without sender.
// Broadcasting happens outside the registry lock.
func (g *groupRegistry) peersExcept(sessionID string, sender *peer) []*peer {
	g.mu.Lock()
	defer g.mu.Unlock()

	group, ok := g.groups[sessionID]
	if !ok {
		return nil
	}
	out := make([]*peer, 0, len(group))
	for p := range group {
		if p == sender {
			continue
		}
		out = append(out, p)
	}
	return out
}

// groupCount returns the number of live groups.
func (g *groupRegistry) groupCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.groups)
}

// groupSize returns the number of peers in a session's group, 0 when absent.
func (g *groupRegistry) groupSize(sessionID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.groups[sessionID])
}
