package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vigilexam/proctor-relay/internal/metrics"
)

const wsWriteWait = 1 * time.Second

type Config struct {
	// MaxMessageBytes caps a single signaling message. Exceeding it closes
	// the offending connection.
	MaxMessageBytes int64
	// MaxMessagesPerSecond caps the per-connection inbound message rate.
	MaxMessagesPerSecond int
}

// Server relays signaling messages among the peers of a session.
//
// Each connection is handled independently; a broadcast to one slow peer can
// delay the sender's loop by at most wsWriteWait per peer and never blocks
// other connections.
type Server struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	cfg     Config

	upgrader websocket.Upgrader
	groups   *groupRegistry
}

func NewServer(log *slog.Logger, m *metrics.Metrics, cfg Config) *Server {
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		log:     log,
		metrics: m,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		groups: newGroupRegistry(),
	}
}

// RegisterRoutes mounts the relay on mux. It must only be called during
// startup.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /ws/signal", s)
}

// GroupCount reports the number of live peer groups.
func (s *Server) GroupCount() int {
	return s.groups.groupCount()
}

// GroupSize reports the number of peers in a session's group.
func (s *Server) GroupSize(sessionID string) int {
	return s.groups.groupSize(sessionID)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	p := &peer{id: uuid.NewString(), conn: conn}
	sessionID := ""

	defer func() {
		if sessionID != "" {
			emptied := s.groups.remove(sessionID, p)
			s.metrics.Inc(metrics.EventSignalingPeerLeft)
			s.log.Debug("signaling peer left",
				"peer_id", p.id,
				"session_id", sessionID,
				"group_deleted", emptied,
			)
		}
	}()

	if s.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	limiter := newMessageLimiter(s.cfg.MaxMessagesPerSecond)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				s.metrics.Inc(metrics.EventSignalingMessageTooBig)
			}
			return
		}
		if msgType != websocket.TextMessage {
			// Byte frames carry nothing the relay understands; drop.
			s.metrics.Inc(metrics.EventSignalingDropped)
			continue
		}

		if !limiter.Allow(time.Now()) {
			s.metrics.Inc(metrics.EventSignalingRateLimited)
			writeClose(conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		// Unparseable messages are dropped silently, never answered. This is
		// the relay's contract, not an omission.
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.metrics.Inc(metrics.EventSignalingDropped)
			continue
		}

		if sessionID == "" {
			if env.SessionID == "" {
				// Cannot route until the connection declares a session.
				s.metrics.Inc(metrics.EventSignalingDropped)
				continue
			}
			sessionID = env.SessionID
			s.metrics.Inc(metrics.EventSignalingPeerJoined)
			s.log.Debug("signaling peer joined",
				"peer_id", p.id,
				"session_id", sessionID,
				"type", env.Type,
			)
		}

		// Idempotent membership refresh on every message.
		s.groups.add(sessionID, p)

		s.broadcast(sessionID, p, data)
	}
}

// broadcast forwards data verbatim to every other open connection in the
// session's group. Failed sends are skipped: no queuing, no retry.
func (s *Server) broadcast(sessionID string, sender *peer, data []byte) {
	for _, other := range s.groups.peersExcept(sessionID, sender) {
		if err := other.send(websocket.TextMessage, data, wsWriteWait); err != nil {
			s.metrics.Inc(metrics.EventSignalingSendSkipped)
			continue
		}
		s.metrics.Inc(metrics.EventSignalingRelayed)
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

// messageLimiter is a single-connection token bucket over inbound messages.
// It is only ever used from that connection's read loop, so it needs no lock.
type messageLimiter struct {
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
}

func newMessageLimiter(messagesPerSecond int) *messageLimiter {
	rate := float64(messagesPerSecond)
	return &messageLimiter{
		rate:     rate,
		capacity: rate,
		tokens:   rate,
		last:     time.Now(),
	}
}

func (rl *messageLimiter) Allow(now time.Time) bool {
	if rl.rate <= 0 {
		return true
	}
	elapsed := now.Sub(rl.last).Seconds()
	rl.tokens += elapsed * rl.rate
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.last = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
