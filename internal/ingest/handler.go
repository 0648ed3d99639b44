// Package ingest is the request/response surface mobile devices use to
// report camera-connection status and deliver frame snapshots.
package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vigilexam/proctor-relay/internal/camera"
	"github.com/vigilexam/proctor-relay/internal/httpserver"
	"github.com/vigilexam/proctor-relay/internal/metrics"
	"github.com/vigilexam/proctor-relay/internal/ratelimit"
)

// streamURLPrefix is the canonical stream location derived for a connected
// camera. Clients may send their own streamUrl but the server-derived value
// wins; the examiner view should never follow an arbitrary client URL.
const streamURLPrefix = "/stream/"

// Admitter decides whether one ingestion request for a session is allowed.
// Satisfied by *ratelimit.SessionLimiter.
type Admitter interface {
	Admit(sessionID string) ratelimit.Decision
}

type Handler struct {
	log      *slog.Logger
	limiter  Admitter
	registry *camera.ConnectionRegistry
	frames   *camera.FrameStore
	metrics  *metrics.Metrics
}

func NewHandler(log *slog.Logger, limiter Admitter, registry *camera.ConnectionRegistry, frames *camera.FrameStore, m *metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.New()
	}
	return &Handler{
		log:      log,
		limiter:  limiter,
		registry: registry,
		frames:   frames,
		metrics:  m,
	}
}

// RegisterRoutes mounts the ingestion surface on mux. It must only be called
// during startup.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/proctoring/camera-status", h.handleCameraStatus)
	mux.HandleFunc("GET /api/proctoring/connections", h.handleListConnections)
	mux.HandleFunc("GET /api/proctoring/connections/{sessionId}", h.handleGetConnection)
	mux.HandleFunc("GET /api/proctoring/frames/{sessionId}", h.handleGetFrame)
}

type cameraStatusRequest struct {
	SessionID *string `json:"sessionId"`
	Connected bool    `json:"connected"`
	StreamURL string  `json:"streamUrl,omitempty"`
	FrameData []byte  `json:"frameData,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

type cameraStatusResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	SessionID  string `json:"sessionId"`
	Timestamp  int64  `json:"timestamp"`
	FrameCount int    `json:"frameCount"`
}

type errorResponse struct {
	Error string `json:"error"`
	// Code carries the diagnostic reason for validation failures.
	Code string `json:"code,omitempty"`
	// RetryAfterMs carries the backoff hint for rate-limit denials.
	RetryAfterMs int64 `json:"retryAfterMs,omitempty"`
}

func (h *Handler) handleCameraStatus(w http.ResponseWriter, r *http.Request) {
	var req cameraStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	code, ok := validateSessionID(req.SessionID)
	if !ok {
		h.metrics.Inc(metrics.EventIngestInvalidSession)
		httpserver.WriteJSON(w, http.StatusBadRequest, errorResponse{
			Error: "invalid session id",
			Code:  string(code),
		})
		return
	}
	sessionID := *req.SessionID

	// Admission control runs before any state mutation: a denied request must
	// leave the registry and frame cache untouched.
	decision := h.limiter.Admit(sessionID)
	if !decision.Allowed {
		h.metrics.Inc(metrics.EventIngestRateLimited)
		w.Header().Set("Retry-After", strconv.FormatInt(int64(decision.RetryAfter.Seconds()), 10))
		httpserver.WriteJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:        "rate limited",
			RetryAfterMs: decision.RetryAfter.Milliseconds(),
		})
		return
	}

	streamURL := ""
	if req.Connected {
		streamURL = streamURLPrefix + sessionID
	}
	state := h.registry.Upsert(sessionID, req.Connected, streamURL)

	if req.Connected && len(req.FrameData) > 0 {
		h.frames.Upsert(sessionID, req.FrameData)
		h.metrics.Inc(metrics.EventFramesStored)
	}

	h.metrics.Inc(metrics.EventIngestAllowed)
	h.log.Debug("camera status updated",
		"session_id", sessionID,
		"connected", req.Connected,
		"frame_count", state.FrameCount,
		"has_frame", len(req.FrameData) > 0,
	)

	httpserver.WriteJSON(w, http.StatusOK, cameraStatusResponse{
		Success:    true,
		Message:    fmt.Sprintf("camera status updated for session %s", sessionID),
		SessionID:  sessionID,
		Timestamp:  state.LastUpdated.UnixMilli(),
		FrameCount: state.FrameCount,
	})
}

type connectionResponse struct {
	Present    bool                    `json:"present"`
	Connection *camera.ConnectionState `json:"connection,omitempty"`
}

type frameResponse struct {
	Present bool                `json:"present"`
	Frame   *camera.FrameRecord `json:"frame,omitempty"`
}

func (h *Handler) handleListConnections(w http.ResponseWriter, r *http.Request) {
	connections := h.registry.GetAll()
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"count":       len(connections),
		"connections": connections,
	})
}

// Absent sessions are a valid empty result, not an error: the examiner view
// polls ids that may simply not have connected yet.
func (h *Handler) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	state, ok := h.registry.Get(sessionID)
	if !ok {
		httpserver.WriteJSON(w, http.StatusOK, connectionResponse{Present: false})
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, connectionResponse{Present: true, Connection: &state})
}

func (h *Handler) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	rec, ok := h.frames.Get(sessionID)
	if !ok {
		httpserver.WriteJSON(w, http.StatusOK, frameResponse{Present: false})
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, frameResponse{Present: true, Frame: &rec})
}
