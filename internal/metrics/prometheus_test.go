package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler(t *testing.T) {
	m := New()
	m.Inc(EventIngestAllowed)
	m.Inc(EventIngestAllowed)
	m.Inc(EventSignalingRelayed)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	if !strings.Contains(text, `proctor_relay_events_total{event="ingest_allowed"} 2`) {
		t.Fatalf("missing ingest_allowed counter:\n%s", text)
	}
	if !strings.Contains(text, `proctor_relay_events_total{event="signaling_messages_relayed"} 1`) {
		t.Fatalf("missing signaling counter:\n%s", text)
	}
	if !strings.Contains(text, "# TYPE proctor_relay_events_total counter") {
		t.Fatalf("missing TYPE line:\n%s", text)
	}
}

func TestMetrics_NilMapSafe(t *testing.T) {
	var m Metrics
	m.Inc("x")
	if got := m.Get("x"); got != 1 {
		t.Fatalf("got=%d, want 1", got)
	}
}
