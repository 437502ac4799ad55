package metrics

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRecorderWritesPrometheusText(t *testing.T) {
	rec := New()
	rec.ObserveRequest(http.MethodGet, "/api/state", http.StatusOK, 25*time.Millisecond)
	rec.ObserveDispatch("alert.enqueued")
	rec.ObserveDispatch("alert.enqueued")
	rec.AlertPromoted()
	rec.AlertQueueDropped()
	rec.ClientConnected()
	rec.SetBotConnected(true)

	var buf bytes.Buffer
	rec.Write(&buf)
	out := buf.String()

	for _, want := range []string{
		`streamglass_http_requests_total{method="GET",path="/api/state",status="200"} 1`,
		`streamglass_dispatches_total{action="alert.enqueued"} 2`,
		"streamglass_alert_promotions_total 1",
		"streamglass_alert_queue_drops_total 1",
		"streamglass_overlay_clients 1",
		"streamglass_bot_connected 1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRecorderCounters(t *testing.T) {
	rec := New()
	rec.ObserveDispatch("counter.set")
	if got := rec.DispatchCount("counter.set"); got != 1 {
		t.Fatalf("expected dispatch count 1, got %d", got)
	}
	if got := rec.DispatchCount("unknown"); got != 0 {
		t.Fatalf("expected zero for an unseen action, got %d", got)
	}

	rec.ClientConnected()
	rec.ClientConnected()
	rec.ClientDisconnected()
	if got := rec.OverlayClients(); got != 1 {
		t.Fatalf("expected one overlay client, got %d", got)
	}
}

func TestHandlerServesSnapshot(t *testing.T) {
	rec := New()
	rec.AlertDeduped()

	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "streamglass_alert_dedupe_rejected_total 1") {
		t.Fatalf("expected dedupe counter in body:\n%s", w.Body.String())
	}
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	rec := New()
	handler := HTTPMiddleware(rec, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/brew", nil))

	var buf bytes.Buffer
	rec.Write(&buf)
	if !strings.Contains(buf.String(), `streamglass_http_requests_total{method="GET",path="/brew",status="418"} 1`) {
		t.Fatalf("expected the teapot request recorded:\n%s", buf.String())
	}
}

func TestResponseRecorderDefaultsTo200(t *testing.T) {
	w := httptest.NewRecorder()
	rr := NewResponseRecorder(w)
	if _, err := rr.Write([]byte("ok")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if rr.Status() != http.StatusOK {
		t.Fatalf("expected default 200, got %d", rr.Status())
	}
}
