package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"streamglass/internal/api"
	"streamglass/internal/observability/metrics"
	"streamglass/internal/state"
	"streamglass/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(store.Config{
		Initial: state.NewTree(state.Options{}),
		Metrics: metrics.New(),
	})
}

func newTestServer(t *testing.T, controlToken string) *Server {
	t.Helper()
	s := newTestStore(t)
	handler := api.NewHandler(s, controlToken)
	srv, err := New(handler, nil, Config{Addr: "127.0.0.1:0", Metrics: metrics.New()})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return srv
}

func waitUntil(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestHealthzReportsDegradedWithoutBot(t *testing.T) {
	srv := newTestServer(t, "")

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Status     string `json:"status"`
		Components []struct {
			Component string `json:"component"`
			Status    string `json:"status"`
		} `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if payload.Status != "degraded" {
		t.Fatalf("expected degraded status while the bot is down, got %q", payload.Status)
	}
	found := false
	for _, c := range payload.Components {
		if c.Component == "bot" {
			found = true
			if c.Status != "degraded" {
				t.Fatalf("expected bot component degraded, got %q", c.Status)
			}
		}
	}
	if !found {
		t.Fatalf("expected a bot component in %+v", payload.Components)
	}
}

func TestStateEndpointReturnsFullTree(t *testing.T) {
	srv := newTestServer(t, "")

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var tree state.Tree
	if err := json.Unmarshal(rec.Body.Bytes(), &tree); err != nil {
		t.Fatalf("decode state tree: %v", err)
	}
	if tree.Alerts == nil || tree.Alerts.MaxVisible != state.DefaultMaxVisible {
		t.Fatalf("expected default alerts slice in response, got %+v", tree.Alerts)
	}
	if tree.Meta == nil || tree.Meta.Version != state.Version {
		t.Fatalf("expected meta version %q, got %+v", state.Version, tree.Meta)
	}
}

func TestTestAlertRequiresToken(t *testing.T) {
	srv := newTestServer(t, "secret")

	body := bytes.NewBufferString(`{"type":"follow","user":"alice"}`)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/alerts/test", body))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestTestAlertEnqueuesThroughStore(t *testing.T) {
	s := newTestStore(t)
	handler := api.NewHandler(s, "secret")
	srv, err := New(handler, nil, Config{Addr: "127.0.0.1:0", Metrics: metrics.New()})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	body := bytes.NewBufferString(`{"type":"follow","user":"alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/alerts/test", body)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID     string `json:"id"`
		Queued bool   `json:"queued"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Queued || resp.ID == "" {
		t.Fatalf("expected queued response with id, got %+v", resp)
	}

	waitUntil(t, time.Second, func() bool {
		alerts := s.State().Alerts
		return len(alerts.Queue)+len(alerts.Active) == 1
	})
}

func TestTestAlertRejectsUnknownType(t *testing.T) {
	srv := newTestServer(t, "secret")

	body := bytes.NewBufferString(`{"type":"confetti"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/alerts/test", body)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", rec.Code)
	}
}

func TestClearAlertsRequiresTokenAndAccepts(t *testing.T) {
	srv := newTestServer(t, "secret")

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/alerts/clear", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/clear", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}

func TestControlEndpointsDisabledWithoutToken(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/clear", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when control token unset, got %d", rec.Code)
	}
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	srv := newTestServer(t, "")

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("streamglass_overlay_clients")) {
		t.Fatalf("expected overlay client gauge in metrics output")
	}
}
