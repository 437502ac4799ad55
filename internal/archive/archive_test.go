package archive

import (
	"context"
	"testing"

	"streamglass/internal/action"
	"streamglass/internal/models"
	"streamglass/internal/observability/metrics"
	"streamglass/internal/state"
	"streamglass/internal/store"
)

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), "", nil, nil); err == nil {
		t.Fatalf("expected an error for an empty dsn")
	}
}

func TestNilRecorderMiddlewarePassesThrough(t *testing.T) {
	var rec *Recorder

	s := store.New(store.Config{Initial: state.NewTree(state.Options{}), Metrics: metrics.New()})
	s.Use(rec.Middleware())

	alert := models.Alert{ID: "a1", Type: models.AlertFollow, User: "alice"}
	if err := s.Dispatch(action.NewAlertEnqueued(alert)); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if len(s.State().Alerts.Queue) != 1 {
		t.Fatalf("expected the action to reach the reducer, got %+v", s.State().Alerts)
	}
	if err := s.Dispatch(action.NewAlertDismissed("a1")); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
}

func TestNilRecorderCloseIsSafe(t *testing.T) {
	var rec *Recorder
	rec.Close()
}
