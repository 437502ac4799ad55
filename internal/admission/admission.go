// Package admission implements the alert admission-control middleware: the
// policy that turns an unbounded, bursty stream of enqueued alerts into an
// orderly, capacity-limited on-screen presentation.
//
// Promotion never happens inside the dispatch that made a slot available —
// the store forbids reentrant dispatch — so the middleware defers one
// alert.activated follow-up per free-slot opportunity. Each activation
// re-enters the middleware after commit, which schedules the next promotion
// until the queue is empty or every slot is taken. Stale activations (the
// head moved, or the cap was reached meanwhile) reduce to no-ops in the
// alerts reducer, so over-scheduling is harmless.
package admission

import (
	"log/slog"

	"streamglass/internal/action"
	"streamglass/internal/models"
	"streamglass/internal/observability/metrics"
	"streamglass/internal/state"
	"streamglass/internal/store"
)

// Middleware builds the admission-control middleware. Register it after
// logging: it reacts to the result of a dispatch, it does not intercept it.
func Middleware(logger *slog.Logger, rec *metrics.Recorder) store.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "admission")
	if rec == nil {
		rec = metrics.Default()
	}
	return func(api store.API, next store.Next) store.Next {
		return func(a action.Action) error {
			if !touchesAdmission(a.Type) {
				return next(a)
			}
			before := api.State().Alerts
			if err := next(a); err != nil {
				return err
			}
			after := api.State().Alerts
			observe(api, a, before, after, logger, rec)
			// One follow-up per trigger; convergence happens through the
			// activated action re-entering this middleware.
			if after.FreeSlots() > 0 && len(after.Queue) > 0 {
				api.Defer(action.NewAlertActivated(after.Queue[0].ID))
			}
			return nil
		}
	}
}

func touchesAdmission(t action.Type) bool {
	switch t {
	case action.TypeAlertEnqueued, action.TypeAlertActivated, action.TypeAlertDismissed, action.TypeAlertCleared:
		return true
	default:
		return false
	}
}

// observe derives pipeline telemetry from the before/after slices. The
// reducer is pure and cannot count, so backpressure and dedupe outcomes are
// reconstructed here from what actually changed. Admitted enqueues also feed
// the activity slice through a deferred activity.added action, keeping the
// feed consistent with the dedupe decision the reducer made.
func observe(api store.API, a action.Action, before, after *state.AlertsState, logger *slog.Logger, rec *metrics.Recorder) {
	switch a.Type {
	case action.TypeAlertEnqueued:
		if before == after {
			rec.AlertDeduped()
			if a.Alert != nil {
				logger.Debug("duplicate alert rejected", "alert_id", a.Alert.ID)
			}
			return
		}
		if len(before.Queue) >= before.MaxQueueSize && len(before.Queue) > 0 {
			rec.AlertQueueDropped()
			logger.Debug("queue full, oldest pending alert dropped", "dropped_id", before.Queue[0].ID)
		}
		if a.Alert != nil {
			api.Defer(action.NewActivityAdded(models.ActivityItem{
				ID:         a.Alert.ID,
				Type:       a.Alert.Type,
				User:       a.Alert.User,
				Summary:    a.Alert.Summary(),
				OccurredAt: a.OccurredAt,
			}))
		}
	case action.TypeAlertActivated:
		if before != after {
			rec.AlertPromoted()
		}
	case action.TypeAlertDismissed:
		if before != after {
			rec.AlertDismissed()
		}
	case action.TypeAlertCleared:
		for range before.Active {
			rec.AlertDismissed()
		}
	}
}
