package store

import (
	"log/slog"

	"streamglass/internal/action"
)

// LoggingMiddleware records every action flowing through the store. Register
// it first so it observes the action before anything else touches state. It
// never mutates the action, never swallows it, and never propagates its own
// faults into the dispatch.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dispatch")
	return func(api API, next Next) Next {
		return func(a action.Action) error {
			safeLog(func() {
				logger.Debug("action received", "action", a.Type, "occurred_at", a.OccurredAt)
			})
			err := next(a)
			safeLog(func() {
				meta := api.State().Meta
				if err != nil {
					logger.Error("action rejected", "action", a.Type, "error", err)
					return
				}
				logger.Debug("action applied", "action", a.Type, "action_count", meta.ActionCount)
			})
			return err
		}
	}
}

// safeLog keeps the observer contract: a fault inside logging must never
// break the dispatch.
func safeLog(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}
