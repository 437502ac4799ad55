// Package mirror provides the best-effort persistence middleware: the
// latest-event-per-type slice is copied to one or more external variable
// stores after each commit, and read back at startup so widgets survive a
// restart. Mirror traffic is never on the dispatch or render path; failures
// are logged and forgotten.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"streamglass/internal/action"
	"streamglass/internal/models"
	"streamglass/internal/observability/metrics"
	"streamglass/internal/store"
)

// VariableStore is the write half of an external named-variable store, such
// as the automation bot's global variables or a local Redis.
type VariableStore interface {
	// Set assigns a named variable. Implementations must be safe for
	// concurrent use.
	Set(ctx context.Context, name, value string) error
}

// VariableReader is the read half, used only by the startup restore pass.
// Not every store supports reads: the bot link is fire-and-forget.
type VariableReader interface {
	// Get fetches a named variable; the second result reports presence.
	Get(ctx context.Context, name string) (string, bool, error)
}

// DefaultPrefix namespaces mirrored variables in shared stores.
const DefaultPrefix = "streamglass.latest."

// writeTimeout bounds one fire-and-forget mirror write.
const writeTimeout = 5 * time.Second

// Middleware mirrors the latest-event entry touched by an enqueued alert to
// every target after the reducer commits. The write happens on its own
// goroutine: dispatch never waits on the network.
func Middleware(targets []VariableStore, prefix string, logger *slog.Logger, rec *metrics.Recorder) store.Middleware {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mirror")
	if rec == nil {
		rec = metrics.Default()
	}
	return func(api store.API, next store.Next) store.Next {
		return func(a action.Action) error {
			err := next(a)
			if err != nil || len(targets) == 0 {
				return err
			}
			if a.Type != action.TypeAlertEnqueued || a.Alert == nil || !models.KnownAlertType(a.Alert.Type) {
				return nil
			}
			entry, ok := api.State().Latest.Entries[a.Alert.Type]
			if !ok {
				return nil
			}
			payload, marshalErr := json.Marshal(entry)
			if marshalErr != nil {
				logger.Warn("mirror encode failed", "type", a.Alert.Type, "error", marshalErr)
				return nil
			}
			name := prefix + string(a.Alert.Type)
			for _, target := range targets {
				go write(target, name, string(payload), logger, rec)
			}
			return nil
		}
	}
}

func write(target VariableStore, name, value string, logger *slog.Logger, rec *metrics.Recorder) {
	rec.MirrorWrite()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := target.Set(ctx, name, value); err != nil {
		rec.MirrorFailure()
		logger.Warn("mirror write failed", "variable", name, "error", err)
	}
}

// Restore reads every mirrored latest-event entry and feeds it back into the
// store as latest.restored actions. Missing or malformed entries are skipped;
// restore is best-effort by the same contract as the writes.
func Restore(ctx context.Context, reader VariableReader, prefix string, send func(action.Action) error, logger *slog.Logger) error {
	if reader == nil {
		return fmt.Errorf("mirror: reader is required")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, alertType := range models.AlertTypes() {
		name := prefix + string(alertType)
		value, ok, err := reader.Get(ctx, name)
		if err != nil {
			return fmt.Errorf("mirror: read %s: %w", name, err)
		}
		if !ok {
			continue
		}
		var alert models.Alert
		if err := json.Unmarshal([]byte(value), &alert); err != nil {
			logger.Warn("mirror entry malformed, skipping", "variable", name, "error", err)
			continue
		}
		if err := send(action.NewLatestRestored(action.LatestEntry{Type: alertType, Alert: alert})); err != nil {
			return fmt.Errorf("mirror: restore %s: %w", name, err)
		}
	}
	return nil
}
