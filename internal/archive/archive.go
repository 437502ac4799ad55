// Package archive records dismissed alerts to Postgres for post-stream
// review. The archive is optional (no DSN, no archive) and strictly off the
// dispatch path: inserts run on their own goroutine and failures only feed
// the metrics recorder.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"streamglass/internal/action"
	"streamglass/internal/models"
	"streamglass/internal/observability/metrics"
	"streamglass/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS alert_history (
    id           TEXT        NOT NULL,
    type         TEXT        NOT NULL,
    platform     TEXT        NOT NULL,
    username     TEXT        NOT NULL,
    amount       BIGINT      NOT NULL DEFAULT 0,
    currency     TEXT        NOT NULL DEFAULT '',
    message      TEXT        NOT NULL DEFAULT '',
    occurred_at  TIMESTAMPTZ NOT NULL,
    dismissed_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (id, dismissed_at)
)
`

// insertTimeout bounds one archive write.
const insertTimeout = 5 * time.Second

// Recorder writes alert rows through a pgx connection pool.
type Recorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	rec    *metrics.Recorder
}

// Open connects to Postgres using the provided DSN and bootstraps the
// alert_history table.
func Open(ctx context.Context, dsn string, logger *slog.Logger, rec *metrics.Recorder) (*Recorder, error) {
	if dsn == "" {
		return nil, fmt.Errorf("archive: postgres dsn required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.Default()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: open postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ensure schema: %w", err)
	}
	return &Recorder{pool: pool, logger: logger.With("component", "archive"), rec: rec}, nil
}

// Close releases the pool.
func (r *Recorder) Close() {
	if r != nil && r.pool != nil {
		r.pool.Close()
	}
}

// Middleware captures the dismissed alert from the pre-commit state — the
// reducer removes it from the tree during commit — and archives it
// asynchronously. A nil Recorder yields a pass-through middleware so wiring
// stays unconditional in main.
func (r *Recorder) Middleware() store.Middleware {
	return func(api store.API, next store.Next) store.Next {
		return func(a action.Action) error {
			if r == nil || a.Type != action.TypeAlertDismissed {
				return next(a)
			}
			var dismissed *models.Alert
			for _, candidate := range api.State().Alerts.Active {
				if candidate.ID == a.AlertID {
					copied := candidate
					dismissed = &copied
					break
				}
			}
			err := next(a)
			if err == nil && dismissed != nil {
				go r.insert(*dismissed, a.OccurredAt)
			}
			return err
		}
	}
}

func (r *Recorder) insert(alert models.Alert, dismissedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()
	_, err := r.pool.Exec(ctx, `
INSERT INTO alert_history (id, type, platform, username, amount, currency, message, occurred_at, dismissed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id, dismissed_at) DO NOTHING
`, alert.ID, string(alert.Type), string(alert.Platform), alert.User,
		alert.Amount.MinorUnits(), alert.Currency, alert.Message,
		alert.Timestamp.UTC(), dismissedAt.UTC())
	if err != nil {
		r.rec.ArchiveFailure()
		r.logger.Warn("alert archive insert failed", "alert_id", alert.ID, "error", err)
	}
}
