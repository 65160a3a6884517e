package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// OverdueScanner flips aged AWAITING_RETURN core-exchange orders to
// OVERDUE. A single idempotent statement, safe to rerun; completion still
// happens through the reconciliation engine regardless of overdue state.
type OverdueScanner struct {
	db      execer
	logger  *slog.Logger
	metrics *Metrics
}

// NewOverdueScanner constructs the scanner. metrics may be nil.
func NewOverdueScanner(db execer, logger *slog.Logger, metrics *Metrics) *OverdueScanner {
	return &OverdueScanner{db: db, logger: logger, metrics: metrics}
}

// Run performs one scan with the given age threshold in days.
func (s *OverdueScanner) Run(ctx context.Context, afterDays int) (int64, error) {
	if afterDays <= 0 {
		afterDays = 30
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = 'OVERDUE', updated_at = NOW()
		WHERE status = 'AWAITING_RETURN'
		  AND sale_type = 'CORE_EXCHANGE'
		  AND sale_date < NOW() - make_interval(days => $1)
	`, afterDays)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Handle processes TaskOverdueScan tasks.
func (s *OverdueScanner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload OverdueScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := s.metrics.Track(TaskOverdueScan)
	marked, err := s.Run(ctx, payload.AfterDays)
	if err = tracker.End(err); err != nil {
		if s.logger != nil {
			s.logger.Error("overdue scan failed", slog.Any("error", err))
		}
		return err
	}
	s.metrics.AddOverdueMarked(marked)
	if s.logger != nil {
		s.logger.Info("overdue scan done", slog.Int64("marked", marked), slog.Int("after_days", payload.AfterDays))
	}
	return nil
}
