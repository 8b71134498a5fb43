package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tradewind-erp/tradewind-erp/internal/observability"
)

// OverdueSweepPayload pins the reference date so retries of the same task
// remain deterministic.
type OverdueSweepPayload struct {
	AsOf time.Time `json:"as_of"`
}

// NewOverdueSweepTask builds a mark-overdue task for the given reference date.
// A zero asOf defers the date to the handler's clock.
func NewOverdueSweepTask(asOf time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(OverdueSweepPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInstallmentsOverdue, body, asynq.Queue(QueueDefault)), nil
}

// OverdueSweeper flips pending installments whose due date has passed.
type OverdueSweeper interface {
	MarkOverdueInstallments(ctx context.Context, now time.Time) (int64, error)
}

// OverdueSweepJob runs the periodic overdue-installment sweep.
type OverdueSweepJob struct {
	sweeper OverdueSweeper
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewOverdueSweepJob constructs the sweep job.
func NewOverdueSweepJob(sweeper OverdueSweeper, logger *slog.Logger, metrics *observability.Metrics) *OverdueSweepJob {
	return &OverdueSweepJob{sweeper: sweeper, logger: logger, metrics: metrics}
}

// Handle processes TaskInstallmentsOverdue tasks.
func (j *OverdueSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload OverdueSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	marked, err := j.sweeper.MarkOverdueInstallments(ctx, asOf)
	if err != nil {
		j.logger.Error("overdue sweep", slog.Any("error", err))
		return err
	}
	j.metrics.OverdueSweepCompleted()
	j.logger.Info("overdue sweep done",
		slog.Time("as_of", asOf),
		slog.Int64("marked", marked))
	return nil
}
