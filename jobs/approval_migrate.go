package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fabricflow/internal/approval"
	"github.com/odyssey-erp/fabricflow/internal/approval/migration"
	jobmetrics "github.com/odyssey-erp/fabricflow/internal/jobs"
)

// MigrationRunner runs approval migration passes.
type MigrationRunner interface {
	Run(ctx context.Context, target int) (migration.Report, error)
}

// ApprovalMigrateJob runs a migration pass from the queue.
type ApprovalMigrateJob struct {
	Runner MigrationRunner
	// Target is used when the payload carries no version.
	Target  int
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewApprovalMigrateJob wires the migration handler with the configured
// schema version as its default target.
func NewApprovalMigrateJob(runner MigrationRunner, target int, logger *slog.Logger, metrics *jobmetrics.Metrics) *ApprovalMigrateJob {
	return &ApprovalMigrateJob{Runner: runner, Target: target, Logger: logger, Metrics: metrics}
}

// Handle executes one pass. A pass already holding the lock is not retried.
func (j *ApprovalMigrateJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Runner == nil {
		return errors.New("approval migrate: handler not configured")
	}
	var payload ApprovalMigratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("approval migrate: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.TargetVersion == 0 {
		payload.TargetVersion = j.Target
	}
	if payload.TargetVersion == 0 {
		payload.TargetVersion = approval.CurrentVersion
	}

	tracker := j.metrics().Track(TaskApprovalMigrate)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	report, err := j.Runner.Run(ctx, payload.TargetVersion)
	j.metrics().AddMigratedRows(string(migration.TableOrders), report.Orders.Migrated)
	j.metrics().AddMigratedRows(string(migration.TableOrderLines), report.Lines.Migrated)
	switch {
	case errors.Is(err, migration.ErrPassInProgress):
		j.logger().Warn("approval migration already running", slog.Int("target_version", payload.TargetVersion))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case errors.Is(err, migration.ErrNoPath):
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case err != nil:
		return err
	}
	return nil
}

func (j *ApprovalMigrateJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskApprovalMigrate))
	}
	return slog.Default().With(slog.String("job", TaskApprovalMigrate))
}

func (j *ApprovalMigrateJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
