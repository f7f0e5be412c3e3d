package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/odyssey-erp/fabricflow/internal/approval"
)

// Phase is the state of a migration pass.
type Phase string

const (
	PhaseNotMigrated Phase = "NOT_MIGRATED"
	PhaseMigrating   Phase = "MIGRATING"
	PhaseMigrated    Phase = "MIGRATED"
	PhaseFailed      Phase = "FAILED"
)

// Table names the two kinds of rows that own approval maps.
type Table string

const (
	TableOrders     Table = "orders"
	TableOrderLines Table = "order_lines"
)

// RowTransform rewrites one stored map. It reports whether the row changed.
type RowTransform func(*approval.StatusMap) (*approval.StatusMap, bool, error)

// Store is the persistence boundary of the runner.
type Store interface {
	// Lock takes the exclusive pass lock. It fails with ErrPassInProgress when held.
	Lock(ctx context.Context) (unlock func(), err error)
	// ListIDs pages row ids of table in ascending order after afterID.
	ListIDs(ctx context.Context, table Table, afterID int64, limit int) ([]int64, error)
	// TransformRow reads, transforms and writes one row atomically.
	TransformRow(ctx context.Context, table Table, id int64, fn RowTransform) (bool, error)
	// RecordPass stores the outcome of a completed pass.
	RecordPass(ctx context.Context, report Report) error
}

// TableReport counts rows of one table.
type TableReport struct {
	Scanned  int `json:"scanned"`
	Migrated int `json:"migrated"`
	Skipped  int `json:"skipped"`
}

// Report summarises a pass.
type Report struct {
	Target     int         `json:"target_version"`
	Phase      Phase       `json:"phase"`
	Orders     TableReport `json:"orders"`
	Lines      TableReport `json:"lines"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// RunnerConfig configures Runner.
type RunnerConfig struct {
	Store     Store
	Logger    *slog.Logger
	Timeout   time.Duration
	BatchSize int
}

// Runner executes one serialized pass over every stored approval map.
type Runner struct {
	store     Store
	logger    *slog.Logger
	timeout   time.Duration
	batchSize int
	clock     func() time.Time

	mu    sync.Mutex
	phase Phase
}

// NewRunner constructs a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	return &Runner{
		store:     cfg.Store,
		logger:    logger,
		timeout:   timeout,
		batchSize: batch,
		clock:     func() time.Time { return time.Now().UTC() },
		phase:     PhaseNotMigrated,
	}
}

// Phase returns the state of the most recent pass.
func (r *Runner) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Runner) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
}

// Run migrates every order and line map to target. Rows are transformed one
// transaction at a time; a failure or timeout stops the pass before the next
// row and leaves already migrated rows in place. Re-running completes the pass.
func (r *Runner) Run(ctx context.Context, target int) (Report, error) {
	if r == nil || r.store == nil {
		return Report{Target: target, Phase: PhaseNotMigrated}, errors.New("migration: runner not configured")
	}
	report := Report{Target: target, Phase: PhaseNotMigrated, StartedAt: r.clock()}
	if _, err := approval.VocabularyFor(target); err != nil {
		return report, fmt.Errorf("%w: %v", ErrNoPath, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	unlock, err := r.store.Lock(ctx)
	if err != nil {
		return report, err
	}
	defer unlock()

	r.setPhase(PhaseMigrating)
	report.Phase = PhaseMigrating
	logger := r.logger.With(slog.Int("target_version", target))
	logger.Info("approval migration pass started")

	transform := func(m *approval.StatusMap) (*approval.StatusMap, bool, error) {
		out, err := Migrate(m, target)
		if err != nil {
			return nil, false, err
		}
		return out, !out.Equal(m), nil
	}

	for _, table := range []Table{TableOrders, TableOrderLines} {
		counts := &report.Orders
		if table == TableOrderLines {
			counts = &report.Lines
		}
		if err := r.migrateTable(ctx, table, transform, counts); err != nil {
			r.setPhase(PhaseFailed)
			report.Phase = PhaseFailed
			report.FinishedAt = r.clock()
			logger.Error("approval migration pass failed",
				slog.String("table", string(table)),
				slog.Any("error", err),
				slog.Int("orders_migrated", report.Orders.Migrated),
				slog.Int("lines_migrated", report.Lines.Migrated),
			)
			return report, err
		}
	}

	report.Phase = PhaseMigrated
	report.FinishedAt = r.clock()
	if err := r.store.RecordPass(ctx, report); err != nil {
		r.setPhase(PhaseFailed)
		report.Phase = PhaseFailed
		return report, fmt.Errorf("migration: record pass: %w", err)
	}
	r.setPhase(PhaseMigrated)
	logger.Info("approval migration pass completed",
		slog.Int("orders_migrated", report.Orders.Migrated),
		slog.Int("orders_skipped", report.Orders.Skipped),
		slog.Int("lines_migrated", report.Lines.Migrated),
		slog.Int("lines_skipped", report.Lines.Skipped),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (r *Runner) migrateTable(ctx context.Context, table Table, fn RowTransform, counts *TableReport) error {
	var after int64
	for {
		ids, err := r.store.ListIDs(ctx, table, after, r.batchSize)
		if err != nil {
			return fmt.Errorf("migration: list %s: %w", table, err)
		}
		if len(ids) == 0 {
			return nil
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("migration: aborted before %s %d: %w", table, id, err)
			}
			changed, err := r.store.TransformRow(ctx, table, id, fn)
			if err != nil {
				return fmt.Errorf("migration: %s %d: %w", table, id, err)
			}
			counts.Scanned++
			if changed {
				counts.Migrated++
			} else {
				counts.Skipped++
			}
			after = id
		}
		if len(ids) < r.batchSize {
			return nil
		}
	}
}
