package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/fabricflow/internal/approval"
	"github.com/odyssey-erp/fabricflow/internal/approval/migration"
)

// PassRunner runs one migration pass.
type PassRunner interface {
	Run(ctx context.Context, target int) (migration.Report, error)
}

// PassHistory reads recorded passes.
type PassHistory interface {
	LatestPass(ctx context.Context) (*migration.Report, error)
}

// ApprovalsCLI runs approval map migrations outside the worker.
type ApprovalsCLI struct {
	runner  PassRunner
	history PassHistory
}

// NewApprovalsCLI constructs the helper.
func NewApprovalsCLI(runner PassRunner, history PassHistory) *ApprovalsCLI {
	return &ApprovalsCLI{runner: runner, history: history}
}

// ApprovalOptions holds the flags shared by the approvals commands.
type ApprovalOptions struct {
	Target     int
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o *ApprovalOptions) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// Exit codes of the approvals commands.
const (
	ExitOK         = 0
	ExitError      = 1
	ExitInProgress = 3
)

// MigrateCommand runs a pass to opts.Target, or the current version when zero.
// A downgrade is a pass to an older target.
func (c *ApprovalsCLI) MigrateCommand(ctx context.Context, opts ApprovalOptions) int {
	opts.defaults()
	if c == nil || c.runner == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "approvals migrate: runner not configured")
		return ExitError
	}
	target := opts.Target
	if target == 0 {
		target = approval.CurrentVersion
	}
	report, err := c.runner.Run(ctx, target)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "approvals migrate: %v\n", err)
		if errors.Is(err, migration.ErrPassInProgress) {
			return ExitInProgress
		}
		// A failed pass still reports what it migrated before stopping.
		renderReport(opts, report)
		return ExitError
	}
	if err := renderReport(opts, report); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "approvals migrate: %v\n", err)
		return ExitError
	}
	return ExitOK
}

// StatusCommand prints the latest recorded pass.
func (c *ApprovalsCLI) StatusCommand(ctx context.Context, opts ApprovalOptions) int {
	opts.defaults()
	if c == nil || c.history == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "approvals status: history not configured")
		return ExitError
	}
	report, err := c.history.LatestPass(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "approvals status: %v\n", err)
		return ExitError
	}
	if report == nil {
		if opts.JSONOutput {
			_, _ = fmt.Fprintln(opts.Stdout, `{"phase":"NOT_MIGRATED"}`)
		} else {
			_, _ = fmt.Fprintf(opts.Stdout, "No pass recorded. Current vocabulary is v%d.\n", approval.CurrentVersion)
		}
		return ExitOK
	}
	if err := renderReport(opts, *report); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "approvals status: %v\n", err)
		return ExitError
	}
	return ExitOK
}

func renderReport(opts ApprovalOptions, r migration.Report) error {
	if opts.JSONOutput {
		return json.NewEncoder(opts.Stdout).Encode(r)
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Approval maps at v%d: %s\n", r.Target, r.Phase)
	_, _ = fmt.Fprintf(opts.Stdout, " orders: %d scanned, %d migrated, %d unchanged\n", r.Orders.Migrated+r.Orders.Skipped, r.Orders.Migrated, r.Orders.Skipped)
	_, _ = fmt.Fprintf(opts.Stdout, " lines:  %d scanned, %d migrated, %d unchanged\n", r.Lines.Migrated+r.Lines.Skipped, r.Lines.Migrated, r.Lines.Skipped)
	if !r.FinishedAt.IsZero() {
		_, _ = fmt.Fprintf(opts.Stdout, " took %s\n", r.FinishedAt.Sub(r.StartedAt))
	}
	return nil
}
