// Command fabricctl runs operational tasks: approval map migrations and
// manual job triggers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fabricflow/cmd/fabricctl/cli"
	"github.com/odyssey-erp/fabricflow/internal/app"
	"github.com/odyssey-erp/fabricflow/internal/approval/migration"
	"github.com/odyssey-erp/fabricflow/internal/platform/db"
	"github.com/odyssey-erp/fabricflow/jobs"
)

const usage = `usage:
  fabricctl approvals migrate [-target N] [-json]   run a pass to N (default APPROVAL_SCHEMA_VERSION)
  fabricctl approvals status [-json]                show the latest pass
  fabricctl jobs trigger etd-scan|approvals [-target N]
  fabricctl jobs stats`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	fs := flag.NewFlagSet(args[0]+" "+args[1], flag.ContinueOnError)
	target := fs.Int("target", cfg.ApprovalSchemaVersion, "approval vocabulary version")
	jsonOut := fs.Bool("json", false, "print JSON")

	switch args[0] {
	case "approvals":
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		pool, err := db.New(ctx, cfg.PGDSN, 2)
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			return 1
		}
		defer pool.Close()
		store := migration.NewPGStore(pool)
		runner := migration.NewRunner(migration.RunnerConfig{
			Store:     store,
			Logger:    logger,
			Timeout:   cfg.MigrationPassTimeout,
			BatchSize: cfg.MigrationBatchSize,
		})
		approvals := cli.NewApprovalsCLI(runner, store)
		opts := cli.ApprovalOptions{Target: *target, JSONOutput: *jsonOut}
		switch args[1] {
		case "migrate":
			return approvals.MigrateCommand(ctx, opts)
		case "status":
			return approvals.StatusCommand(ctx, opts)
		}
	case "jobs":
		jobsCLI := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() {
			if err := jobsCLI.Close(); err != nil {
				logger.Warn("jobs cli close", slog.Any("error", err))
			}
		}()
		switch args[1] {
		case "trigger":
			if len(args) < 3 {
				break
			}
			if err := fs.Parse(args[3:]); err != nil {
				return 2
			}
			name := map[string]string{"etd-scan": jobs.TaskETDAlertScan, "approvals": jobs.TaskApprovalMigrate}[args[2]]
			info, err := jobsCLI.Trigger(ctx, name, *target)
			if err != nil {
				fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
				return 1
			}
			fmt.Printf("enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
			return 0
		case "stats":
			stats, err := jobsCLI.InspectQueues(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
				return 1
			}
			for _, s := range stats {
				fmt.Printf("%-8s pending=%d active=%d scheduled=%d retry=%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
			}
			return 0
		}
	}
	fmt.Fprintln(os.Stderr, usage)
	return 2
}
