package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/fabricflow/internal/app"
	"github.com/odyssey-erp/fabricflow/internal/approval/migration"
	jobmetrics "github.com/odyssey-erp/fabricflow/internal/jobs"
	"github.com/odyssey-erp/fabricflow/internal/notify"
	"github.com/odyssey-erp/fabricflow/internal/orders"
	"github.com/odyssey-erp/fabricflow/internal/platform/cache"
	"github.com/odyssey-erp/fabricflow/internal/platform/db"
	"github.com/odyssey-erp/fabricflow/internal/risk"
	"github.com/odyssey-erp/fabricflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := jobmetrics.NewMetrics(registry)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	client := jobs.NewClient(redisOpts)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	dashboardCache := cache.NewVersioned(redisClient, "fabricflow:dashboard", cfg.DashboardCacheTTL)
	ordersService := orders.NewService(orders.NewRepository(pool, logger), risk.NewClassifier(cfg.Location()), dashboardCache, logger)
	publisher := notify.NewPublisher(redisClient, client, notify.Config{
		Channel:  cfg.AlertChannel,
		EmailTo:  cfg.AlertEmailTo,
		DedupTTL: cfg.AlertDedupTTL,
		Location: cfg.Location(),
	}, logger)
	runner := migration.NewRunner(migration.RunnerConfig{
		Store:     migration.NewPGStore(pool),
		Logger:    logger,
		Timeout:   cfg.MigrationPassTimeout,
		BatchSize: cfg.MigrationBatchSize,
	})

	scanJob := jobs.NewETDAlertScanJob(ordersService, publisher, logger, metrics)
	migrateJob := jobs.NewApprovalMigrateJob(runner, cfg.ApprovalSchemaVersion, logger, metrics)
	emailHandler := notify.NewEmailHandler(logger)

	scanTask, err := jobs.NewETDAlertScanTask("cron")
	if err != nil {
		logger.Error("build etd scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Location:  cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskETDAlertScan, Handler: scanJob.Handle},
			{Type: jobs.TaskApprovalMigrate, Handler: migrateJob.Handle},
			{Type: notify.TaskTypeAlertEmail, Handler: emailHandler.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ETDAlertCron, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
