package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fabricflow/internal/app"
	"github.com/odyssey-erp/fabricflow/internal/dashboard"
	"github.com/odyssey-erp/fabricflow/internal/documents"
	"github.com/odyssey-erp/fabricflow/internal/finance"
	"github.com/odyssey-erp/fabricflow/internal/observability"
	"github.com/odyssey-erp/fabricflow/internal/orders"
	"github.com/odyssey-erp/fabricflow/internal/platform/cache"
	"github.com/odyssey-erp/fabricflow/internal/platform/db"
	"github.com/odyssey-erp/fabricflow/internal/risk"
	"github.com/odyssey-erp/fabricflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	metrics := observability.NewMetrics()
	classifier := risk.NewClassifier(cfg.Location())
	dashboardCache := cache.NewVersioned(redisClient, "fabricflow:dashboard", cfg.DashboardCacheTTL)

	ordersService := orders.NewService(orders.NewRepository(pool, logger), classifier, dashboardCache, logger).
		WithObserver(metrics)

	var storage documents.Storage
	switch cfg.DocumentStorage {
	case "s3":
		storage, err = documents.NewS3Storage(ctx, documents.S3Config{
			Bucket:   cfg.DocumentBucket,
			Region:   cfg.AWSRegion,
			Endpoint: cfg.S3Endpoint,
			BaseURL:  cfg.DocumentBaseURL,
		})
	default:
		storage, err = documents.NewLocalStorage(cfg.DocumentDir, cfg.DocumentBaseURL)
	}
	if err != nil {
		logger.Error("init document storage", slog.Any("error", err))
		os.Exit(1)
	}
	documentsService := documents.NewService(documents.NewRepository(pool), storage, logger).WithObserver(metrics)

	financeService := finance.NewService(finance.NewRepository(pool), classifier, dashboardCache, logger)
	dashboardService := dashboard.NewService(ordersService, financeService, classifier, dashboardCache, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		OrdersHandler:    orders.NewHandler(logger, ordersService),
		DocumentsHandler: documents.NewHandler(logger, documentsService),
		FinanceHandler:   finance.NewHandler(logger, financeService),
		DashboardHandler: dashboard.NewHandler(logger, dashboardService),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		Readiness: map[string]app.Pinger{
			"postgres": pool,
			"redis":    app.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
