package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/sitefund/sitefund/internal/analytics"
	"github.com/sitefund/sitefund/internal/app"
	"github.com/sitefund/sitefund/internal/jobs"
	"github.com/sitefund/sitefund/internal/ledger"
	"github.com/sitefund/sitefund/internal/observability"
	"github.com/sitefund/sitefund/internal/platform/cache"
	"github.com/sitefund/sitefund/internal/platform/db"
	"github.com/sitefund/sitefund/internal/shared"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
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
	jobMetrics := jobs.NewMetrics(metrics.Registerer())

	repo := ledger.NewRepository(pool)
	lock := shared.NewRecalcLock(redisClient, cfg.RecalcLockTTL)
	audit := shared.NewAuditLogger(pool)
	analyticsCache := analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL)
	ledgerService := ledger.NewService(repo, lock, audit, analyticsCache)

	recalcHandler := jobs.NewRecalcHandler(ledgerService, logger, jobMetrics)

	var cron []jobs.CronRegistration
	if cfg.RecalcCron != "" {
		recalcTask, err := jobs.NewRecalcProfitsTask(nil)
		if err != nil {
			logger.Error("build recalc task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.RecalcCron,
			Task:    recalcTask,
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeRecalcProfits, Handler: recalcHandler.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener", slog.Any("error", err))
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
