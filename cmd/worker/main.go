package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/optimapos/optimapos/internal/app"
	"github.com/optimapos/optimapos/internal/nomenclature"
	"github.com/optimapos/optimapos/internal/nomenclature/currencies"
	"github.com/optimapos/optimapos/internal/nomenclature/taxgroups"
	"github.com/optimapos/optimapos/internal/numbering"
	"github.com/optimapos/optimapos/internal/observability"
	"github.com/optimapos/optimapos/internal/platform/cache"
	"github.com/optimapos/optimapos/internal/platform/db"
	"github.com/optimapos/optimapos/internal/purchases"
	"github.com/optimapos/optimapos/internal/rbac"
	"github.com/optimapos/optimapos/internal/shared"
	"github.com/optimapos/optimapos/internal/workflow"
	"github.com/optimapos/optimapos/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	metrics := observability.NewMetrics()
	registry := nomenclature.NewRegistry()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	rbacService := rbac.NewService(rbac.NewRepository(pool), redisClient)
	currenciesService := currencies.NewService(currencies.NewRepository(pool, registry))
	taxGroupsService := taxgroups.NewService(taxgroups.NewRepository(pool, registry))
	numberingService := numbering.NewService(numbering.NewRepository(pool, registry), redisClient, metrics)

	evaluator := workflow.NewEvaluator(currenciesService, rbacService)
	workflowService := workflow.NewService(workflow.NewRepository(pool, registry), evaluator)

	jobsClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	purchasesService := purchases.NewService(purchases.ServiceDeps{
		Logger:      logger,
		Repo:        purchases.NewRepository(pool),
		Numbering:   numberingService,
		Workflow:    workflowService,
		Taxes:       taxGroupsService,
		Currencies:  currenciesService,
		Audit:       auditLogger,
		Idempotency: idempotencyStore,
		Jobs:        jobsClient,
		Metrics:     metrics,
	})

	handlers := jobs.Handlers(jobs.HandlerDeps{
		Logger:               logger,
		Numbering:            numberingService,
		Workflow:             workflowService,
		Purchases:            purchasesService,
		Idempotency:          idempotencyStore,
		IdempotencyRetention: cfg.IdempotencyRetention,
		ApprovalReminderAge:  cfg.ApprovalReminderAge,
	})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers:  handlers,
		Cron: []jobs.CronRegistration{
			{Spec: "5 0 * * *", Task: jobs.NewNumberingResetCheckTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 8 * * *", Task: jobs.NewApprovalsRemindTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
