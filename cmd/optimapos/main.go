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

	"github.com/optimapos/optimapos/internal/app"
	"github.com/optimapos/optimapos/internal/audit"
	"github.com/optimapos/optimapos/internal/auth"
	"github.com/optimapos/optimapos/internal/nomenclature"
	"github.com/optimapos/optimapos/internal/nomenclature/currencies"
	"github.com/optimapos/optimapos/internal/nomenclature/productclass"
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

	metrics := observability.NewMetrics()
	registry := nomenclature.NewRegistry()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	rbacService := rbac.NewService(rbac.NewRepository(pool), redisClient)
	guard := rbac.Middleware{Source: rbacService, Logger: logger}
	rbacHandler := rbac.NewHandler(logger, rbacService, guard)

	currenciesService := currencies.NewService(currencies.NewRepository(pool, registry))
	currenciesHandler := currencies.NewHandler(logger, currenciesService, guard)

	taxGroupsService := taxgroups.NewService(taxgroups.NewRepository(pool, registry))
	taxGroupsHandler := taxgroups.NewHandler(logger, taxGroupsService, guard)

	productClassService := productclass.NewService(productclass.NewRepository(pool, registry))
	productClassHandler := productclass.NewHandler(logger, productClassService, guard)

	numberingService := numbering.NewService(numbering.NewRepository(pool, registry), redisClient, metrics)
	numberingHandler := numbering.NewHandler(logger, numberingService, guard)

	evaluator := workflow.NewEvaluator(currenciesService, rbacService)
	workflowService := workflow.NewService(workflow.NewRepository(pool, registry), evaluator)
	workflowHandler := workflow.NewHandler(logger, workflowService, guard)

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
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
	purchasesHandler := purchases.NewHandler(logger, purchasesService, guard)

	tokenStore := auth.NewTokenStore(redisClient, cfg.TokenTTL)
	authService := auth.NewService(auth.NewRepository(pool), tokenStore)
	authHandler := auth.NewHandler(logger, authService)

	auditService := audit.NewService(auditLogger, workflowService)
	auditHandler := audit.NewHandler(logger, auditService, guard)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		AuthService:         authService,
		AuthHandler:         authHandler,
		RBACHandler:         rbacHandler,
		CurrenciesHandler:   currenciesHandler,
		TaxGroupsHandler:    taxGroupsHandler,
		ProductClassHandler: productClassHandler,
		NumberingHandler:    numberingHandler,
		WorkflowHandler:     workflowHandler,
		PurchasesHandler:    purchasesHandler,
		AuditHandler:        auditHandler,
		Metrics:             metrics,
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
