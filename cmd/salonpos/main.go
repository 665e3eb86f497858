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

	"github.com/rng-salon/salon-pos/cmd/salonpos/cli"
	"github.com/rng-salon/salon-pos/internal/app"
	"github.com/rng-salon/salon-pos/internal/catalog"
	"github.com/rng-salon/salon-pos/internal/checkout"
	"github.com/rng-salon/salon-pos/internal/events"
	"github.com/rng-salon/salon-pos/internal/inventory"
	"github.com/rng-salon/salon-pos/internal/membership"
	"github.com/rng-salon/salon-pos/internal/observability"
	"github.com/rng-salon/salon-pos/internal/orders"
	"github.com/rng-salon/salon-pos/internal/platform/cache"
	"github.com/rng-salon/salon-pos/internal/platform/db"
	"github.com/rng-salon/salon-pos/internal/shared"
	"github.com/rng-salon/salon-pos/jobs"
)

type eventPublisher interface {
	checkout.EventPublisher
	Close() error
}

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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
		code := jobsCLI.Run(ctx, os.Args[2:], os.Stdout)
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
		os.Exit(code)
	}

	dbpool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	catalogCache := catalog.NewCache(redisClient, cfg.CatalogCacheTTL)
	if err := catalogCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("catalog invalidation listener", slog.Any("error", err))
	}
	catalogService := catalog.NewService(catalog.NewRepository(dbpool), catalogCache, logger)
	membershipService := membership.NewService(membership.NewRepository(dbpool), logger)
	orderService := orders.NewService(orders.NewRepository(dbpool), cfg.OrderPrefix, logger)
	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), auditLogger, idempotencyStore)

	var publisher eventPublisher = events.NopPublisher{}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokers, cfg.KafkaOrdersTopic, logger)
	} else {
		logger.Info("kafka brokers not configured, order events disabled")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("event publisher close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	opts := checkout.DefaultOptions()
	opts.EnforceLimits = cfg.EnforceMethodLimits
	checkoutService := checkout.NewService(checkout.Deps{
		Sessions:    checkout.NewRedisStore(redisClient, cfg.SessionTTL),
		Catalog:     catalogService,
		Memberships: membershipService,
		Ledger:      membershipService,
		Orders:      orderService,
		Stock:       inventoryService,
		Idempotency: idempotencyStore,
		Audit:       auditLogger,
		Events:      publisher,
		Tasks:       jobClient,
		Metrics:     metrics,
		Logger:      logger,
	}, opts)
	checkoutHandler := checkout.NewHandler(logger, checkoutService)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		CheckoutHandler: checkoutHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
		Checks: map[string]app.Pinger{
			"postgres": dbpool,
			"redis":    cache.Pinger{Client: redisClient},
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
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
