package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookingsync/internal/credentials"
	"bookingsync/internal/events"
	apphttp "bookingsync/internal/http"
	"bookingsync/internal/http/router"
	"bookingsync/internal/remonline"
	"bookingsync/internal/scheduler"
	appsync "bookingsync/internal/sync"
	"bookingsync/internal/webhook"
	"bookingsync/platform/config"
	"bookingsync/platform/db"
	"bookingsync/platform/lock"
	"bookingsync/platform/logger"
	"bookingsync/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env, cfg.LogLevel)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("invalid redis url", "error", err)
		panic("invalid redis url: " + err.Error())
	}
	redisClient := redis.NewClient(redisOpt)
	defer redisClient.Close()

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	// CRM access layer shared by both directions of the integration.
	crm := remonline.New(cfg.CRMBaseURL, log)
	tokens := credentials.NewManager(credentials.NewPGStore(pool), crm, cfg.CRMAPIKey, cfg.CRMSeedToken, cfg.AutoRefreshToken, log)
	if cfg.AutoRefreshToken {
		if _, err := tokens.Token(ctx); err != nil {
			log.Warn("startup token check failed, continuing with lazy refresh", "error", err)
		}
	}

	locker := lock.New(redisClient, "sync:appointment", cfg.LockTTL)

	// Booking events enqueue background tasks; the scheduler binary runs them.
	queue, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to create task queue client", "error", err)
		panic("failed to create task queue client: " + err.Error())
	}
	defer queue.Close()

	// Outbound: booking -> CRM.
	syncRepo := appsync.NewRepository(pool)
	resolver := appsync.NewResolver(crm, tokens, log)
	orders := appsync.NewOrderCreator(crm, tokens, cfg, log)
	syncService := appsync.NewService(syncRepo, resolver, orders, locker, eventBus, cfg, log)
	syncService.RegisterHandlers(eventBus, queue)
	syncModule := appsync.NewModule(appsync.NewHandler(syncService, val, cfg.WebhookSecret, log))

	// Inbound: CRM -> booking.
	webhookService := webhook.NewService(webhook.NewRepository(pool), eventBus, log)
	webhookModule := webhook.NewModule(webhook.NewHandler(webhookService, tokens, val, cfg.WebhookSecret, log))

	engine := router.New(cfg, log, db.NewPoolAdapter(pool), []apphttp.Module{
		syncModule,
		webhookModule,
	})

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
