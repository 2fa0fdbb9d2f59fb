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
	"bookingsync/internal/remonline"
	"bookingsync/internal/scheduler"
	appsync "bookingsync/internal/sync"
	"bookingsync/platform/config"
	"bookingsync/platform/db"
	"bookingsync/platform/lock"
	"bookingsync/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env, cfg.LogLevel)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("invalid redis url", "error", err)
		panic("invalid redis url: " + err.Error())
	}
	redisClient := redis.NewClient(redisOpt)
	defer redisClient.Close()

	eventBus := events.NewInMemoryBus(log)

	crm := remonline.New(cfg.CRMBaseURL, log)
	tokens := credentials.NewManager(credentials.NewPGStore(pool), crm, cfg.CRMAPIKey, cfg.CRMSeedToken, cfg.AutoRefreshToken, log)

	locker := lock.New(redisClient, "sync:appointment", cfg.LockTTL)
	syncRepo := appsync.NewRepository(pool)
	resolver := appsync.NewResolver(crm, tokens, log)
	orders := appsync.NewOrderCreator(crm, tokens, cfg, log)
	syncService := appsync.NewService(syncRepo, resolver, orders, locker, eventBus, cfg, log)

	worker, err := scheduler.NewWorker(cfg, syncService, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	log.Info("scheduler worker running", "queue", cfg.AsynqQueueName, "concurrency", cfg.AsynqConcurrency)
	worker.Run(ctx)
	log.Info("scheduler stopped")
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
