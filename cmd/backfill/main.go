// Backfill pushes every unsynchronized appointment into the CRM in one
// pass. It is the operator-driven equivalent of the periodic sweep, meant
// for first-time rollout or recovery after an outage.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookingsync/internal/credentials"
	"bookingsync/internal/events"
	"bookingsync/internal/remonline"
	appsync "bookingsync/internal/sync"
	"bookingsync/platform/config"
	"bookingsync/platform/db"
	"bookingsync/platform/lock"
	"bookingsync/platform/logger"

	"github.com/redis/go-redis/v9"
)

func main() {
	limit := flag.Int("limit", 0, "stop after syncing this many appointments (0 = no limit)")
	dryRun := flag.Bool("dry-run", false, "list unsynchronized appointments without syncing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env, cfg.LogLevel)
	log.Info("starting backfill", "limit", *limit, "dry_run", *dryRun)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
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

	crm := remonline.New(cfg.CRMBaseURL, log)
	tokens := credentials.NewManager(credentials.NewPGStore(pool), crm, cfg.CRMAPIKey, cfg.CRMSeedToken, cfg.AutoRefreshToken, log)

	locker := lock.New(redisClient, "sync:appointment", cfg.LockTTL)
	repo := appsync.NewRepository(pool)
	resolver := appsync.NewResolver(crm, tokens, log)
	orders := appsync.NewOrderCreator(crm, tokens, cfg, log)
	service := appsync.NewService(repo, resolver, orders, locker, events.NewInMemoryBus(log), cfg, log)

	const batchSize = 10

	var processed, synced, failed int
	seen := make(map[int64]bool)

	for {
		olderThan := time.Now().Add(-cfg.SweepMinAge)
		ids, err := repo.UnsyncedAppointments(ctx, olderThan, batchSize)
		if err != nil {
			log.Error("failed to list unsynchronized appointments", "error", err)
			break
		}

		// Persistent failures reappear in the next listing; stop once
		// every remaining candidate has already been attempted.
		remaining := ids[:0]
		for _, id := range ids {
			if !seen[id] {
				remaining = append(remaining, id)
			}
		}
		if len(remaining) == 0 {
			break
		}

		for _, id := range remaining {
			seen[id] = true
			processed++

			if *dryRun {
				fmt.Printf("would sync appointment %d\n", id)
				continue
			}

			if err := service.SyncAppointment(ctx, id); err != nil {
				failed++
				log.WithAppointment(id).Error("backfill sync failed", "error", err)
			} else {
				synced++
			}

			if *limit > 0 && processed >= *limit {
				break
			}
		}

		if *limit > 0 && processed >= *limit {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	fmt.Printf("backfill complete: processed=%d synced=%d failed=%d\n", processed, synced, failed)
	log.Info("backfill complete", "processed", processed, "synced", synced, "failed", failed)
}
