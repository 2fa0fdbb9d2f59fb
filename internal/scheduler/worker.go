package scheduler

import (
	"context"
	"fmt"

	appsync "bookingsync/internal/sync"
	"bookingsync/platform/config"
	"bookingsync/platform/logger"

	"github.com/hibiken/asynq"
)

// sweepCron runs the backlog sweep twice a day.
const sweepCron = "0 6,18 * * *"

type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	sync      *appsync.Service
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, syncService *appsync.Service, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	periodic := asynq.NewScheduler(opt, nil)
	if _, err := periodic.Register(sweepCron, NewSyncSweepTask(), asynq.Queue(queue)); err != nil {
		return nil, fmt.Errorf("register sweep schedule: %w", err)
	}

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		scheduler: periodic,
		mux:       mux,
		sync:      syncService,
		log:       log,
	}

	mux.HandleFunc(TaskSyncAppointment, w.handleSyncAppointment)
	mux.HandleFunc(TaskSyncSweep, w.handleSyncSweep)

	return w, nil
}

func (w *Worker) handleSyncAppointment(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSyncAppointmentPayload(task)
	if err != nil {
		return err
	}
	if payload.AppointmentID <= 0 {
		return fmt.Errorf("invalid appointment id %d", payload.AppointmentID)
	}
	return w.sync.SyncAppointment(ctx, payload.AppointmentID)
}

func (w *Worker) handleSyncSweep(ctx context.Context, _ *asynq.Task) error {
	_, err := w.sync.Sweep(ctx)
	return err
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	if err := w.scheduler.Start(); err != nil {
		w.log.Error("periodic sweep scheduler failed to start", "error", err)
	}

	go func() {
		<-ctx.Done()
		w.scheduler.Shutdown()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
