package scheduler

import (
	"context"
	"fmt"
	"time"

	"bookingsync/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// taskUniqueness matches the sync lock TTL, so at most one queued task
// per appointment exists while a sync could still be running.
const taskUniqueness = 5 * time.Minute

type Client struct {
	client *asynq.Client
	queue  string
}

// SyncEnqueuer is the enqueue surface other modules depend on.
type SyncEnqueuer interface {
	EnqueueSyncAppointment(ctx context.Context, appointmentID int64) error
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueSyncAppointment queues one appointment for background
// synchronization. Task uniqueness keeps a burst of booking events from
// piling up duplicate work.
func (c *Client) EnqueueSyncAppointment(ctx context.Context, appointmentID int64) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewSyncAppointmentTask(SyncAppointmentPayload{AppointmentID: appointmentID})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(5),
		asynq.Unique(taskUniqueness))
	return err
}

// EnqueueSweep queues an immediate backlog sweep.
func (c *Client) EnqueueSweep(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	_, err := c.client.EnqueueContext(ctx, NewSyncSweepTask(), asynq.Queue(c.queue))
	return err
}

func redisClientOpt(redisURL string) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
