// Package lock provides an expiring-key mutex backed by redis.
// This is part of the platform layer and contains no business logic.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker serializes concurrent work on a string key. The TTL is a safety
// net against crashed holders, not a performance knob: a holder that dies
// without releasing frees the key when the TTL lapses.
type Locker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New creates a Locker over an existing redis client.
func New(client *redis.Client, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Locker{client: client, prefix: prefix, ttl: ttl}
}

// Acquire attempts to take the lock for key. It returns false without
// error when the lock is already held; held locks are expected under
// concurrent triggers and are not a failure.
func (l *Locker) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.redisKey(key), "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %q: %w", key, err)
	}
	return ok, nil
}

// Release frees the lock for key. Releasing an unheld or expired lock is
// a no-op.
func (l *Locker) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("release lock %q: %w", key, err)
	}
	return nil
}

func (l *Locker) redisKey(key string) string {
	return l.prefix + ":" + key
}
