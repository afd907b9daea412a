// Package redislock serializes publish attempts per content item with a
// Redis TTL lock, so two concurrent publish requests for the same item do
// not double-post. At-least-once delivery is acceptable; double-posting in
// the same window is not.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const connectionTimeout = 2 * time.Second

// ErrAlreadyLocked is returned when another publish holds the lock.
var ErrAlreadyLocked = errors.New("content is already being published")

// NewClient creates a new Redis client with connection testing
func NewClient(addr, password string, db int) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test Redis connection with timeout
	pingCtx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", pingErr)
	}

	return redisClient, nil
}

// Locker acquires and releases per-content publish locks.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker creates a Locker. The TTL bounds how long a crashed publish can
// hold the lock.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// Acquire takes the lock for one content item. The returned release function
// is safe to call on every exit path; releasing an expired lock is a no-op.
func (l *Locker) Acquire(ctx context.Context, contentID string) (release func(), err error) {
	key := lockKey(contentID)

	ok, err := l.client.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire publish lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", contentID, ErrAlreadyLocked)
	}

	return func() {
		// Best effort: the TTL reclaims the lock if the delete fails.
		releaseCtx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
		defer cancel()
		_ = l.client.Del(releaseCtx, key).Err()
	}, nil
}

func lockKey(contentID string) string {
	return "publisher:lock:" + contentID
}
