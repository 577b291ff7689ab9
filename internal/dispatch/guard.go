package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard admits at most one dispatch per request.
type Guard interface {
	// Acquire reports false when a dispatch for the request was already admitted.
	Acquire(ctx context.Context, requestID string) (bool, error)
	// Release forgets the request so it can be dispatched again.
	Release(ctx context.Context, requestID string) error
}

const guardKeyPrefix = "dispatch:"

// RedisGuard records admitted requests with SETNX and a TTL.
type RedisGuard struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisGuard(client redis.Cmdable, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func guardKey(requestID string) string {
	return guardKeyPrefix + requestID
}

func (g *RedisGuard) Acquire(ctx context.Context, requestID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, guardKey(requestID), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dispatch guard acquire %s: %w", requestID, err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, requestID string) error {
	if err := g.client.Del(ctx, guardKey(requestID)).Err(); err != nil {
		return fmt.Errorf("dispatch guard release %s: %w", requestID, err)
	}
	return nil
}
