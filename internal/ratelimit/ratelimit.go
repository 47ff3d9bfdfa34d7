package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter answers whether a caller may proceed. Keyed by the caller's
// handle, so the limit follows the identity rather than the connection.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Unlimited is used when no limiter backend is configured
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }

// RedisLimiter is a fixed-window counter in redis: INCR per caller per
// window, first hit sets the expiry. Shared state, so the limit holds
// across service replicas.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRedisLimiter(addr string, limit int64, window time.Duration) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("can't connect to redis at %s. Err: %w", addr, err)
	}

	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
	}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	window := time.Now().Unix() / int64(l.window.Seconds())
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, window)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	if count == 1 {
		// First hit of the window owns the expiry
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("redis error: %w", err)
		}
	}

	return count <= l.limit, nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
