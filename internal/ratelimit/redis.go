package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window limiter shared by every instance pointing at
// the same Redis. Each window admits Burst requests and lasts Burst/RPS seconds.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedisLimiter builds a shared limiter. prefix namespaces the counters.
func NewRedisLimiter(client *redis.Client, prefix string, config Config) *RedisLimiter {
	window := time.Second
	if config.RPS > 0 && config.Burst > 0 {
		window = time.Duration(math.Ceil(float64(config.Burst)/config.RPS)) * time.Second
	}
	limit := config.Burst
	if limit <= 0 {
		limit = 1
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Allow increments the counter for the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := time.Now()
	slot := now.UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis incr: %w", err)
	}

	count := int(incr.Val())
	if count > l.limit {
		windowEnd := time.Unix(0, (slot+1)*int64(l.window))
		return Decision{Allowed: false, RetryAfter: windowEnd.Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: l.limit - count}, nil
}
