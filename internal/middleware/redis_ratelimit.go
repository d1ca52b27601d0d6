package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter shares limits across replicas using the GCRA implementation
// in redis_rate. When Redis is unreachable requests are allowed through.
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisRateLimiter builds a limiter whose keys are namespaced by prefix
// (for example "redirect" or "auth") so several limits can share one Redis.
func NewRedisRateLimiter(client *redis.Client, prefix string, config RateLimitConfig) *RedisRateLimiter {
	burst := config.BurstSize
	if burst <= 0 {
		burst = config.RequestsPerMinute
	}
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   config.RequestsPerMinute,
			Burst:  burst,
			Period: time.Minute,
		},
		prefix: "ratelimit:" + prefix + ":",
	}
}

// Take implements Limiter
func (l *RedisRateLimiter) Take(ctx context.Context, key string) Decision {
	res, err := l.limiter.Allow(ctx, l.prefix+key, l.limit)
	if err != nil {
		slog.Warn("redis rate limiter unavailable, allowing request", "key", l.prefix+key, "error", err)
		return Decision{Allowed: true, Limit: l.limit.Rate, Remaining: -1}
	}
	return Decision{
		Allowed:    res.Allowed > 0,
		Limit:      l.limit.Rate,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}
}
