package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/event-ticketing/internal/adapters/redis"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

type RateLimiter struct {
	redis  *redisadapter.Cache
	logger observability.Logger
}

func NewRateLimiter(redis *redisadapter.Cache, logger observability.Logger) *RateLimiter {
	return &RateLimiter{redis: redis, logger: logger}
}

// Allow counts a hit against key in a fixed window of length period. When
// redis is unreachable the request is let through.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	fullKey := "rl:" + key

	pipe := rl.redis.Client().Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, period)

	_, err := pipe.Exec(ctx)
	if err != nil {
		rl.logger.WithError(err).Warn("rate limiter unavailable")
		return true
	}

	return incr.Val() <= int64(rate)
}
