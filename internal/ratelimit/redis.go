package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amplimindcc/backend-sub000/internal/errdefs"
)

// RedisLimiter is the sliding-window limiter backed by a Redis sorted set,
// for deployments running more than one instance of the service.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{rdb: rdb, limit: limit, window: window}
}

func (l *RedisLimiter) Admit(ctx context.Context, identity string) error {
	now := time.Now()
	key := "ratelimit:" + identity
	member := strconv.FormatInt(now.UnixNano(), 10)

	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now.Add(-l.window).UnixNano(), 10))
	count := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit check failed: %w", err)
	}

	if count.Val() > int64(l.limit) {
		return fmt.Errorf("identity %q exceeded %d requests per %s: %w",
			identity, l.limit, l.window, errdefs.ErrTooManyRequests)
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, identity string) {
	l.rdb.Del(ctx, "ratelimit:"+identity)
}
