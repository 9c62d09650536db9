package dispatcher

import (
	"context"
	"errors"
	"time"

	"survey-dialer/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisDialLimiter is a fixed-window dial counter shared through Redis, so
// several dispatcher instances together stay under the provider's call rate.
type RedisDialLimiter struct {
	rdb    *redis.Client
	key    string
	limit  int
	window time.Duration
}

func NewRedisDialLimiter(rdb *redis.Client, key string, limit int, window time.Duration) (*RedisDialLimiter, error) {
	if rdb == nil {
		return nil, errors.New("dispatcher: redis client is nil")
	}
	if key == "" {
		key = "survey-dialer:dials"
	}
	if limit <= 0 {
		return nil, errors.New("dispatcher: dial limit must be > 0")
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisDialLimiter{rdb: rdb, key: key, limit: limit, window: window}, nil
}

func (l *RedisDialLimiter) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireWindowSlot(ctx, l.rdb, l.key, l.limit, l.window)
}

func (l *RedisDialLimiter) Release(ctx context.Context) error {
	return utils.ReleaseWindowSlot(ctx, l.rdb, l.key)
}
