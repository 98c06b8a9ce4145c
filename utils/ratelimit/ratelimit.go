package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter decides whether an actor may issue another command.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// WindowLimiter counts commands per key in fixed Redis-backed windows.
// Redis failures let the command through (fail-open).
type WindowLimiter struct {
	rdb    *redis.Client
	logger *zap.Logger
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewWindowLimiter allows limit commands per key in each window.
func NewWindowLimiter(rdb *redis.Client, logger *zap.Logger, limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		rdb:    rdb,
		logger: logger,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (l *WindowLimiter) Allow(ctx context.Context, key string) bool {
	bucket := l.bucketKey(key, l.now())

	pipe := l.rdb.Pipeline()
	incr := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, l.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limit check failed, allowing command", zap.String("key", key), zap.Error(err))
		return true
	}

	if incr.Val() > int64(l.limit) {
		l.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", incr.Val()),
			zap.Int("limit", l.limit),
		)
		return false
	}
	return true
}

func (l *WindowLimiter) bucketKey(key string, now time.Time) string {
	secs := int64(l.window / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return fmt.Sprintf("ratelimit:%s:%d", key, now.Unix()/secs)
}

// Unlimited allows everything; used when rate limiting is disabled.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) bool { return true }
