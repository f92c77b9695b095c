package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window limiter backed by Redis, for deployments
// where several coordinator instances share limits. Counters are keyed by
// identifier, kind, and window index; Redis expiry replaces sweeping.
type RedisLimiter struct {
	client *redis.Client
	rules  Rules
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, rules Rules) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		rules:  rules,
		now:    time.Now,
	}
}

func (l *RedisLimiter) Check(ctx context.Context, identifier string, kind Kind) (Result, error) {
	rule, ok := l.rules[kind]
	if !ok || rule.Capacity <= 0 {
		return Result{Allowed: true, Remaining: -1}, nil
	}

	now := l.now()
	windowIndex := now.UnixNano() / int64(rule.Window)
	resetAt := time.Unix(0, (windowIndex+1)*int64(rule.Window))
	key := fmt.Sprintf("ratelimit:%s:%s:%d", identifier, kind, windowIndex)

	// Read before counting so a denied request leaves the counter untouched.
	count, err := l.client.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		return Result{}, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	if count >= rule.Capacity {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, resetAt.Add(time.Minute))
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	counted := int(incr.Val())
	if counted > rule.Capacity {
		// Lost the race past capacity; the window is already charged, so
		// report denial with nothing remaining.
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	return Result{
		Allowed:   true,
		Remaining: rule.Capacity - counted,
		ResetAt:   resetAt,
	}, nil
}

// Reset removes all counters for an identifier.
func (l *RedisLimiter) Reset(ctx context.Context, identifier string) error {
	pattern := fmt.Sprintf("ratelimit:%s:*", identifier)

	iter := l.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := l.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}
	return nil
}
