package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter keeps attempt logs in Redis sorted sets so every instance of
// the API shares the same counters.
//
// One sorted set per (action, client): members are unique attempt ids, scores
// are attempt times in Unix milliseconds. Each Allow prunes, adds and counts in
// one MULTI; an attempt that lands over the limit is removed again. Under heavy
// contention two callers may both observe the set over the limit and both be
// rejected, which errs on the side of throttling.
type RedisLimiter struct {
	client   redis.Cmdable
	policy   Policy
	disabled bool
	now      func() time.Time
	prefix   string
}

// NewRedisLimiter creates a limiter on top of an existing client.
func NewRedisLimiter(client redis.Cmdable, policy Policy, opts Options) (*RedisLimiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("rate limit policy %q: redis client is nil", policy.Action)
	}

	return &RedisLimiter{
		client:   client,
		policy:   policy,
		disabled: opts.Disabled,
		now:      opts.clock(),
		prefix:   "ratelimit:",
	}, nil
}

func (l *RedisLimiter) Policy() Policy { return l.policy }

func (l *RedisLimiter) key(clientKey string) string {
	return l.prefix + counterKey(l.policy.Action, clientKey)
}

func (l *RedisLimiter) Allow(ctx context.Context, clientKey string) (Decision, error) {
	if l.disabled {
		return allowAll(l.policy), nil
	}

	now := l.now()
	key := l.key(clientKey)
	cutoff := now.Add(-l.policy.Window).UnixMilli()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	var card *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		card = pipe.ZCard(ctx, key)
		pipe.PExpire(ctx, key, l.policy.Window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("failed to record attempt for %s: %w", l.policy.Action, err)
	}

	count := int(card.Val())
	if count <= l.policy.MaxAttempts {
		return Decision{Allowed: true, Remaining: l.policy.MaxAttempts - count}, nil
	}

	// Over the limit: the rejected attempt must not occupy the window.
	if err := l.client.ZRem(ctx, key, member).Err(); err != nil {
		return Decision{}, fmt.Errorf("failed to drop rejected attempt for %s: %w", l.policy.Action, err)
	}

	retryAfter := l.policy.Window
	oldest, err := l.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err == nil && len(oldest) == 1 {
		if d := time.UnixMilli(int64(oldest[0].Score)).Add(l.policy.Window).Sub(now); d > 0 {
			retryAfter = d
		}
	}

	return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, clientKey string) error {
	if err := l.client.Del(ctx, l.key(clientKey)).Err(); err != nil {
		return fmt.Errorf("failed to reset %s counter: %w", l.policy.Action, err)
	}
	return nil
}

// NewRedisClient connects to addr and pings it with a short timeout.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return client, nil
}
