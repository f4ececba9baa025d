package ratelimit

import (
	"context"
	"time"

	"github.com/mandyibene/family-twigs-backend/pkg/cache"
)

// MemoryLimiter keeps attempt logs in process memory.
//
// Each key maps to the timestamps of its allowed attempts, oldest first. The
// underlying cache drops a key once nothing was recorded for a whole window.
type MemoryLimiter struct {
	policy   Policy
	disabled bool
	now      func() time.Time
	logs     *cache.TTLCache[string, []time.Time]
}

// NewMemoryLimiter creates an in-memory limiter. Call Close on shutdown.
func NewMemoryLimiter(policy Policy, opts Options) (*MemoryLimiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	now := opts.clock()
	cleanup := policy.Window
	if cleanup > time.Minute {
		cleanup = time.Minute
	}

	return &MemoryLimiter{
		policy:   policy,
		disabled: opts.Disabled,
		now:      now,
		logs:     cache.NewWithClock[string, []time.Time](policy.Window, cleanup, now),
	}, nil
}

func (l *MemoryLimiter) Policy() Policy { return l.policy }

// Allow applies the sliding window to key.
//
// The whole read-prune-append runs inside one Upsert, under the cache's
// write lock, so two requests from the same client cannot both see
// MaxAttempts-1 and both get through.
//
// Only allowed attempts are appended. A client hammering the endpoint while
// throttled does not push its own unblock time further out; RetryAfter is
// always measured from the oldest attempt still inside the window.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	if l.disabled {
		return allowAll(l.policy), nil
	}

	var decision Decision
	l.logs.Upsert(counterKey(l.policy.Action, key), func(attempts []time.Time, _ bool) ([]time.Time, bool) {
		now := l.now()
		attempts = prune(attempts, now.Add(-l.policy.Window))

		if len(attempts) >= l.policy.MaxAttempts {
			decision = Decision{
				Allowed:    false,
				Remaining:  0,
				RetryAfter: attempts[0].Add(l.policy.Window).Sub(now),
			}
			return attempts, true
		}

		attempts = append(attempts, now)
		decision = Decision{
			Allowed:   true,
			Remaining: l.policy.MaxAttempts - len(attempts),
		}
		return attempts, true
	})

	return decision, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.logs.Delete(counterKey(l.policy.Action, key))
	return nil
}

// Close stops the background eviction.
func (l *MemoryLimiter) Close() {
	l.logs.Close()
}

// prune drops attempts at or before cutoff. An attempt exactly one window
// old is out, matching the Redis backend's ZREMRANGEBYSCORE upper bound.
// The returned slice does not alias the input.
func prune(attempts []time.Time, cutoff time.Time) []time.Time {
	kept := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
