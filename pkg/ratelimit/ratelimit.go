// Package ratelimit throttles repeated attempts of one action from one client.
//
// Algorithm: sliding window log. Every allowed attempt records its timestamp;
// an attempt is allowed while fewer than Policy.MaxAttempts timestamps fall
// inside the last Policy.Window. Rejected attempts are not recorded, so the
// window drains on its own and capacity returns Window after the oldest
// recorded attempt.
//
// Two backends implement Limiter:
//   - Memory: per-process, backed by cache.TTLCache. Single-instance deploys.
//   - Redis: one sorted set per key. Shared by every instance behind a load balancer.
//
// The package has no dependency on handlers or services so both the HTTP
// middleware and tests can use it directly.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Policy describes one guarded action.
type Policy struct {
	// Action names the guarded operation and namespaces its counters ("login").
	Action      string
	Window      time.Duration
	MaxAttempts int
	// Code is the machine code sent with a 429 ("TOO_MANY_LOGIN_ATTEMPTS").
	Code string
	// MessageKey is the i18n key of the 429 message ("errors.tooManyLogin").
	MessageKey string
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is zero when Allowed.
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the Retry-After header.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// Limiter counts attempts per client key under a single Policy.
type Limiter interface {
	// Allow records an attempt for key if capacity remains.
	Allow(ctx context.Context, key string) (Decision, error)
	// Reset forgets every recorded attempt for key.
	Reset(ctx context.Context, key string) error
	// Policy returns the policy the limiter enforces.
	Policy() Policy
}

// Options are per-limiter construction options.
type Options struct {
	// Disabled makes Allow always succeed without recording anything.
	Disabled bool
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

func (o Options) clock() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

// Validate rejects policies that cannot throttle anything.
func (p Policy) Validate() error {
	if strings.TrimSpace(p.Action) == "" {
		return fmt.Errorf("rate limit policy: action is required")
	}
	if p.Window <= 0 {
		return fmt.Errorf("rate limit policy %q: window must be positive", p.Action)
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("rate limit policy %q: max attempts must be positive", p.Action)
	}
	return nil
}

func counterKey(action, key string) string {
	return action + "|" + key
}

func allowAll(p Policy) Decision {
	return Decision{Allowed: true, Remaining: p.MaxAttempts}
}

// FormatRetryMessage renders a wait time for logs: 120 → "2 minute(s)", 45 → "45 second(s)".
func FormatRetryMessage(seconds int) string {
	if seconds >= 60 {
		return fmt.Sprintf("%d minute(s)", seconds/60)
	}
	return fmt.Sprintf("%d second(s)", seconds)
}
