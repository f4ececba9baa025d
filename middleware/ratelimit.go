package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mandyibene/family-twigs-backend/pkg"
	"github.com/mandyibene/family-twigs-backend/pkg/metrics"
	"github.com/mandyibene/family-twigs-backend/pkg/ratelimit"
)

// RateLimitMiddleware guards one action with one Limiter, keyed by the
// client address clientIP resolves.
type RateLimitMiddleware struct {
	limiter  ratelimit.Limiter
	clientIP *ratelimit.ClientIP
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewRateLimitMiddleware(limiter ratelimit.Limiter, clientIP *ratelimit.ClientIP, m *metrics.Metrics, logger *slog.Logger) *RateLimitMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimitMiddleware{limiter: limiter, clientIP: clientIP, metrics: m, logger: logger}
}

// Require answers 429 with Retry-After once the caller has used up the
// policy's attempts. If the limiter backend itself fails the request goes
// through; the failure is logged.
func (m *RateLimitMiddleware) Require(next http.Handler) http.Handler {
	policy := m.limiter.Policy()
	throttled := pkg.NewCodedError(pkg.ErrThrottled, policy.Code, policy.MessageKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := m.clientIP.Resolve(r)

		decision, err := m.limiter.Allow(r.Context(), ip)
		if err != nil {
			m.logger.Error("[ratelimit] limiter unavailable, allowing request",
				"action", policy.Action, "err", err)
			next.ServeHTTP(w, r)
			return
		}
		m.metrics.RateLimit(policy.Action, decision.Allowed)

		if !decision.Allowed {
			retryAfter := decision.RetryAfterSeconds()
			m.logger.Info("[ratelimit] throttled",
				"action", policy.Action,
				"ip", ip,
				"retry_in", ratelimit.FormatRetryMessage(retryAfter))

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			pkg.Error(w, r, throttled)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(policy.MaxAttempts))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		next.ServeHTTP(w, r)
	})
}
