// Package metrics declares the Prometheus collectors of the auth core.
//
// Collectors are registered on the Registerer given to New so tests can use a
// private registry. All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "family_twigs"

// Refresh outcomes.
const (
	RefreshRotated  = "rotated"
	RefreshRejected = "rejected"
	RefreshFailed   = "failed"
)

// Revocation reasons.
const (
	RevokeLogout    = "logout"
	RevokeLogoutAll = "logout_all"
	RevokeSession   = "revoke"
)

type Metrics struct {
	sessionsIssued  prometheus.Counter
	refreshes       *prometheus.CounterVec
	sessionsRevoked *prometheus.CounterVec
	reaperSweeps    *prometheus.CounterVec
	reaperDeleted   prometheus.Counter
	rateLimitChecks *prometheus.CounterVec
	handler         http.Handler
}

// New registers every collector on reg. When reg is also a Gatherer (as
// *prometheus.Registry is) Handler serves it; otherwise Handler serves the
// default gatherer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	m := &Metrics{
		sessionsIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "issued_total",
			Help:      "Sessions created by login or registration.",
		}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "refreshes_total",
			Help:      "Refresh attempts by outcome.",
		}, []string{"outcome"}),
		sessionsRevoked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "revoked_total",
			Help:      "Sessions removed by an explicit user action.",
		}, []string{"reason"}),
		reaperSweeps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reaper",
			Name:      "sweeps_total",
			Help:      "Expiry sweeps by outcome.",
		}, []string{"outcome"}),
		reaperDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reaper",
			Name:      "deleted_sessions_total",
			Help:      "Expired sessions removed by the reaper.",
		}),
		rateLimitChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "checks_total",
			Help:      "Rate limit decisions by action and outcome.",
		}, []string{"action", "outcome"}),
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.handler = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	} else {
		m.handler = promhttp.Handler()
	}
	return m
}

// NewDefault registers on a fresh registry together with the Go runtime and
// process collectors.
func NewDefault() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return New(reg)
}

// Handler serves the exposition format for GET /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

func (m *Metrics) SessionIssued() {
	if m == nil {
		return
	}
	m.sessionsIssued.Inc()
}

func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Revoked(reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsRevoked.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Sweep(deleted int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.reaperSweeps.WithLabelValues("failed").Inc()
		return
	}
	m.reaperSweeps.WithLabelValues("ok").Inc()
	m.reaperDeleted.Add(float64(deleted))
}

func (m *Metrics) RateLimit(action string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "throttled"
	}
	m.rateLimitChecks.WithLabelValues(action, outcome).Inc()
}
