package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mandyibene/family-twigs-backend/pkg/metrics"
	"github.com/mandyibene/family-twigs-backend/repository"
)

// SessionReaper periodically deletes sessions whose expiry has passed.
//
// Expired rows are already unusable; the reaper only reclaims space. The first
// sweep runs on Start, then one per interval. A failed sweep is logged and the
// next tick tries again.
type SessionReaper interface {
	Start(ctx context.Context)
	// Stop cancels the loop and waits for an in-flight sweep to return.
	Stop()
	// RunOnce performs a single sweep and returns the number of rows removed.
	RunOnce(ctx context.Context) (int64, error)
}

type sessionReaper struct {
	sessions repository.SessionRepository
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu     sync.Mutex // Start/Stop
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSessionReaper builds a reaper; timeout bounds each sweep. now may be nil.
func NewSessionReaper(
	sessions repository.SessionRepository,
	interval, timeout time.Duration,
	logger *slog.Logger,
	m *metrics.Metrics,
	now func() time.Time,
) SessionReaper {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &sessionReaper{
		sessions: sessions,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
		now:      now,
	}
}

func (r *sessionReaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	r.logger.Info("[reaper] starting", "interval", r.interval.String(), "timeout", r.timeout.String())

	go func(done chan struct{}) {
		defer close(done)

		r.sweep(loopCtx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.sweep(loopCtx)
			case <-loopCtx.Done():
				r.logger.Info("[reaper] stopped")
				return
			}
		}
	}(r.done)
}

func (r *sessionReaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *sessionReaper) RunOnce(ctx context.Context) (int64, error) {
	sweepCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.sessions.DeleteExpired(sweepCtx, r.now())
	r.metrics.Sweep(n, err)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired sessions: %w", err)
	}
	return n, nil
}

func (r *sessionReaper) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := r.RunOnce(ctx)
	if err != nil {
		r.logger.Error("[reaper] sweep failed", "op", "reap", "err", err)
		return
	}
	r.logger.Info("[reaper] sweep done", "deleted", n)
}
