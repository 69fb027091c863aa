// Package monitor keeps a remote notebook session alive by checking it on a
// fixed interval and recovering it when it is found unhealthy.
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/nbwarden/internal/health"
	"github.com/xkilldash9x/nbwarden/internal/observability"
)

const releaseTimeout = 30 * time.Second

// Checker reports the current session health.
type Checker interface {
	Check(ctx context.Context) (health.Status, error)
}

// Recoverer re-establishes the session.
type Recoverer interface {
	Recover(ctx context.Context) error
}

// Releaser frees the session handle when the monitor stops.
type Releaser interface {
	Close(ctx context.Context) error
}

// Monitor runs the check and recover loop.
type Monitor struct {
	checker   Checker
	recoverer Recoverer
	releaser  Releaser
	interval  time.Duration
	metrics   *observability.Metrics
	logger    *zap.Logger

	// last holds the latest health.Status; heartbeat is the end of the last completed cycle.
	last      atomic.Pointer[health.Status]
	heartbeat atomic.Int64
	started   atomic.Int64
	checked   atomic.Bool

	releaseOnce sync.Once
}

// New creates a Monitor. releaser may be nil when nothing needs releasing.
func New(checker Checker, recoverer Recoverer, releaser Releaser, interval time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Monitor {
	return &Monitor{
		checker:   checker,
		recoverer: recoverer,
		releaser:  releaser,
		interval:  interval,
		metrics:   metrics,
		logger:    logger.Named("monitor"),
	}
}

// Run checks immediately and then once per interval until ctx is cancelled.
// An unhealthy reading, or a check error, triggers exactly one recovery
// attempt; its outcome never stops the loop. The releaser is closed exactly
// once on return. Run always returns ctx.Err().
func (m *Monitor) Run(ctx context.Context) error {
	defer m.release()
	m.started.Store(time.Now().UnixNano())

	m.logger.Info("Session monitor started.", zap.Duration("interval", m.interval))
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Session monitor stopped.")
			return ctx.Err()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			continue
		}

		m.cycle(ctx)
		timer.Reset(m.interval)
	}
}

// cycle performs one check and, when needed, one recovery.
func (m *Monitor) cycle(ctx context.Context) {
	status, err := m.checker.Check(ctx)
	if ctx.Err() != nil {
		// Interrupted mid-check; this is not a health signal.
		return
	}

	now := time.Now()
	switch {
	case err != nil:
		status = health.Status{Healthy: false, Reason: "check failed: " + err.Error()}
		m.metrics.ObserveCheck(observability.CheckError, now)
		m.logger.Warn("Health check failed.", zap.Bool("healthy", false), zap.Error(err))
	case status.Healthy:
		m.metrics.ObserveCheck(observability.CheckHealthy, now)
		m.logger.Info("Session is healthy.", zap.Bool("healthy", true), zap.String("reason", status.Reason))
	default:
		m.metrics.ObserveCheck(observability.CheckUnhealthy, now)
		m.logger.Warn("Session is unhealthy.", zap.Bool("healthy", false), zap.String("reason", status.Reason))
	}
	m.last.Store(&status)
	m.checked.Store(true)

	if !status.Healthy {
		m.recover(ctx)
	}
	m.heartbeat.Store(time.Now().UnixNano())
}

func (m *Monitor) recover(ctx context.Context) {
	m.logger.Info("Starting session recovery.")
	start := time.Now()
	if err := m.recoverer.Recover(ctx); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			m.logger.Info("Session recovery interrupted.")
			return
		}
		m.logger.Error("Session recovery failed.", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	m.logger.Info("Session recovery finished.", zap.Duration("elapsed", time.Since(start)))
}

func (m *Monitor) release() {
	m.releaseOnce.Do(func() {
		if m.releaser == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := m.releaser.Close(ctx); err != nil {
			m.logger.Warn("Failed to release session.", zap.Error(err))
			return
		}
		m.logger.Info("Session released.")
	})
}

// Status returns the latest health reading and whether any check has completed.
func (m *Monitor) Status() (health.Status, bool) {
	if !m.checked.Load() {
		return health.Status{}, false
	}
	return *m.last.Load(), true
}

// LastCycle returns the completion time of the latest cycle. Before the first
// cycle completes it returns the time Run started, and zero before that.
func (m *Monitor) LastCycle() time.Time {
	ns := m.heartbeat.Load()
	if ns == 0 {
		ns = m.started.Load()
	}
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
