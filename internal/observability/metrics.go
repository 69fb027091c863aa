package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "nbwarden"

// Check results recorded by ObserveCheck.
const (
	CheckHealthy   = "healthy"
	CheckUnhealthy = "unhealthy"
	CheckError     = "error"
)

// Metrics groups the keep-alive instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	checksTotal        *prometheus.CounterVec
	sessionHealthy     prometheus.Gauge
	recoveriesTotal    *prometheus.CounterVec
	recoveryDuration   prometheus.Histogram
	stepFailuresTotal  *prometheus.CounterVec
	lastCheckTimestamp prometheus.Gauge
}

// NewMetrics creates the instruments and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "health_checks_total",
				Help:      "Health checks by result (healthy, unhealthy, error).",
			},
			[]string{"result"},
		),
		sessionHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "session_healthy",
			Help:      "Remote session health from the latest check (1 healthy, 0 unhealthy).",
		}),
		recoveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "recoveries_total",
				Help:      "Recovery attempts by outcome (success, failure).",
			},
			[]string{"outcome"},
		),
		recoveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "recovery_duration_seconds",
			Help:      "Wall time of recovery attempts.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		stepFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "recovery_step_failures_total",
				Help:      "Recovery step failures by step.",
			},
			[]string{"step"},
		),
		lastCheckTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_check_timestamp_seconds",
			Help:      "Unix time of the latest completed health check.",
		}),
	}

	reg.MustRegister(
		m.checksTotal,
		m.sessionHealthy,
		m.recoveriesTotal,
		m.recoveryDuration,
		m.stepFailuresTotal,
		m.lastCheckTimestamp,
	)
	return m
}

// ObserveCheck records one health check result.
func (m *Metrics) ObserveCheck(result string, at time.Time) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(result).Inc()
	if result == CheckHealthy {
		m.sessionHealthy.Set(1)
	} else {
		m.sessionHealthy.Set(0)
	}
	m.lastCheckTimestamp.Set(float64(at.Unix()))
}

// ObserveRecovery records one recovery attempt. step is the failing step, empty on success.
func (m *Metrics) ObserveRecovery(duration time.Duration, step string, err error) {
	if m == nil {
		return
	}
	m.recoveryDuration.Observe(duration.Seconds())
	if err != nil {
		m.recoveriesTotal.WithLabelValues("failure").Inc()
		if step == "" {
			step = "unknown"
		}
		m.stepFailuresTotal.WithLabelValues(step).Inc()
		return
	}
	m.recoveriesTotal.WithLabelValues("success").Inc()
}
