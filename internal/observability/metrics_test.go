package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	t.Run("checks drive the health gauge", func(t *testing.T) {
		m := NewMetrics(prometheus.NewRegistry())
		now := time.Unix(1700000000, 0)

		m.ObserveCheck(CheckHealthy, now)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionHealthy))

		m.ObserveCheck(CheckError, now)
		m.ObserveCheck(CheckUnhealthy, now)
		assert.Equal(t, 0.0, testutil.ToFloat64(m.sessionHealthy))

		assert.Equal(t, 1.0, testutil.ToFloat64(m.checksTotal.WithLabelValues(CheckHealthy)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.checksTotal.WithLabelValues(CheckError)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.checksTotal.WithLabelValues(CheckUnhealthy)))
		assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.lastCheckTimestamp))
	})

	t.Run("recoveries are split by outcome and failing step", func(t *testing.T) {
		m := NewMetrics(prometheus.NewRegistry())

		m.ObserveRecovery(time.Minute, "", nil)
		m.ObserveRecovery(time.Second, "await_sign_in", errors.New("timed out"))
		m.ObserveRecovery(time.Second, "", errors.New("no step"))

		assert.Equal(t, 1.0, testutil.ToFloat64(m.recoveriesTotal.WithLabelValues("success")))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.recoveriesTotal.WithLabelValues("failure")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.stepFailuresTotal.WithLabelValues("await_sign_in")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.stepFailuresTotal.WithLabelValues("unknown")))
	})

	t.Run("nil metrics are a no-op", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.ObserveCheck(CheckHealthy, time.Now())
			m.ObserveRecovery(time.Second, "", nil)
		})
	})
}
