package metrics

import (
	"testing"

	"github.com/lk2023060901/fleetalert/pkg/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertMetrics(t *testing.T) {
	c, err := prometheus.New(&prometheus.Config{Namespace: "fleetalert_test"}, nil)
	require.NoError(t, err)
	defer c.Close()

	m, err := New(c)
	require.NoError(t, err)

	m.RecordConfigError("unknown_category")
	m.RecordFact(ResultCreated)
	m.RecordTransition("OPEN", "ESCALATED")
	m.RecordDispatch("sms", true)
	m.SetPendingTimers(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfigErrors.WithLabelValues("unknown_category")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FactsEvaluated.WithLabelValues(ResultConfig)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("OPEN", "ESCALATED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchFailures.WithLabelValues("sms")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.PendingTimers.WithLabelValues()))

	// 同一客户端重复注册
	_, err = New(c)
	assert.ErrorIs(t, err, prometheus.ErrMetricExists)
}

func TestNilMetricsIgnored(t *testing.T) {
	var m *AlertMetrics
	assert.NotPanics(t, func() {
		m.RecordFact(ResultNoop)
		m.RecordDBQuery("select", true, 0.01)
		m.SetPendingTimers(1)
	})
}
