package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(&Config{Namespace: "fleetalert"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_Counter(t *testing.T) {
	c := newTestClient(t)

	counter, err := c.NewCounter("alerts_created_total", "alerts created", []string{"severity"})
	require.NoError(t, err)
	counter.WithLabelValues("RED").Inc()
	counter.WithLabelValues("RED").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(counter.WithLabelValues("RED")))

	_, err = c.NewCounter("alerts_created_total", "dup", []string{"severity"})
	assert.ErrorIs(t, err, ErrMetricExists)
}

func TestClient_Handler(t *testing.T) {
	c := newTestClient(t)

	g, err := c.NewGauge("pending_timers", "pending timers", nil)
	require.NoError(t, err)
	g.WithLabelValues().Set(3)

	h, err := c.NewHistogram("dispatch_seconds", "dispatch latency", []string{"channel"}, nil)
	require.NoError(t, err)
	h.WithLabelValues("email").Observe(0.2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "fleetalert_pending_timers 3"))
	assert.True(t, strings.Contains(body, "fleetalert_dispatch_seconds_count"))
}

func TestClient_Closed(t *testing.T) {
	c, err := New(&Config{Namespace: "x"}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Close(), ErrClientClosed)

	_, err = c.NewCounter("late", "late", nil)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestConfigValidate(t *testing.T) {
	_, err := New(&Config{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&Config{Namespace: "x", HTTPServer: HTTPServerConfig{Enabled: true}}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
