package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	weberrors "github.com/lk2023060901/fleetalert/pkg/web/errors"
	"github.com/lk2023060901/fleetalert/pkg/web/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Mode = gin.TestMode
	s, err := NewServer(cfg, logger.NewNoop(), opts...)
	require.NoError(t, err)
	return s
}

type snoozeBody struct {
	Duration string `json:"duration" binding:"required,duration"`
	Reason   string `json:"reason"`
}

func TestServer_ResponseEnvelope(t *testing.T) {
	s := newTestServer(t)
	s.Router().GET("/ok", func(c *gin.Context) { Success(c, gin.H{"n": 1}) })
	s.Router().GET("/conflict", func(c *gin.Context) {
		ErrorWithReason(c, weberrors.CodeConflict, "version_conflict", "stale write")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-1")
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "req-1", rec.Header().Get(middleware.HeaderRequestID))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conflict", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "version_conflict", resp.Reason)
	assert.NotEmpty(t, resp.RequestID)
}

func TestBindAndValidate(t *testing.T) {
	s := newTestServer(t)
	s.Router().POST("/snooze", func(c *gin.Context) {
		var body snoozeBody
		if !BindAndValidate(c, &body) {
			return
		}
		Success(c, body)
	})

	for _, tc := range []struct {
		body string
		code int
	}{
		{`{"duration":"24h"}`, http.StatusOK},
		{`{"duration":"7d"}`, http.StatusOK},
		{`{"duration":"soon"}`, http.StatusBadRequest},
		{`{}`, http.StatusBadRequest},
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/snooze", strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, tc.code, rec.Code, tc.body)
	}
}

func TestRecovery(t *testing.T) {
	var reported interface{}
	s := newTestServer(t)
	s.Router().Use(middleware.Recovery(logger.NewNoop(), func(r interface{}) { reported = r }))
	s.Router().GET("/panic", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "boom", reported)
}

func TestRateLimit(t *testing.T) {
	rl := middleware.NewRateLimiter(&middleware.RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             1,
		PerCaller:         true,
		MaxLimiters:       10,
		LimiterTTL:        time.Minute,
	}, logger.NewNoop())
	defer rl.Close()

	s := newTestServer(t, WithMiddleware(middleware.RateLimit(rl)))
	s.Router().GET("/alerts", func(c *gin.Context) { Success(c, nil) })

	do := func(caller string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
		req.Header.Set("X-Caller-ID", caller)
		s.Handler().ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, do("captain-1"))
	assert.Equal(t, http.StatusTooManyRequests, do("captain-1"))
	assert.Equal(t, http.StatusOK, do("dpa-1"))
}

func TestConfigValidate(t *testing.T) {
	_, err := NewServer(&Config{Port: 0, Mode: gin.TestMode}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewServer(&Config{Port: 80, Mode: "prod"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestServer_PanicReporter(t *testing.T) {
	var reported any
	s := newTestServer(t, WithPanicReporter(func(r any) { reported = r }))
	s.Router().GET("/boom", func(c *gin.Context) { panic("nil rule") })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "nil rule", reported)
}
