package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/access"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/dao"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/ingest"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/lifecycle"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/rule"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/scope"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/service"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/timer"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/web/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqIDs struct{ n atomic.Int64 }

func (g *seqIDs) NextID() (int64, error) { return g.n.Add(1), nil }

// syncIntake 同步处理，便于断言
type syncIntake struct {
	svc *service.Service
	err error
}

func (s *syncIntake) Submit(ctx context.Context, facts []*model.Fact) error {
	if s.err != nil {
		return s.err
	}
	_, err := s.svc.ProcessFacts(ctx, facts)
	return err
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	intake *syncIntake
	ping   error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.Init()

	rules, err := rule.NewRegistry(rule.DefaultTable())
	require.NoError(t, err)
	grants, err := access.NewStaticProvider([]access.Grant{
		{CallerID: "dpa", Role: "DPA", CompanyID: "c-1", FleetWide: true},
		{CallerID: "cap-1", Role: "CAPTAIN", CompanyID: "c-1", VesselID: model.Ptr("v-1")},
		{CallerID: "cap-2", Role: "CAPTAIN", CompanyID: "c-1", VesselID: model.Ptr("v-2")},
		{CallerID: "auditor", Role: "AUDITOR", CompanyID: "c-1", FleetWide: true, ReadOnly: true},
	})
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	store := dao.NewMemoryStore()
	manager := lifecycle.NewManager(nil, store, timer.NewMemoryStore(), rules, &seqIDs{}, logger.NewNoop(),
		lifecycle.WithClock(clock))
	svc := service.New(store, manager, scope.NewResolver(store, clock, logger.NewNoop()), grants, rules, nil, nil, logger.NewNoop(), nil)

	ts := &testServer{t: t, engine: gin.New(), intake: &syncIntake{svc: svc}}
	h := New(svc, ts.intake, map[string]Pinger{
		"store": svc.Ping,
		"redis": func(context.Context) error { return ts.ping },
	}, logger.NewNoop())
	h.Register(ts.engine)
	return ts
}

func (ts *testServer) do(method, path, caller string, body any) (int, envelope) {
	ts.t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(ts.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(HeaderCallerID, caller)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(ts.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (ts *testServer) seed() string {
	ts.t.Helper()
	code, _ := ts.do(http.MethodPost, "/api/v1/facts", "", `[
		{"category":"capa","entity_id":"capa-1","entity_type":"capa","company_id":"c-1","vessel_id":"v-1","attributes":{"days_overdue":4}},
		{"category":"certificate","entity_id":"cert-9","company_id":"c-1","vessel_id":"v-2","attributes":{"days_to_expiry":45}}
	]`)
	require.Equal(ts.t, http.StatusAccepted, code)

	code, env := ts.do(http.MethodGet, "/api/v1/alerts?severity=orange", "cap-1", nil)
	require.Equal(ts.t, http.StatusOK, code)
	var page struct {
		Items []model.View `json:"items"`
	}
	require.NoError(ts.t, json.Unmarshal(env.Data, &page))
	require.Len(ts.t, page.Items, 1)
	return page.Items[0].ID
}

func TestCallerHeaderRequired(t *testing.T) {
	ts := newTestServer(t)
	code, env := ts.do(http.MethodGet, "/api/v1/alerts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, env.Message, HeaderCallerID)

	code, _ = ts.do(http.MethodGet, "/api/v1/alerts", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestFactIntake(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.do(http.MethodPost, "/api/v1/facts", "", "{broken")
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := ts.do(http.MethodPost, "/api/v1/facts", "", `{"category":"capa","entity_id":"capa-1"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Message, "company_id")

	ts.intake.err = ingest.ErrOverloaded
	code, _ = ts.do(http.MethodPost, "/api/v1/facts", "", `{"category":"capa","entity_id":"capa-1","company_id":"c-1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestAlertQueriesAreScoped(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seed()

	code, env := ts.do(http.MethodGet, "/api/v1/alerts/"+id, "cap-1", nil)
	require.Equal(t, http.StatusOK, code)
	var v model.View
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, model.SeverityOrange, v.Severity)
	assert.Equal(t, model.StatusOpen, v.Status)

	code, _ = ts.do(http.MethodGet, "/api/v1/alerts/"+id, "cap-2", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = ts.do(http.MethodGet, "/api/v1/alerts?severity=PURPLE", "cap-1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = ts.do(http.MethodGet, "/api/v1/alerts?overdue=maybe", "cap-1", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = ts.do(http.MethodGet, "/api/v1/alerts/counts", "dpa", nil)
	require.Equal(t, http.StatusOK, code)
	var counts scope.Counts
	require.NoError(t, json.Unmarshal(env.Data, &counts))
	assert.Equal(t, 2, counts.Fleet.Total)
	assert.Equal(t, 1, counts.ByVessel["v-1"].BySeverity[model.SeverityOrange])
	assert.Equal(t, 1, counts.ByVessel["v-2"].BySeverity[model.SeverityYellow])

	code, env = ts.do(http.MethodGet, "/api/v1/alerts/counts", "cap-2", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &counts))
	assert.Equal(t, 1, counts.Fleet.Total)
}

func TestAlertTransitions(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seed()
	base := "/api/v1/alerts/" + id

	code, env := ts.do(http.MethodPost, base+"/snooze", "cap-1", gin.H{"duration": "24h"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, string(lifecycle.CodeSnoozeReasonRequired), env.Reason)

	code, env = ts.do(http.MethodPost, base+"/snooze", "cap-1", gin.H{"duration": "49h", "reason": "dry dock"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, string(lifecycle.CodeSnoozeDurationExceeded), env.Reason)

	// 天数单位与规则表一致，超过上限按业务拒绝而不是参数错误
	code, env = ts.do(http.MethodPost, base+"/snooze", "cap-1", gin.H{"duration": "3d", "reason": "dry dock"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, string(lifecycle.CodeSnoozeDurationExceeded), env.Reason)

	code, _ = ts.do(http.MethodPost, base+"/snooze", "cap-1", gin.H{"duration": "two days", "reason": "x"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(http.MethodPost, base+"/snooze", "cap-2", gin.H{"duration": "1h", "reason": "x"})
	assert.Equal(t, http.StatusNotFound, code)

	code, env = ts.do(http.MethodPost, base+"/snooze", "cap-1", gin.H{"duration": "24h", "reason": "awaiting spares"})
	require.Equal(t, http.StatusOK, code)
	var v model.View
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, model.StatusSnoozed, v.Status)
	assert.Equal(t, 1, v.SnoozeCount)

	code, env = ts.do(http.MethodPost, base+"/acknowledge", "cap-1", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(lifecycle.CodeInvalidTransition), env.Reason)

	code, _ = ts.do(http.MethodPost, base+"/resolve", "auditor", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = ts.do(http.MethodPost, base+"/resolve", "dpa", gin.H{"reason": "closed out"})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, model.StatusResolved, v.Status)

	code, env = ts.do(http.MethodPost, base+"/acknowledge", "cap-1", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(lifecycle.CodeTerminalState), env.Reason)
}

func TestSnoozeInDays(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seed()

	code, env := ts.do(http.MethodPost, "/api/v1/alerts/"+id+"/snooze", "cap-1", gin.H{"duration": "2d", "reason": "awaiting spares"})
	require.Equal(t, http.StatusOK, code)
	var v model.View
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, model.StatusSnoozed, v.Status)
	require.NotNil(t, v.SnoozedUntil)
	assert.Equal(t, time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC), v.SnoozedUntil.UTC())
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	code, _ := ts.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)

	ts.ping = errors.New("dial tcp: connection refused")
	code, env := ts.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, string(env.Data), "connection refused")
}
