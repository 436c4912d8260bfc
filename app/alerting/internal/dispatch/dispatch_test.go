package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/ops"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/mq/kafka"
	"github.com/lk2023060901/fleetalert/pkg/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyNotifier struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []*notify.Notification
}

func (f *flakyNotifier) Name() string { return "flaky" }

func (f *flakyNotifier) Send(_ context.Context, n *notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("gateway 503")
	}
	f.sent = append(f.sent, n)
	return nil
}

type incidents struct {
	mu   sync.Mutex
	list []ops.Incident
}

func (r *incidents) Report(_ context.Context, inc ops.Incident) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, inc)
}

func fastConfig() *Config {
	return &Config{
		Workers:         4,
		MaxTries:        3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		SendTimeout:     time.Second,
		DrainTimeout:    5 * time.Second,
	}
}

func redAlert() *model.Alert {
	return &model.Alert{
		ID: "a-1", Category: model.CategoryIncident, Severity: model.SeverityRed,
		Status: model.StatusEscalated, CompanyID: "c-1", VesselID: model.Ptr("v-1"),
		Title: "incident inc-1: serious incident reported", Message: "details",
	}
}

func TestAsyncDispatcher_RetriesUntilDelivered(t *testing.T) {
	email := &flakyNotifier{failures: 2}
	sms := &flakyNotifier{failures: 5}
	rep := &incidents{}
	d := NewAsyncDispatcher(fastConfig(), map[model.Channel]notify.Notifier{
		model.ChannelEmail: email,
		model.ChannelSMS:   sms,
	}, rep, nil, logger.NewNoop())

	a := redAlert()
	err := d.Dispatch(context.Background(), a, []string{"DPA", "CAPTAIN"}, []model.Channel{model.ChannelEmail, model.ChannelSMS, model.ChannelInApp})
	require.NoError(t, err)
	// 受理后修改原告警不影响已受理的推送
	a.Title = "mutated"
	require.NoError(t, d.Close())

	require.Len(t, email.sent, 1)
	assert.Equal(t, 3, email.calls)
	assert.Equal(t, "a-1:ESCALATED:email", email.sent[0].ID)
	assert.Equal(t, "[RED] incident inc-1: serious incident reported", email.sent[0].Title)
	assert.Equal(t, notify.LevelCritical, email.sent[0].Level)

	assert.Empty(t, sms.sent)
	assert.Equal(t, 3, sms.calls)
	require.Len(t, rep.list, 1)
	assert.Equal(t, "sms", rep.list[0].Labels["channel"])
	assert.Equal(t, "a-1", rep.list[0].Labels["alert_id"])
}

// gateNotifier 在 release 关闭前阻塞发送
type gateNotifier struct {
	release chan struct{}
	started chan struct{}
	mu      sync.Mutex
	sent    []*notify.Notification
}

func newGateNotifier() *gateNotifier {
	return &gateNotifier{release: make(chan struct{}), started: make(chan struct{}, 16)}
}

func (g *gateNotifier) Name() string { return "gate" }

func (g *gateNotifier) Send(ctx context.Context, n *notify.Notification) error {
	g.started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, n)
	return nil
}

func (g *gateNotifier) delivered() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

func TestAsyncDispatcher_SaturatedPoolQueues(t *testing.T) {
	email := newGateNotifier()
	rep := &incidents{}
	cfg := fastConfig()
	cfg.Workers = 1
	d := NewAsyncDispatcher(cfg, map[model.Channel]notify.Notifier{model.ChannelEmail: email}, rep, nil, logger.NewNoop())

	a := redAlert()
	a.Status = model.StatusOpen
	require.NoError(t, d.Dispatch(context.Background(), a, []string{"DPA"}, []model.Channel{model.ChannelEmail}))
	<-email.started

	// 唯一的 worker 被占用，升级推送进入队列而不是丢弃
	escalated := redAlert()
	require.NoError(t, d.Dispatch(context.Background(), escalated, []string{"DPA"}, []model.Channel{model.ChannelEmail}))

	close(email.release)
	require.NoError(t, d.Close())

	assert.Equal(t, 2, email.delivered())
	ids := []string{email.sent[0].ID, email.sent[1].ID}
	assert.ElementsMatch(t, []string{"a-1:OPEN:email", "a-1:ESCALATED:email"}, ids)
	rep.mu.Lock()
	defer rep.mu.Unlock()
	assert.Empty(t, rep.list)
}

func TestAsyncDispatcher_QueueTimeoutReported(t *testing.T) {
	email := newGateNotifier()
	rep := &incidents{}
	cfg := fastConfig()
	cfg.Workers = 1
	cfg.QueueTimeout = 20 * time.Millisecond
	d := NewAsyncDispatcher(cfg, map[model.Channel]notify.Notifier{model.ChannelEmail: email}, rep, nil, logger.NewNoop())

	require.NoError(t, d.Dispatch(context.Background(), redAlert(), []string{"DPA"}, []model.Channel{model.ChannelEmail}))
	<-email.started
	require.NoError(t, d.Dispatch(context.Background(), redAlert(), []string{"DPA"}, []model.Channel{model.ChannelEmail}))

	assert.Eventually(t, func() bool {
		rep.mu.Lock()
		defer rep.mu.Unlock()
		return len(rep.list) == 1
	}, 2*time.Second, 5*time.Millisecond)

	close(email.release)
	require.NoError(t, d.Close())

	assert.Equal(t, 1, email.delivered())
	require.Len(t, rep.list, 1)
	assert.Equal(t, "notification dispatch exhausted", rep.list[0].Title)
	assert.Equal(t, "queue_overloaded", rep.list[0].Labels["reason"])
	assert.Equal(t, "email", rep.list[0].Labels["channel"])
	assert.ErrorIs(t, rep.list[0].Err, ErrOverloaded)
}

func TestAsyncDispatcher_Closed(t *testing.T) {
	d := NewAsyncDispatcher(fastConfig(), nil, nil, nil, logger.NewNoop())
	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Dispatch(context.Background(), redAlert(), nil, []model.Channel{model.ChannelEmail}), ErrClosed)
}

func TestBuildNotification(t *testing.T) {
	a := redAlert()
	a.Severity = model.SeverityYellow
	a.VesselID = nil
	n := BuildNotification(a, []string{"DPA"}, model.ChannelInApp)

	assert.Equal(t, notify.LevelInfo, n.Level)
	assert.Equal(t, []notify.Recipient{{Role: "DPA", CompanyID: "c-1"}}, n.Recipients)
	assert.NotContains(t, n.Labels, "vessel_id")
	assert.Equal(t, "in_app", n.Labels["channel"])
}

type capturePublisher struct {
	msgs []*kafka.Message
}

func (p *capturePublisher) Publish(_ context.Context, msgs ...*kafka.Message) error {
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func TestInAppNotifier(t *testing.T) {
	pub := &capturePublisher{}
	n := NewInAppNotifier(pub)

	msg := BuildNotification(redAlert(), []string{"CAPTAIN"}, model.ChannelInApp)
	require.NoError(t, n.Send(context.Background(), msg))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, []byte("a-1"), pub.msgs[0].Key)
	assert.Equal(t, msg.ID, pub.msgs[0].Headers["notification_id"])

	var decoded notify.Notification
	require.NoError(t, json.Unmarshal(pub.msgs[0].Value, &decoded))
	assert.Equal(t, "CAPTAIN", decoded.Recipients[0].Role)
	assert.Equal(t, "v-1", decoded.Recipients[0].VesselID)
}
