package ops

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCapturer struct {
	mu   sync.Mutex
	tags []map[string]string
}

func (f *fakeCapturer) CaptureError(_ error, tags map[string]string) *sentry.EventID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, tags)
	id := sentry.EventID("evt")
	return &id
}

type fakeNotifier struct {
	sent []*notify.Notification
	err  error
}

func (f *fakeNotifier) Name() string { return "fake" }

func (f *fakeNotifier) Send(_ context.Context, n *notify.Notification) error {
	f.sent = append(f.sent, n)
	return f.err
}

func TestReport_CooldownSuppressesRepeats(t *testing.T) {
	capt := &fakeCapturer{}
	n := &fakeNotifier{}
	r := New(nil, capt, n, logger.NewNoop())
	defer r.Close()

	inc := Incident{
		Title:  "escalation timer scheduling exhausted",
		Err:    errors.New("dial tcp: connection refused"),
		Labels: map[string]string{"alert_id": "a-1"},
	}
	r.Report(context.Background(), inc)
	r.Report(context.Background(), inc)

	require.Len(t, capt.tags, 1)
	assert.Equal(t, "a-1", capt.tags[0]["alert_id"])
	assert.Equal(t, inc.Title, capt.tags[0]["incident"])
	require.Len(t, n.sent, 1)
	assert.Equal(t, notify.LevelCritical, n.sent[0].Level)
	assert.Equal(t, "dial tcp: connection refused", n.sent[0].Body)

	// 不同告警的同类故障仍会上报
	inc.Labels = map[string]string{"alert_id": "a-2"}
	r.Report(context.Background(), inc)
	assert.Len(t, capt.tags, 2)
	// 原始标签不被修改
	assert.NotContains(t, inc.Labels, "incident")
}

func TestReport_NotifierFailureIsSwallowed(t *testing.T) {
	n := &fakeNotifier{err: errors.New("webhook down")}
	r := New(&Config{}, nil, n, logger.NewNoop())
	defer r.Close()

	assert.NotPanics(t, func() {
		r.Report(context.Background(), Incident{Title: "dispatch exhausted"})
		r.Report(context.Background(), Incident{Title: "dispatch exhausted"})
	})
	// 冷却关闭时每次都推送
	assert.Len(t, n.sent, 2)
}
