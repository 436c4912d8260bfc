package feishu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lk2023060901/fleetalert/pkg/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapter_Send(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"msg":"success"}`))
	}))
	defer srv.Close()

	a, err := NewAdapter(&Config{WebhookURL: srv.URL, Secret: "s3cret"})
	require.NoError(t, err)
	a.client.now = func() time.Time { return time.Unix(1700000000, 0) }

	err = a.Send(context.Background(), &notify.Notification{
		Level:  notify.LevelCritical,
		Title:  "timer scheduling exhausted",
		Body:   "alert a-1 escalation timer could not be persisted",
		Labels: map[string]string{"alert_id": "a-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "post", body["msg_type"])
	assert.Equal(t, "1700000000", body["timestamp"])
	assert.Equal(t, sign(1700000000, "s3cret"), body["sign"])

	zh := body["content"].(map[string]any)["post"].(map[string]any)["zh_cn"].(map[string]any)
	assert.Equal(t, "[严重] timer scheduling exhausted", zh["title"])
}

func TestAdapter_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":19021,"msg":"sign match fail"}`))
	}))
	defer srv.Close()

	a, err := NewAdapter(&Config{WebhookURL: srv.URL})
	require.NoError(t, err)
	assert.ErrorIs(t, a.Send(context.Background(), &notify.Notification{Title: "x"}), ErrAPIError)
}

func TestConfigValidate(t *testing.T) {
	_, err := NewAdapter(&Config{})
	assert.ErrorIs(t, err, notify.ErrInvalidConfig)
	_, err = NewAdapter(&Config{WebhookURL: "feishu.cn/hook"})
	assert.ErrorIs(t, err, notify.ErrInvalidConfig)
}
