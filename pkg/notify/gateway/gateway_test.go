package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lk2023060901/fleetalert/pkg/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	var got notify.Notification
	var path, idem, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		idem = r.Header.Get("Idempotency-Key")
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n, err := New("email", &Config{BaseURL: srv.URL + "/", Token: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "email", n.Name())

	err = n.Send(context.Background(), &notify.Notification{
		ID:         "alert-1:escalated",
		Level:      notify.LevelCritical,
		Title:      "Incident escalated",
		Recipients: []notify.Recipient{{Role: "DPA", CompanyID: "c1"}},
		CreatedAt:  time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "/v1/messages/email", path)
	assert.Equal(t, "alert-1:escalated:email", idem)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "DPA", got.Recipients[0].Role)
}

func TestSend_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := New("sms", &Config{BaseURL: srv.URL, RetryCount: 2})
	require.NoError(t, err)
	require.NoError(t, n.Send(context.Background(), &notify.Notification{ID: "x"}))
	assert.EqualValues(t, 2, calls.Load())
}

func TestSend_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"no_recipients","message":"role has no members"}`))
	}))
	defer srv.Close()

	n, err := New("sms", &Config{BaseURL: srv.URL})
	require.NoError(t, err)
	err = n.Send(context.Background(), &notify.Notification{ID: "x"})
	require.ErrorIs(t, err, notify.ErrSendFailed)
	assert.Contains(t, err.Error(), "no_recipients")
	assert.EqualValues(t, 1, calls.Load())
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New("email", &Config{BaseURL: "ftp://x"})
	assert.ErrorIs(t, err, notify.ErrInvalidConfig)
}
