package logger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr error
	}{
		{name: "nil config uses default", cfg: nil},
		{name: "partial config", cfg: &Config{Level: DebugLevel, Format: JSONFormat}},
		{name: "file without path", cfg: &Config{EnableFile: true}, wantErr: ErrInvalidOutputPath},
		{name: "bad level", cfg: &Config{Level: "verbose"}, wantErr: ErrInvalidLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerting.log")
	l, err := New(&Config{EnableFile: true, OutputPath: path, Format: JSONFormat})
	require.NoError(t, err)
	l.Info("engine started", "rules", 4)
	_ = l.Sync()
	assert.FileExists(t, path)
}

func TestKeyValueFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core)

	l.Info("alert created", "alert_id", "a-1", zap.String("severity", "RED"), "error", errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "a-1", fields["alert_id"])
	assert.Equal(t, "RED", fields["severity"])
	assert.Equal(t, "boom", fields["error"])
}

func TestContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core).Named("lifecycle")

	ctx := WithRequestID(context.Background(), "req-7")
	ctx = WithCallerID(ctx, "captain-1")
	ctx = WithAlertID(ctx, "a-9")
	l.WarnContext(ctx, "snooze rejected", "code", "max_snoozes_reached")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "lifecycle", entries[0].LoggerName)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-7", fields["request_id"])
	assert.Equal(t, "captain-1", fields["caller_id"])
	assert.Equal(t, "a-9", fields["alert_id"])
	assert.Equal(t, "max_snoozes_reached", fields["code"])
	assert.Equal(t, "req-7", RequestIDFrom(ctx))
}

func TestWithFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewWithCore(core, WithGlobalFields("service", "alerting"))

	child := l.WithFields("vessel_id", "v-1")
	child.Info("counts computed")
	l.Debug("dropped by level")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "alerting", fields["service"])
	assert.Equal(t, "v-1", fields["vessel_id"])
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NewNoop()
	l.Error("ignored", "k", "v")
	assert.Same(t, l, l.Named("x"))
	assert.NoError(t, l.Sync())
}
