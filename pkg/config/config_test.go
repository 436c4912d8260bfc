package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pollerConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"required"`
	Batch    int           `mapstructure:"batch" validate:"min=1,max=1000"`
}

type serviceConfig struct {
	Name     string            `mapstructure:"name" validate:"required"`
	Mode     string            `mapstructure:"mode" validate:"oneof=memory postgres"`
	Poller   pollerConfig      `mapstructure:"poller"`
	Channels []string          `mapstructure:"channels"`
	Labels   map[string]string `mapstructure:"labels"`
	Sentry   *struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"sentry"`
}

func TestMergeConfig(t *testing.T) {
	dst := &serviceConfig{
		Name:     "alerting",
		Mode:     "memory",
		Poller:   pollerConfig{Interval: time.Second, Batch: 100},
		Channels: []string{"in_app"},
		Labels:   map[string]string{"region": "eu"},
	}
	src := &serviceConfig{
		Mode:     "postgres",
		Poller:   pollerConfig{Batch: 50},
		Channels: []string{"email", "sms"},
		Labels:   map[string]string{"team": "fleet"},
	}

	out, err := MergeConfig(dst, src)
	require.NoError(t, err)
	assert.Equal(t, "alerting", out.Name)
	assert.Equal(t, "postgres", out.Mode)
	assert.Equal(t, time.Second, out.Poller.Interval)
	assert.Equal(t, 50, out.Poller.Batch)
	assert.Equal(t, []string{"email", "sms"}, out.Channels)
	assert.Equal(t, map[string]string{"region": "eu", "team": "fleet"}, out.Labels)
}

func TestMergeConfig_Nil(t *testing.T) {
	_, err := MergeConfig[serviceConfig](nil, nil)
	assert.ErrorIs(t, err, ErrNilConfig)

	src := &serviceConfig{Name: "x"}
	out, err := MergeConfig(nil, src)
	require.NoError(t, err)
	assert.Same(t, src, out)
}

func TestMergeConfig_EmptySliceKeepsDefault(t *testing.T) {
	dst := &serviceConfig{Channels: []string{"in_app"}}
	out, err := MergeConfig(dst, &serviceConfig{Channels: []string{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"in_app"}, out.Channels)
}

func TestValidator(t *testing.T) {
	v := NewValidator()

	ok := &serviceConfig{Name: "a", Mode: "memory", Poller: pollerConfig{Interval: time.Second, Batch: 10}}
	assert.NoError(t, v.Validate(ok))

	bad := &serviceConfig{Mode: "mysql", Poller: pollerConfig{Batch: 0}}
	err := v.Validate(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.Contains(t, err.Error(), "Name' is required")
	assert.Contains(t, err.Error(), "must be one of")

	assert.ErrorIs(t, v.Validate(nil), ErrNilConfig)
}

func TestManager_LoadAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "name: alerting\nmode: memory\npoller:\n  interval: 2s\n  batch: 20\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("FLEETALERT_TEST_MODE", "postgres")

	m := NewManager()
	m.BindEnv("FLEETALERT_TEST")
	require.NoError(t, m.LoadFile(path))

	var cfg serviceConfig
	require.NoError(t, m.Unmarshal(&cfg))
	assert.Equal(t, "alerting", cfg.Name)
	assert.Equal(t, "postgres", cfg.Mode)
	assert.Equal(t, 2*time.Second, cfg.Poller.Interval)

	var poller pollerConfig
	require.NoError(t, m.UnmarshalKey("poller", &poller))
	assert.Equal(t, 20, poller.Batch)
	assert.True(t, m.IsSet("poller.batch"))
}

func TestManager_MissingFile(t *testing.T) {
	err := NewManager().LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}
