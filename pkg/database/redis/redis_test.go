package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(&Config{Standalone: &NodeConfig{Addr: mr.Addr()}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestConfigValidate(t *testing.T) {
	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), ErrNilConfig)
	assert.ErrorIs(t, (&Config{}).Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, (&Config{
		Standalone: &NodeConfig{Addr: "a:1"},
		Cluster:    &ClusterConfig{Addrs: []string{"b:1"}},
	}).Validate(), ErrInvalidConfig)
	assert.NoError(t, (&Config{Cluster: &ClusterConfig{Addrs: []string{"b:1"}}}).Validate())
}

func TestStringCommands(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	assert.Equal(t, "fleetalert:k", c.Key("k"))

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNil)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	ok, err := c.SetNX(ctx, "k", "other", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := c.Del(ctx, "k")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSortedSet(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.ZAdd(ctx, "timers", Z{Member: "a|escalate", Score: 100}, Z{Member: "b|wake", Score: 200}))
	// 重复写入同一成员覆盖分数
	require.NoError(t, c.ZAdd(ctx, "timers", Z{Member: "a|escalate", Score: 300}))

	due, err := c.ZRangeByScore(ctx, "timers", 0, 250, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "b|wake", due[0].Member)
	assert.Equal(t, float64(200), due[0].Score)

	score, err := c.ZScore(ctx, "timers", "a|escalate")
	require.NoError(t, err)
	assert.Equal(t, float64(300), score)

	n, err := c.ZRem(ctx, "timers", "b|wake")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = c.ZRem(ctx, "timers", "b|wake")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	card, err := c.ZCard(ctx, "timers")
	require.NoError(t, err)
	assert.EqualValues(t, 1, card)
}

func TestLock(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	a := NewLock(c, "lock:poller", time.Second)
	b := NewLock(c, "lock:poller", time.Second)

	ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, b.Unlock(ctx), ErrLockNotHeld)
	require.NoError(t, a.Refresh(ctx))
	require.NoError(t, a.Unlock(ctx))

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Second)
	assert.ErrorIs(t, b.Refresh(ctx), ErrLockNotHeld)
}

func TestWithLock(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	ran := false
	require.NoError(t, c.WithLock(ctx, "lock:x", time.Second, func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	_, err := c.Get(ctx, "lock:x")
	assert.ErrorIs(t, err, ErrNil)
}
