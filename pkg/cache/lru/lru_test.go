package lru

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_Basic(t *testing.T) {
	c := New[string, int](&Config{MaxSize: 10, DefaultTTL: time.Minute})
	defer c.Close()

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.Set("b", 2)
	c.Set("c", 3)
	assert.Equal(t, 2, c.Len())
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c := New[string, int](&Config{MaxSize: 2, DefaultTTL: time.Minute},
		WithOnEvict(func(k string, _ int) { evicted = append(evicted, k) }))
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, evicted)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestLRU_TTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[string, string](&Config{MaxSize: 10, DefaultTTL: time.Minute}, WithClock[string, string](clock))
	defer c.Close()

	c.Set("grant:captain-1", "v-1")
	c.SetWithTTL("short", "x", time.Second)

	clock.Advance(2 * time.Second)
	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("grant:captain-1")
	assert.True(t, ok)

	clock.Advance(time.Minute)
	_, ok = c.Get("grant:captain-1")
	assert.False(t, ok)
}

func TestLRU_GetOrCreate(t *testing.T) {
	c := New[string, int](&Config{MaxSize: 10, DefaultTTL: time.Minute})
	defer c.Close()

	calls := 0
	create := func() int { calls++; return 42 }
	assert.Equal(t, 42, c.GetOrCreate("k", create))
	assert.Equal(t, 42, c.GetOrCreate("k", create))
	assert.Equal(t, 1, calls)
}

func TestLRU_BackgroundCleanup(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[string, int](&Config{MaxSize: 10, DefaultTTL: time.Second, CleanupInterval: time.Minute},
		WithClock[string, int](clock))
	defer c.Close()

	c.Set("a", 1)
	require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
	clock.Advance(time.Minute)

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 10*time.Millisecond)
}
