package lru

import (
	"container/list"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lk2023060901/fleetalert/pkg/util/conc"
)

// Config LRU 配置
type Config struct {
	MaxSize    int           `mapstructure:"max_size"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	// 为 0 时不启动后台清理，过期条目在访问时惰性删除
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// LRU 带 TTL 的并发安全 LRU 缓存
type LRU[K comparable, V any] struct {
	config *Config
	clock  clockwork.Clock
	cache  *list.List
	items  map[K]*list.Element
	mu     sync.Mutex
	stopCh chan struct{}
	once   sync.Once

	onEvict func(key K, value V)
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// Option LRU 选项
type Option[K comparable, V any] func(*LRU[K, V])

// WithOnEvict 设置淘汰回调，回调在持锁状态下执行
func WithOnEvict[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.onEvict = fn
	}
}

// WithClock 替换时钟
func WithClock[K comparable, V any](clock clockwork.Clock) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.clock = clock
	}
}

// New 创建 LRU 缓存
func New[K comparable, V any](cfg *Config, opts ...Option[K, V]) *LRU[K, V] {
	c := &LRU[K, V]{
		config: cfg,
		clock:  clockwork.NewRealClock(),
		cache:  list.New(),
		items:  make(map[K]*list.Element),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.CleanupInterval > 0 {
		c.startCleanup()
	}
	return c
}

func (c *LRU[K, V]) startCleanup() {
	conc.Go(func() (struct{}, error) {
		ticker := c.clock.NewTicker(c.config.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				c.removeExpired()
			case <-c.stopCh:
				return struct{}{}, nil
			}
		}
	})
}

func (c *LRU[K, V]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for e := c.cache.Back(); e != nil; {
		prev := e.Prev()
		if now.After(e.Value.(*entry[K, V]).expiresAt) {
			c.removeElement(e)
		}
		e = prev
	}
}

// Get 获取值，过期条目视为不存在
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[K, V])
		if !c.clock.Now().After(ent.expiresAt) {
			c.cache.MoveToFront(elem)
			return ent.value, true
		}
		c.removeElement(elem)
	}
	var zero V
	return zero, false
}

// Set 使用默认 TTL 写入
func (c *LRU[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.config.DefaultTTL)
}

// SetWithTTL 使用指定 TTL 写入
func (c *LRU[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, ttl)
}

// GetOrCreate 原子地获取或创建
func (c *LRU[K, V]) GetOrCreate(key K, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[K, V])
		if !c.clock.Now().After(ent.expiresAt) {
			c.cache.MoveToFront(elem)
			return ent.value
		}
		c.removeElement(elem)
	}
	value := create()
	c.put(key, value, c.config.DefaultTTL)
	return value
}

func (c *LRU[K, V]) put(key K, value V, ttl time.Duration) {
	expiresAt := c.clock.Now().Add(ttl)
	if elem, ok := c.items[key]; ok {
		c.cache.MoveToFront(elem)
		ent := elem.Value.(*entry[K, V])
		ent.value = value
		ent.expiresAt = expiresAt
		return
	}

	c.items[key] = c.cache.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
	for c.config.MaxSize > 0 && c.cache.Len() > c.config.MaxSize {
		c.removeElement(c.cache.Back())
	}
}

// Delete 删除
func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Len 当前条目数，包含尚未清理的过期条目
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// Clear 清空，不触发淘汰回调
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Init()
	c.items = make(map[K]*list.Element)
}

// Close 停止后台清理
func (c *LRU[K, V]) Close() error {
	c.once.Do(func() { close(c.stopCh) })
	return nil
}

func (c *LRU[K, V]) removeElement(elem *list.Element) {
	c.cache.Remove(elem)
	ent := elem.Value.(*entry[K, V])
	delete(c.items, ent.key)
	if c.onEvict != nil {
		c.onEvict(ent.key, ent.value)
	}
}
