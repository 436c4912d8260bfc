package access

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/fleetalert/pkg/cache/lru"
	"golang.org/x/sync/singleflight"
)

// CacheConfig 授权缓存配置
type CacheConfig struct {
	MaxSize int           `mapstructure:"max_size"`
	TTL     time.Duration `mapstructure:"ttl"`
	// 未知调用方的缓存时间，0 表示不缓存
	NegativeTTL time.Duration `mapstructure:"negative_ttl"`
}

// DefaultCacheConfig 默认配置
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{MaxSize: 4096, TTL: time.Minute, NegativeTTL: 10 * time.Second}
}

type cached struct {
	grant *Grant
	err   error
}

// CachedProvider 在下游查询前加一层 LRU，并合并同一调用方的并发查询
type CachedProvider struct {
	next  Provider
	cfg   *CacheConfig
	cache *lru.LRU[string, cached]
	group singleflight.Group
}

// NewCachedProvider 包装下游 Provider
func NewCachedProvider(next Provider, cfg *CacheConfig) *CachedProvider {
	def := DefaultCacheConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	return &CachedProvider{
		next:  next,
		cfg:   cfg,
		cache: lru.New[string, cached](&lru.Config{MaxSize: cfg.MaxSize, DefaultTTL: cfg.TTL}),
	}
}

func (p *CachedProvider) Grant(ctx context.Context, callerID string) (*Grant, error) {
	if c, ok := p.cache.Get(callerID); ok {
		return copyGrant(c.grant), c.err
	}

	v, err, _ := p.group.Do(callerID, func() (any, error) {
		g, err := p.next.Grant(context.WithoutCancel(ctx), callerID)
		switch {
		case err == nil:
			p.cache.Set(callerID, cached{grant: g})
		case errors.Is(err, ErrUnknownCaller) && p.cfg.NegativeTTL > 0:
			p.cache.SetWithTTL(callerID, cached{err: err}, p.cfg.NegativeTTL)
		}
		return g, err
	})
	if err != nil {
		return nil, err
	}
	return copyGrant(v.(*Grant)), nil
}

// Invalidate 删除缓存的授权
func (p *CachedProvider) Invalidate(callerID string) {
	p.cache.Delete(callerID)
}

// Close 停止缓存后台清理
func (p *CachedProvider) Close() error {
	return p.cache.Close()
}

func copyGrant(g *Grant) *Grant {
	if g == nil {
		return nil
	}
	cp := *g
	return &cp
}
