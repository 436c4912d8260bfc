package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/fleetalert/pkg/cache/lru"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/web/errors"
	"golang.org/x/time/rate"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerSecond int  `mapstructure:"requests_per_second"`
	Burst             int  `mapstructure:"burst"`
	// 按调用方 (X-Caller-ID) 限流，为 false 时按 IP
	PerCaller bool     `mapstructure:"per_caller"`
	SkipPaths []string `mapstructure:"skip_paths"`
	// 为 true 时等待令牌而非直接拒绝
	WaitMode    bool          `mapstructure:"wait_mode"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`

	MaxLimiters     int           `mapstructure:"max_limiters"`
	LimiterTTL      time.Duration `mapstructure:"limiter_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RateLimiter 按键维护令牌桶
type RateLimiter struct {
	cfg      *RateLimitConfig
	limiters *lru.LRU[string, *rate.Limiter]
	logger   logger.Logger
}

// NewRateLimiter 创建限流器
func NewRateLimiter(cfg *RateLimitConfig, l logger.Logger) *RateLimiter {
	return &RateLimiter{
		cfg: cfg,
		limiters: lru.New[string, *rate.Limiter](&lru.Config{
			MaxSize:         cfg.MaxLimiters,
			DefaultTTL:      cfg.LimiterTTL,
			CleanupInterval: cfg.CleanupInterval,
		}),
		logger: l,
	}
}

// Allow 非阻塞地消耗一个令牌
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

// Wait 阻塞直到取得令牌
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	return rl.limiter(key).Wait(ctx)
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	return rl.limiters.GetOrCreate(key, func() *rate.Limiter {
		return rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)
	})
}

// Close 释放后台清理
func (rl *RateLimiter) Close() error {
	return rl.limiters.Close()
}

// RateLimit 限流中间件
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(rl.cfg.SkipPaths))
	for _, p := range rl.cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		key := "ip:" + c.ClientIP()
		if rl.cfg.PerCaller {
			if caller := c.GetHeader("X-Caller-ID"); caller != "" {
				key = "caller:" + caller
			}
		}

		if rl.cfg.WaitMode {
			ctx := c.Request.Context()
			if rl.cfg.WaitTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, rl.cfg.WaitTimeout)
				defer cancel()
			}
			if err := rl.Wait(ctx, key); err != nil {
				rl.logger.Warn("rate limit wait timeout", "key", key, "path", path, "error", err)
				abortRateLimited(c)
				return
			}
		} else if !rl.Allow(key) {
			rl.logger.Warn("rate limit exceeded", "key", key, "path", path)
			abortRateLimited(c)
			return
		}
		c.Next()
	}
}

func abortRateLimited(c *gin.Context) {
	c.Header("Retry-After", strconv.Itoa(1))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"code":    errors.CodeRateLimited,
		"message": "too many requests",
		"data":    nil,
	})
}
