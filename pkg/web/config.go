package web

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/fleetalert/pkg/web/middleware"
)

// Config Web 服务配置
type Config struct {
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// 优雅关闭等待时间
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	CORS      middleware.CORSConfig      `mapstructure:"cors"`
	RateLimit middleware.RateLimitConfig `mapstructure:"rate_limit"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Port:            8080,
		Mode:            gin.ReleaseMode,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		CORS: middleware.CORSConfig{
			AllowOrigins: []string{"*"},
		},
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			MaxLimiters:       10000,
			LimiterTTL:        10 * time.Minute,
			CleanupInterval:   time.Minute,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidConfig
	}
	switch c.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		return ErrInvalidConfig
	}
	return nil
}
