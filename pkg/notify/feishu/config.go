package feishu

import (
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/fleetalert/pkg/notify"
)

// Config 飞书机器人配置
type Config struct {
	WebhookURL string `mapstructure:"webhook_url"`
	// 签名密钥，机器人开启签名校验时必填
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("%w: webhook_url is required", notify.ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.WebhookURL, "http://") && !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("%w: webhook_url must start with http:// or https://", notify.ErrInvalidConfig)
	}
	return nil
}
