package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/lk2023060901/fleetalert/pkg/config"
	"github.com/lk2023060901/fleetalert/pkg/notify"
)

// Config 投递网关配置
type Config struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{Timeout: 5 * time.Second, RetryCount: 2}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("%w: base_url must be an http(s) url", notify.ErrInvalidConfig)
	}
	return nil
}

// Notifier 通过 HTTP 投递网关发送邮件/短信
// POST {base_url}/v1/messages/{channel}
type Notifier struct {
	channel string
	client  *resty.Client
}

var _ notify.Notifier = (*Notifier)(nil)

// New 创建指定渠道 (email / sms) 的网关通知器
func New(channel string, cfg *Config) (*Notifier, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(merged.BaseURL, "/")).
		SetTimeout(merged.Timeout).
		SetRetryCount(merged.RetryCount).
		SetRetryWaitTime(200*time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")
	if merged.Token != "" {
		c.SetAuthToken(merged.Token)
	}
	return &Notifier{channel: channel, client: c}, nil
}

func (n *Notifier) Name() string {
	return n.channel
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Send 投递通知，网关按 Idempotency-Key 去重
func (n *Notifier) Send(ctx context.Context, msg *notify.Notification) error {
	var failure errorBody
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", msg.ID+":"+n.channel).
		SetBody(msg).
		SetError(&failure).
		Post("/v1/messages/" + n.channel)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", notify.ErrSendFailed, n.channel, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s: status %d %s %s", notify.ErrSendFailed, n.channel, resp.StatusCode(), failure.Code, failure.Message)
	}
	return nil
}
