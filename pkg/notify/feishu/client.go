package feishu

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/lk2023060901/fleetalert/pkg/config"
)

// Client 飞书自定义机器人客户端
type Client struct {
	cfg  *Config
	http *resty.Client
	now  func() time.Time
}

// NewClient 创建客户端
func NewClient(cfg *Config) (*Client, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:  merged,
		http: resty.New().SetTimeout(merged.Timeout),
		now:  time.Now,
	}, nil
}

type apiResult struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// SendPost 发送富文本消息
func (c *Client) SendPost(ctx context.Context, p *Post) error {
	body := p.payload()
	if c.cfg.Secret != "" {
		ts := c.now().Unix()
		body["timestamp"] = strconv.FormatInt(ts, 10)
		body["sign"] = sign(ts, c.cfg.Secret)
	}

	var result apiResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		ForceContentType("application/json").
		Post(c.cfg.WebhookURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: status %d", ErrResponseInvalid, resp.StatusCode())
	}
	if result.Code != 0 {
		return fmt.Errorf("%w: %s (code=%d)", ErrAPIError, result.Msg, result.Code)
	}
	return nil
}

// sign 飞书签名: HmacSHA256 以 "timestamp\nsecret" 为 key 对空串签名
func sign(ts int64, secret string) string {
	h := hmac.New(sha256.New, []byte(fmt.Sprintf("%d\n%s", ts, secret)))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
