package access

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
	"github.com/lk2023060901/fleetalert/pkg/config"
)

// HTTPConfig 授权服务配置
type HTTPConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

// DefaultHTTPConfig 默认配置
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{Timeout: 3 * time.Second, RetryCount: 1}
}

// HTTPProvider 通过协作方的授权服务查询
// GET {base_url}/v1/grants/{caller_id}
type HTTPProvider struct {
	client *resty.Client
}

// NewHTTPProvider 创建 HTTP 授权查询
func NewHTTPProvider(cfg *HTTPConfig) (*HTTPProvider, error) {
	merged, err := config.MergeConfig(DefaultHTTPConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(merged.BaseURL, "http://") && !strings.HasPrefix(merged.BaseURL, "https://") {
		return nil, errors.Newf("access: base_url %q must be an http(s) url", merged.BaseURL)
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(merged.BaseURL, "/")).
		SetTimeout(merged.Timeout).
		SetRetryCount(merged.RetryCount).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if merged.Token != "" {
		c.SetAuthToken(merged.Token)
	}
	return &HTTPProvider{client: c}, nil
}

func (p *HTTPProvider) Grant(ctx context.Context, callerID string) (*Grant, error) {
	var g Grant
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&g).
		Get("/v1/grants/" + url.PathEscape(callerID))
	if err != nil {
		return nil, errors.Wrap(err, "access: grant lookup")
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, errors.Wrapf(ErrUnknownCaller, "%q", callerID)
	case resp.IsError():
		return nil, errors.Newf("access: grant lookup for %q: status %d", callerID, resp.StatusCode())
	}
	if g.CallerID == "" {
		g.CallerID = callerID
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}
