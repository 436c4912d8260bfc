// Package ops 需要人工介入的基础设施故障上报（Sentry + 运维群机器人）
package ops

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lk2023060901/fleetalert/pkg/cache/lru"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/notify"
)

// Incident 一次故障
type Incident struct {
	Title  string
	Err    error
	Labels map[string]string
}

func (i Incident) key() string {
	msg := ""
	if i.Err != nil {
		msg = i.Err.Error()
	}
	return i.Title + "|" + i.Labels["alert_id"] + "|" + msg
}

// Reporter 故障上报
type Reporter interface {
	Report(ctx context.Context, inc Incident)
}

// ErrorCapturer 由 *sentry.Client 实现
type ErrorCapturer interface {
	CaptureError(err error, tags map[string]string) *sentry.EventID
}

// Config 上报配置
type Config struct {
	// 相同故障在冷却期内只上报一次
	Cooldown    time.Duration `mapstructure:"cooldown"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{Cooldown: 5 * time.Minute, SendTimeout: 5 * time.Second}
}

// OpsReporter 写日志、上报 Sentry，并推送到运维通知渠道
type OpsReporter struct {
	cfg      *Config
	capturer ErrorCapturer
	notifier notify.Notifier
	logger   logger.Logger
	seen     *lru.LRU[string, struct{}]
}

// New 创建上报器，capturer 与 notifier 均可为 nil
func New(cfg *Config, capturer ErrorCapturer, notifier notify.Notifier, l logger.Logger) *OpsReporter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultConfig().SendTimeout
	}
	return &OpsReporter{
		cfg:      cfg,
		capturer: capturer,
		notifier: notifier,
		logger:   l.Named("ops"),
		seen:     lru.New[string, struct{}](&lru.Config{MaxSize: 1024, DefaultTTL: cfg.Cooldown}),
	}
}

// Report 上报故障，冷却期内重复的故障只记日志
func (r *OpsReporter) Report(ctx context.Context, inc Incident) {
	r.logger.ErrorContext(ctx, inc.Title, "labels", inc.Labels, "error", inc.Err)

	if r.cfg.Cooldown > 0 {
		if _, dup := r.seen.Get(inc.key()); dup {
			return
		}
		r.seen.Set(inc.key(), struct{}{})
	}

	if r.capturer != nil && inc.Err != nil {
		tags := maps.Clone(inc.Labels)
		if tags == nil {
			tags = map[string]string{}
		}
		tags["incident"] = inc.Title
		r.capturer.CaptureError(inc.Err, tags)
	}

	if r.notifier != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.SendTimeout)
		defer cancel()
		n := &notify.Notification{
			ID:        fmt.Sprintf("ops-%d", time.Now().UnixNano()),
			Level:     notify.LevelCritical,
			Title:     inc.Title,
			Labels:    inc.Labels,
			CreatedAt: time.Now(),
		}
		if inc.Err != nil {
			n.Body = inc.Err.Error()
		}
		if err := r.notifier.Send(sctx, n); err != nil {
			r.logger.Warn("ops notification failed", "notifier", r.notifier.Name(), "error", err)
		}
	}
}

// Close 释放冷却缓存
func (r *OpsReporter) Close() error {
	return r.seen.Close()
}

// Nop 丢弃所有上报
type Nop struct{}

func (Nop) Report(context.Context, Incident) {}
