package feishu

import (
	"context"
	"fmt"
	"sort"

	"github.com/lk2023060901/fleetalert/pkg/notify"
)

var _ notify.Notifier = (*Adapter)(nil)

// Adapter 将通知转为飞书富文本，用于运维值班群
type Adapter struct {
	client *Client
}

// NewAdapter 创建飞书适配器
func NewAdapter(cfg *Config) (*Adapter, error) {
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: c}, nil
}

func (a *Adapter) Name() string {
	return "feishu"
}

// Send 实现 notify.Notifier
func (a *Adapter) Send(ctx context.Context, n *notify.Notification) error {
	return a.client.SendPost(ctx, toPost(n))
}

func toPost(n *notify.Notification) *Post {
	p := &Post{Title: fmt.Sprintf("%s %s", levelMark(n.Level), n.Title)}
	if n.Body != "" {
		p.Line(Text(n.Body))
	}
	if len(n.Labels) > 0 {
		keys := make([]string, 0, len(n.Labels))
		for k := range n.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p.Line(Text(fmt.Sprintf("• %s: %s", k, n.Labels[k])))
		}
	}
	if !n.CreatedAt.IsZero() {
		p.Line(Text("时间: " + n.CreatedAt.Format("2006-01-02 15:04:05")))
	}
	if url := n.Labels["runbook_url"]; url != "" {
		p.Line(Link("处理手册", url))
	}
	return p
}

func levelMark(l notify.Level) string {
	switch l {
	case notify.LevelCritical:
		return "[严重]"
	case notify.LevelWarning:
		return "[警告]"
	default:
		return "[信息]"
	}
}
