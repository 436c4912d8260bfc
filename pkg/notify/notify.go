package notify

import "context"

// Notifier 单一投递渠道的通知器
type Notifier interface {
	// Send 投递一条通知，返回错误时由调用方决定是否重试
	Send(ctx context.Context, n *Notification) error

	// Name 通知器名称，用于日志与指标
	Name() string
}

// Multi 按顺序投递到多个通知器，返回第一个错误之外也会尝试剩余通知器
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

func (m Multi) Send(ctx context.Context, n *Notification) error {
	if len(m) == 0 {
		return ErrNoNotifiers
	}
	var first error
	for _, x := range m {
		if err := x.Send(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
