package notify

import "errors"

var (
	// ErrNoNotifiers 没有可用的通知器
	ErrNoNotifiers = errors.New("notify: no notifiers configured")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("notify: invalid notifier config")

	// ErrSendFailed 投递失败
	ErrSendFailed = errors.New("notify: failed to send notification")
)
