package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lk2023060901/fleetalert/pkg/mq/kafka"
	"github.com/lk2023060901/fleetalert/pkg/notify"
)

// DefaultTopic 站内通知主题
const DefaultTopic = "alert.notifications"

// InAppNotifier 站内通知，写入 Kafka 由推送服务消费
type InAppNotifier struct {
	pub kafka.Publisher
}

var _ notify.Notifier = (*InAppNotifier)(nil)

// NewInAppNotifier 创建站内通知器
func NewInAppNotifier(pub kafka.Publisher) *InAppNotifier {
	return &InAppNotifier{pub: pub}
}

func (n *InAppNotifier) Name() string { return "in_app" }

// Send 以告警 id 作为分区键，同一告警的通知保持顺序
func (n *InAppNotifier) Send(ctx context.Context, msg *notify.Notification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode notification: %v", notify.ErrSendFailed, err)
	}
	return n.pub.Publish(ctx, &kafka.Message{
		Key:   []byte(msg.Labels["alert_id"]),
		Value: body,
		Headers: map[string]string{
			"notification_id": msg.ID,
			"level":           string(msg.Level),
		},
		Timestamp: msg.CreatedAt,
	})
}
