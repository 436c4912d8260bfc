package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/pkg/mq/kafka"
)

// DefaultEventTopic 告警历史事件主题
const DefaultEventTopic = "alert.events"

// EventSink 告警历史事件的去向
type EventSink interface {
	Publish(ctx context.Context, ev *model.Event) error
}

// KafkaEventSink 写入 alert.events，按告警 id 分区保证同一告警的事件有序
type KafkaEventSink struct {
	pub kafka.Publisher
}

// NewKafkaEventSink 创建事件输出
func NewKafkaEventSink(pub kafka.Publisher) *KafkaEventSink {
	return &KafkaEventSink{pub: pub}
}

func (s *KafkaEventSink) Publish(ctx context.Context, ev *model.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode alert event: %w", err)
	}
	return s.pub.Publish(ctx, &kafka.Message{
		Key:       []byte(ev.AlertID),
		Value:     body,
		Headers:   map[string]string{"event_type": string(ev.Type)},
		Timestamp: ev.Timestamp,
	})
}

type nopSink struct{}

func (nopSink) Publish(context.Context, *model.Event) error { return nil }
