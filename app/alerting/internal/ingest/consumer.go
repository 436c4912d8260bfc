package ingest

import (
	"context"
	"time"

	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/mq/kafka"
	"github.com/lk2023060901/fleetalert/pkg/otel"
)

// DefaultTopic 事实主题
const DefaultTopic = "compliance.facts"

// FactConsumer 从 Kafka 消费事实，实现 app.Server
type FactConsumer struct {
	group  *kafka.ConsumerGroup
	proc   Processor
	clock  func() time.Time
	logger logger.Logger
}

// NewFactConsumer 创建消费者。格式错误的消息不重试，处理失败按配置退避重试
func NewFactConsumer(cfg *kafka.Config, topic string, proc Processor, l logger.Logger) (*FactConsumer, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	c := &FactConsumer{proc: proc, clock: time.Now, logger: l.Named("ingest.kafka")}

	retries, backoff := 3, 200*time.Millisecond
	if cfg != nil {
		if cfg.Consumer.MaxRetries > 0 {
			retries = cfg.Consumer.MaxRetries
		}
		if cfg.Consumer.RetryBackoff > 0 {
			backoff = cfg.Consumer.RetryBackoff
		}
	}
	group, err := kafka.NewConsumerGroup(cfg, []string{topic}, c.Handle, l,
		kafka.TracingMiddleware(otel.Tracer("fleetalert/ingest")),
		kafka.RecoveryMiddleware(c.logger),
		kafka.LoggingMiddleware(c.logger),
		kafka.RetryMiddleware(retries, backoff),
	)
	if err != nil {
		return nil, err
	}
	c.group = group
	return c, nil
}

// Handle 处理一条事实消息
func (c *FactConsumer) Handle(ctx context.Context, msg *kafka.Message) error {
	facts, err := Decode(msg.Value)
	if err != nil {
		c.logger.WarnContext(ctx, "dropping malformed fact message",
			"partition", msg.Partition, "offset", msg.Offset, "error", err)
		return kafka.PermanentError(err)
	}
	observed := msg.Timestamp
	if observed.IsZero() {
		observed = c.clock()
	}
	for _, f := range facts {
		if f.ObservedAt.IsZero() {
			f.ObservedAt = observed
		}
	}
	stats, err := c.proc.ProcessFacts(ctx, facts)
	if err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "facts processed",
		"offset", msg.Offset, "created", stats.Created, "resolved", stats.Resolved, "dropped", stats.ConfigErrors)
	return nil
}

func (c *FactConsumer) Start() error {
	return c.group.Start(context.Background())
}

func (c *FactConsumer) Stop() error {
	return c.group.Stop()
}

// Close 关闭底层 reader
func (c *FactConsumer) Close() error {
	return c.group.Close()
}
