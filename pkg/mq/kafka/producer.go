package kafka

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/lk2023060901/fleetalert/pkg/config"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/otel"
	"github.com/segmentio/kafka-go"
)

var _ Publisher = (*Producer)(nil)

// messageWriter kafka.Writer 的最小接口
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer 单 topic 生产者
type Producer struct {
	topic  string
	writer messageWriter
	logger logger.Logger
	closed atomic.Bool

	produced atomic.Int64
	failed   atomic.Int64
}

// NewProducer 创建 topic 生产者
func NewProducer(cfg *Config, topic string, l logger.Logger) (*Producer, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.NewNoop()
	}

	pc := merged.Producer
	w := &kafka.Writer{
		Addr:                   kafka.TCP(merged.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              pc.BatchSize,
		BatchTimeout:           pc.BatchTimeout,
		MaxAttempts:            pc.MaxRetries + 1,
		WriteTimeout:           pc.WriteTimeout,
		RequiredAcks:           kafka.RequiredAcks(pc.RequiredAcks),
		Compression:            parseCompression(pc.Compression),
		AllowAutoTopicCreation: true,
	}
	if merged.SASL != nil {
		t, err := newTransport(merged)
		if err != nil {
			return nil, fmt.Errorf("kafka transport: %w", err)
		}
		w.Transport = t
	}
	return newProducerWithWriter(topic, w, l), nil
}

func newProducerWithWriter(topic string, w messageWriter, l logger.Logger) *Producer {
	return &Producer{topic: topic, writer: w, logger: l.Named("kafka.producer")}
}

// Publish 同步发布消息，Key 相同的消息进入同一分区
func (p *Producer) Publish(ctx context.Context, msgs ...*Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(msgs) == 0 {
		return nil
	}

	// 当前 span 上下文随消息头传给下游消费者
	carrier := map[string]string{}
	otel.InjectMap(ctx, carrier)

	out := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		out[i] = kafka.Message{Key: m.Key, Value: m.Value, Time: m.Timestamp}
		for k, v := range m.Headers {
			out[i].Headers = append(out[i].Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
		for k, v := range carrier {
			if _, ok := m.Headers[k]; !ok {
				out[i].Headers = append(out[i].Headers, kafka.Header{Key: k, Value: []byte(v)})
			}
		}
	}

	if err := p.writer.WriteMessages(ctx, out...); err != nil {
		p.failed.Add(int64(len(msgs)))
		return fmt.Errorf("kafka publish to %s: %w", p.topic, err)
	}
	p.produced.Add(int64(len(msgs)))
	return nil
}

// Topic 返回 topic 名称
func (p *Producer) Topic() string {
	return p.topic
}

// Stats 返回成功/失败条数
func (p *Producer) Stats() (produced, failed int64) {
	return p.produced.Load(), p.failed.Load()
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.logger.Debug("producer closing", "topic", p.topic)
	return p.writer.Close()
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}
