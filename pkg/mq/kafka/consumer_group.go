package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lk2023060901/fleetalert/pkg/config"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/util/conc"
	"github.com/segmentio/kafka-go"
)

// messageReader kafka.Reader 的最小接口
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerGroup 消费者组
// 处理失败的消息在记录日志后仍然提交 offset，避免毒消息阻塞分区；
// 需要重试的处理器应自行套用 RetryMiddleware
type ConsumerGroup struct {
	topics      []string
	reader      messageReader
	handler     Handler
	concurrency int
	logger      logger.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	consumed  atomic.Int64
	failed    atomic.Int64
	committed atomic.Int64
}

// NewConsumerGroup 创建消费者组
func NewConsumerGroup(cfg *Config, topics []string, handler Handler, l logger.Logger, mws ...Middleware) (*ConsumerGroup, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	cc := merged.Consumer
	if cc.GroupID == "" {
		return nil, ErrEmptyGroupID
	}

	rc := kafka.ReaderConfig{
		Brokers:     merged.Brokers,
		GroupID:     cc.GroupID,
		GroupTopics: topics,
		MinBytes:    cc.MinBytes,
		MaxBytes:    cc.MaxBytes,
		MaxWait:     cc.MaxWait,
		StartOffset: cc.StartOffset,
	}
	if merged.SASL != nil {
		d, err := newDialer(merged)
		if err != nil {
			return nil, fmt.Errorf("kafka dialer: %w", err)
		}
		rc.Dialer = d
	}
	return newConsumerGroupWithReader(topics, kafka.NewReader(rc), Chain(handler, mws...), cc.Concurrency, l), nil
}

func newConsumerGroupWithReader(topics []string, r messageReader, h Handler, concurrency int, l logger.Logger) *ConsumerGroup {
	if concurrency < 1 {
		concurrency = 1
	}
	if l == nil {
		l = logger.NewNoop()
	}
	return &ConsumerGroup{
		topics:      topics,
		reader:      r,
		handler:     h,
		concurrency: concurrency,
		logger:      l.Named("kafka.consumer"),
	}
}

// Start 启动消费协程，立即返回
func (cg *ConsumerGroup) Start(ctx context.Context) error {
	if !cg.running.CompareAndSwap(false, true) {
		return ErrConsumerAlreadyRunning
	}
	ctx, cg.cancel = context.WithCancel(ctx)

	cg.logger.Info("consumer group starting", "topics", cg.topics, "concurrency", cg.concurrency)
	for i := 0; i < cg.concurrency; i++ {
		cg.wg.Add(1)
		worker := i
		conc.Go(func() (struct{}, error) {
			defer cg.wg.Done()
			cg.consume(ctx, worker)
			return struct{}{}, nil
		})
	}
	return nil
}

func (cg *ConsumerGroup) consume(ctx context.Context, worker int) {
	for {
		km, err := cg.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			cg.logger.Error("failed to fetch message", "worker", worker, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		cg.consumed.Add(1)
		msg := &Message{
			Topic:     km.Topic,
			Key:       km.Key,
			Value:     km.Value,
			Partition: km.Partition,
			Offset:    km.Offset,
			Timestamp: km.Time,
			Headers:   make(map[string]string, len(km.Headers)),
		}
		for _, h := range km.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}

		if err := cg.handler(ctx, msg); err != nil {
			cg.failed.Add(1)
			cg.logger.Error("message handling failed, skipping",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}

		if err := cg.reader.CommitMessages(ctx, km); err != nil {
			if ctx.Err() != nil {
				return
			}
			cg.logger.Error("failed to commit message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
			continue
		}
		cg.committed.Add(1)
	}
}

// Stats 返回消费/失败/提交条数
func (cg *ConsumerGroup) Stats() (consumed, failed, committed int64) {
	return cg.consumed.Load(), cg.failed.Load(), cg.committed.Load()
}

// Stop 停止消费并等待所有协程退出
func (cg *ConsumerGroup) Stop() error {
	if !cg.running.CompareAndSwap(true, false) {
		return nil
	}
	cg.cancel()
	cg.wg.Wait()
	cg.logger.Info("consumer group stopped", "topics", cg.topics)
	return nil
}

// Close 停止并关闭 reader
func (cg *ConsumerGroup) Close() error {
	_ = cg.Stop()
	return cg.reader.Close()
}
