package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PermanentError 标记不应重试的错误（如消息格式错误）
func PermanentError(err error) error {
	return backoff.Permanent(err)
}

// LoggingMiddleware 记录消费耗时与错误
func LoggingMiddleware(l logger.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			start := time.Now()
			err := next(ctx, msg)
			if err != nil {
				l.Warn("message consume failed",
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"duration", time.Since(start),
					"error", err,
				)
				return err
			}
			l.Debug("message consumed", "topic", msg.Topic, "offset", msg.Offset, "duration", time.Since(start))
			return nil
		}
	}
}

// RecoveryMiddleware 将处理器 panic 转换为错误
func RecoveryMiddleware(l logger.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					l.Error("message handler panicked", "topic", msg.Topic, "offset", msg.Offset, "panic", r)
					err = fmt.Errorf("kafka handler panic: %v", r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

// RetryMiddleware 失败后指数退避重试，PermanentError 包装的错误不重试
func RetryMiddleware(maxRetries int, initial time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			b := backoff.NewExponentialBackOff()
			if initial > 0 {
				b.InitialInterval = initial
			}
			_, err := backoff.Retry(ctx, func() (struct{}, error) {
				return struct{}{}, next(ctx, msg)
			}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(maxRetries+1)))
			return err
		}
	}
}

// TracingMiddleware 延续生产者写入消息头的 span 上下文并开启 consumer span
func TracingMiddleware(tracer trace.Tracer) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			ctx = otel.ExtractMap(ctx, msg.Headers)
			ctx, span := tracer.Start(ctx, msg.Topic+" process",
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(
					attribute.String("messaging.system", "kafka"),
					attribute.String("messaging.destination.name", msg.Topic),
					attribute.Int("messaging.kafka.partition", msg.Partition),
					attribute.Int64("messaging.kafka.offset", msg.Offset),
				),
			)
			err := next(ctx, msg)
			otel.End(span, err)
			return err
		}
	}
}
