package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/otel"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	ch        chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.ch:
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.ErrorIs(t, (&Config{}).Validate(), ErrInvalidConfig)
	cfg := DefaultConfig()
	cfg.Producer.RequiredAcks = 2
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestProducerPublish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducerWithWriter("alert.events", w, logger.NewNoop())

	err := p.Publish(context.Background(), &Message{
		Key:     []byte("alert-1"),
		Value:   []byte(`{"status":"OPEN"}`),
		Headers: map[string]string{"event": "created"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "alert-1", string(w.msgs[0].Key))
	assert.Equal(t, "event", w.msgs[0].Headers[0].Key)

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), &Message{Value: []byte("x")}))
	produced, failed := p.Stats()
	assert.EqualValues(t, 1, produced)
	assert.EqualValues(t, 1, failed)

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish(context.Background(), &Message{}), ErrProducerClosed)
}

func TestConsumerGroup_CommitsEvenOnFailure(t *testing.T) {
	r := &fakeReader{ch: make(chan kafka.Message, 4)}
	var handled atomic.Int32
	h := func(_ context.Context, msg *Message) error {
		handled.Add(1)
		if string(msg.Value) == "bad" {
			return errors.New("malformed")
		}
		return nil
	}
	cg := newConsumerGroupWithReader([]string{"compliance.facts"}, r, h, 2, logger.NewNoop())

	r.ch <- kafka.Message{Topic: "compliance.facts", Offset: 1, Value: []byte("ok")}
	r.ch <- kafka.Message{Topic: "compliance.facts", Offset: 2, Value: []byte("bad")}
	r.ch <- kafka.Message{Topic: "compliance.facts", Offset: 3, Value: []byte("ok")}

	require.NoError(t, cg.Start(context.Background()))
	assert.ErrorIs(t, cg.Start(context.Background()), ErrConsumerAlreadyRunning)

	require.Eventually(t, func() bool { return r.committedCount() == 3 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, cg.Close())

	consumed, failed, committed := cg.Stats()
	assert.EqualValues(t, 3, consumed)
	assert.EqualValues(t, 1, failed)
	assert.EqualValues(t, 3, committed)
	assert.EqualValues(t, 3, handled.Load())
}

func TestRetryMiddleware(t *testing.T) {
	var calls atomic.Int32
	h := Chain(func(context.Context, *Message) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, RetryMiddleware(3, time.Millisecond))

	require.NoError(t, h(context.Background(), &Message{}))
	assert.EqualValues(t, 3, calls.Load())
}

func TestRetryMiddleware_Permanent(t *testing.T) {
	var calls atomic.Int32
	want := errors.New("bad payload")
	h := RetryMiddleware(5, time.Millisecond)(func(context.Context, *Message) error {
		calls.Add(1)
		return PermanentError(want)
	})

	assert.ErrorIs(t, h(context.Background(), &Message{}), want)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRecoveryMiddleware(t *testing.T) {
	h := Chain(func(context.Context, *Message) error { panic("nil map") },
		LoggingMiddleware(logger.NewNoop()), RecoveryMiddleware(logger.NewNoop()))
	err := h(context.Background(), &Message{Topic: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil map")
}

func TestTracing_ProducerToConsumer(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp, err := otel.New(nil, otel.WithSpanProcessor(rec))
	require.NoError(t, err)
	defer tp.Close()

	w := &fakeWriter{}
	p := newProducerWithWriter("compliance.facts", w, logger.NewNoop())
	ctx, span := tp.Tracer("test").Start(context.Background(), "emit")
	require.NoError(t, p.Publish(ctx, &Message{Value: []byte(`{}`)}))
	span.End()

	require.Len(t, w.msgs, 1)
	headers := map[string]string{}
	for _, h := range w.msgs[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Contains(t, headers, "traceparent")

	var seen trace.SpanContext
	h := Chain(func(ctx context.Context, _ *Message) error {
		seen = trace.SpanContextFromContext(ctx)
		return nil
	}, TracingMiddleware(tp.Tracer("consumer")))
	require.NoError(t, h(context.Background(), &Message{Topic: "compliance.facts", Headers: headers}))

	assert.Equal(t, span.SpanContext().TraceID(), seen.TraceID())
	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "compliance.facts process", ended[1].Name())
	assert.Equal(t, span.SpanContext().SpanID(), ended[1].Parent().SpanID())
}
