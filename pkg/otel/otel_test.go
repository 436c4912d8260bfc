package otel

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, (&Config{}).Validate())

	cfg := DefaultConfig()
	cfg.Enabled = true
	assert.NoError(t, cfg.Validate())

	cfg.Sampler, cfg.Ratio = SamplerRatio, 1.5
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidSamplerRatio)

	cfg = DefaultConfig()
	cfg.Enabled, cfg.Exporter = true, "zipkin"
	assert.ErrorIs(t, cfg.Validate(), ErrUnsupportedExporter)

	cfg = DefaultConfig()
	cfg.Enabled, cfg.ServiceName = true, ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidServiceName)

	tp, err := New(&Config{Enabled: true, Exporter: ExporterNoop})
	require.NoError(t, err)
	assert.True(t, tp.Enabled())
	require.NoError(t, tp.Close())
}

func TestNew_DisabledIsNoop(t *testing.T) {
	tp, err := New(nil)
	require.NoError(t, err)
	assert.False(t, tp.Enabled())

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, tp.Close())
}

func TestPropagation_RoundTrip(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp, err := New(nil, WithSpanProcessor(rec))
	require.NoError(t, err)
	defer tp.Close()

	ctx, parent := tp.Tracer("test").Start(context.Background(), "publish")
	headers := map[string]string{}
	InjectMap(ctx, headers)
	parent.End()
	require.Contains(t, headers, "traceparent")

	got := trace.SpanContextFromContext(ExtractMap(context.Background(), headers))
	assert.Equal(t, parent.SpanContext().TraceID(), got.TraceID())
	assert.True(t, got.IsRemote())

	h := http.Header{}
	h.Set("traceparent", headers["traceparent"])
	got = trace.SpanContextFromContext(ExtractHTTP(context.Background(), h))
	assert.Equal(t, parent.SpanContext().TraceID(), got.TraceID())

	assert.Equal(t, context.Background(), ExtractMap(context.Background(), nil))
}

func TestEnd_RecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp, err := New(nil, WithSpanProcessor(rec))
	require.NoError(t, err)
	defer tp.Close()

	_, ok := tp.Tracer("test").Start(context.Background(), "ok")
	End(ok, nil)
	_, failed := tp.Tracer("test").Start(context.Background(), "failed")
	End(failed, errors.New("store unavailable"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "store unavailable", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1)
}
