// Package otel OpenTelemetry 追踪初始化与传播工具
package otel

import (
	"context"

	"github.com/lk2023060901/fleetalert/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerProvider 进程级追踪提供者
type TracerProvider struct {
	cfg      *Config
	provider trace.TracerProvider
	sdk      *sdktrace.TracerProvider
}

// Option 提供者选项
type Option func(*[]sdktrace.TracerProviderOption)

// WithSpanProcessor 追加 span 处理器，测试中用于挂 tracetest.SpanRecorder
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(opts *[]sdktrace.TracerProviderOption) {
		*opts = append(*opts, sdktrace.WithSpanProcessor(sp))
	}
}

// New 创建追踪提供者并设置为全局提供者与 W3C 传播器。
// 未开启时使用 noop 提供者，业务代码无需判断
func New(cfg *Config, opts ...Option) (*TracerProvider, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	merged.Enabled = cfg != nil && cfg.Enabled
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tp := &TracerProvider{cfg: merged, provider: noop.NewTracerProvider()}

	var extra []sdktrace.TracerProviderOption
	for _, opt := range opts {
		opt(&extra)
	}
	if !merged.Enabled && len(extra) == 0 {
		return tp, nil
	}

	spOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(newResource(merged)),
		sdktrace.WithSampler(newSampler(merged)),
	}
	if merged.Enabled {
		exp, err := newExporter(context.Background(), merged)
		if err != nil {
			return nil, err
		}
		if exp != nil {
			spOpts = append(spOpts, sdktrace.WithBatcher(exp,
				sdktrace.WithBatchTimeout(merged.BatchTimeout),
				sdktrace.WithExportTimeout(merged.ExportTimeout),
				sdktrace.WithMaxQueueSize(merged.MaxQueueSize),
				sdktrace.WithMaxExportBatchSize(merged.MaxBatchSize),
			))
		}
	}
	tp.sdk = sdktrace.NewTracerProvider(append(spOpts, extra...)...)
	tp.provider = tp.sdk
	otel.SetTracerProvider(tp.sdk)
	return tp, nil
}

func newResource(cfg *Config) *resource.Resource {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

func newSampler(cfg *Config) sdktrace.Sampler {
	switch cfg.Sampler {
	case SamplerAlways:
		return sdktrace.AlwaysSample()
	case SamplerNever:
		return sdktrace.NeverSample()
	case SamplerRatio:
		return sdktrace.TraceIDRatioBased(cfg.Ratio)
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

// Tracer 返回指定名称的 Tracer
func (p *TracerProvider) Tracer(name string) trace.Tracer {
	return p.provider.Tracer(name)
}

// Enabled 是否真正在采集
func (p *TracerProvider) Enabled() bool {
	return p.sdk != nil
}

// Close 刷新并关闭导出器
func (p *TracerProvider) Close() error {
	if p.sdk == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ShutdownTimeout)
	defer cancel()
	return p.sdk.Shutdown(ctx)
}

// Tracer 通过全局提供者获取 Tracer，New 之前获取的 Tracer 在 New 之后同样生效
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
