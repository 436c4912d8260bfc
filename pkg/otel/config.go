package otel

import "time"

// ExporterType 导出器类型
type ExporterType string

const (
	ExporterOTLPHTTP ExporterType = "otlp-http"
	ExporterOTLPGRPC ExporterType = "otlp-grpc"
	// 调试用，打印到标准输出
	ExporterStdout ExporterType = "stdout"
	ExporterNoop   ExporterType = "noop"
)

// SamplerType 采样类型
type SamplerType string

const (
	SamplerAlways SamplerType = "always"
	SamplerNever  SamplerType = "never"
	SamplerRatio  SamplerType = "ratio"
	// 跟随上游 span 的采样决策，无上游时全采
	SamplerParent SamplerType = "parent"
)

// Config 追踪配置
type Config struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`

	// OTLP HTTP 默认 localhost:4318，gRPC 默认 localhost:4317
	Endpoint string       `mapstructure:"endpoint"`
	Exporter ExporterType `mapstructure:"exporter"`
	Insecure bool         `mapstructure:"insecure"`

	Sampler SamplerType `mapstructure:"sampler"`
	// 仅 sampler 为 ratio 时生效
	Ratio float64 `mapstructure:"ratio"`

	BatchTimeout  time.Duration `mapstructure:"batch_timeout"`
	ExportTimeout time.Duration `mapstructure:"export_timeout"`
	MaxQueueSize  int           `mapstructure:"max_queue_size"`
	MaxBatchSize  int           `mapstructure:"max_batch_size"`

	// 附加到 resource 上的属性，例如 deployment.environment
	Attributes map[string]string `mapstructure:"attributes"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig 默认配置，未显式开启时不导出
func DefaultConfig() *Config {
	return &Config{
		ServiceName:     "fleetalert",
		Endpoint:        "localhost:4318",
		Exporter:        ExporterOTLPHTTP,
		Insecure:        true,
		Sampler:         SamplerParent,
		Ratio:           1.0,
		BatchTimeout:    5 * time.Second,
		ExportTimeout:   30 * time.Second,
		MaxQueueSize:    2048,
		MaxBatchSize:    512,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return ErrInvalidServiceName
	}
	if c.Sampler == SamplerRatio && (c.Ratio < 0 || c.Ratio > 1) {
		return ErrInvalidSamplerRatio
	}
	switch c.Exporter {
	case ExporterOTLPHTTP, ExporterOTLPGRPC, ExporterStdout, ExporterNoop:
	default:
		return ErrUnsupportedExporter
	}
	return nil
}
