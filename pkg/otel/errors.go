package otel

import "errors"

var (
	ErrInvalidServiceName  = errors.New("otel: service name is required")
	ErrInvalidSamplerRatio = errors.New("otel: sampler ratio must be between 0 and 1")
	ErrUnsupportedExporter = errors.New("otel: unsupported exporter")
	ErrExporterFailed      = errors.New("otel: failed to create exporter")
)
