package scheduler

import "time"

// BackoffStrategy 重试退避策略
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// Config 调度器配置
type Config struct {
	// 时区，空值使用本地时区
	Timezone string `mapstructure:"timezone"`
	// 是否启用秒级 cron 表达式 (6 段)
	WithSeconds bool `mapstructure:"with_seconds"`
	// 上一次执行未结束时跳过本次
	SkipIfStillRunning bool `mapstructure:"skip_if_still_running"`

	Middleware        MiddlewareConfig `mapstructure:"middleware"`
	DefaultJobOptions JobOptions       `mapstructure:"default_job_options"`
}

// MiddlewareConfig 任务中间件开关
type MiddlewareConfig struct {
	Logging  bool `mapstructure:"logging"`
	Recovery bool `mapstructure:"recovery"`
}

// JobOptions 单个任务的重试参数
type JobOptions struct {
	MaxRetries        int             `mapstructure:"max_retries"`
	BackoffStrategy   BackoffStrategy `mapstructure:"backoff_strategy"`
	InitialBackoff    time.Duration   `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration   `mapstructure:"max_backoff"`
	BackoffMultiplier float64         `mapstructure:"backoff_multiplier"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		SkipIfStillRunning: true,
		Middleware: MiddlewareConfig{
			Logging:  true,
			Recovery: true,
		},
		DefaultJobOptions: JobOptions{
			MaxRetries:        2,
			BackoffStrategy:   BackoffExponential,
			InitialBackoff:    200 * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		},
	}
}

// JobOption 任务选项
type JobOption func(*JobOptions)

// WithMaxRetries 设置最大重试次数
func WithMaxRetries(n int) JobOption {
	return func(o *JobOptions) { o.MaxRetries = n }
}

// WithBackoffStrategy 设置退避策略
func WithBackoffStrategy(s BackoffStrategy) JobOption {
	return func(o *JobOptions) { o.BackoffStrategy = s }
}

// WithInitialBackoff 设置首次重试间隔
func WithInitialBackoff(d time.Duration) JobOption {
	return func(o *JobOptions) { o.InitialBackoff = d }
}

// WithNoRetry 失败后不重试
func WithNoRetry() JobOption {
	return func(o *JobOptions) { o.MaxRetries = 0 }
}
