package kafka

import (
	"fmt"
	"time"
)

// Config Kafka 配置
type Config struct {
	Brokers  []string       `mapstructure:"brokers"`
	Producer ProducerConfig `mapstructure:"producer"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	SASL     *SASLConfig    `mapstructure:"sasl"`
}

// ProducerConfig 生产者配置
type ProducerConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	// 0: 不等待确认, 1: Leader 确认, -1: 全部副本确认
	RequiredAcks int           `mapstructure:"required_acks"`
	Compression  string        `mapstructure:"compression"` // none, gzip, snappy, lz4, zstd
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	GroupID  string        `mapstructure:"group_id"`
	MinBytes int           `mapstructure:"min_bytes"`
	MaxBytes int           `mapstructure:"max_bytes"`
	MaxWait  time.Duration `mapstructure:"max_wait"`
	// -1: 最新, -2: 最早
	StartOffset int64 `mapstructure:"start_offset"`
	Concurrency int   `mapstructure:"concurrency"`
	// 处理失败时的重试
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// SASLConfig SASL 认证配置
type SASLConfig struct {
	Mechanism string `mapstructure:"mechanism"` // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Brokers: []string{"localhost:9092"},
		Producer: ProducerConfig{
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			MaxRetries:   3,
			RequiredAcks: -1,
			WriteTimeout: 10 * time.Second,
		},
		Consumer: ConsumerConfig{
			MinBytes:     1,
			MaxBytes:     10 << 20,
			MaxWait:      500 * time.Millisecond,
			StartOffset:  -2,
			Concurrency:  1,
			MaxRetries:   3,
			RetryBackoff: 200 * time.Millisecond,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("%w: brokers is empty", ErrInvalidConfig)
	}
	switch c.Producer.RequiredAcks {
	case -1, 0, 1:
	default:
		return fmt.Errorf("%w: required_acks must be -1, 0 or 1", ErrInvalidConfig)
	}
	if c.Consumer.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must be non-negative", ErrInvalidConfig)
	}
	return nil
}
