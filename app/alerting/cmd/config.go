package main

import (
	"time"

	"github.com/lk2023060901/fleetalert/app/alerting/internal/access"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/dispatch"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/ingest"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/lifecycle"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/ops"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/service"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/timer"
	"github.com/lk2023060901/fleetalert/pkg/database/postgres"
	"github.com/lk2023060901/fleetalert/pkg/database/redis"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/mq/kafka"
	"github.com/lk2023060901/fleetalert/pkg/notify/feishu"
	"github.com/lk2023060901/fleetalert/pkg/notify/gateway"
	"github.com/lk2023060901/fleetalert/pkg/otel"
	"github.com/lk2023060901/fleetalert/pkg/prometheus"
	"github.com/lk2023060901/fleetalert/pkg/scheduler"
	"github.com/lk2023060901/fleetalert/pkg/sentry"
	"github.com/lk2023060901/fleetalert/pkg/web"
)

// Config 告警引擎的完整配置结构
type Config struct {
	Log logger.Config `mapstructure:"log"`

	// 进程内 ID 生成器的机器号，多副本部署时需唯一
	MachineID uint16 `mapstructure:"machine_id"`

	HTTP web.Config `mapstructure:"http"`

	Postgres postgres.Config `mapstructure:"postgres"`
	Redis    redis.Config    `mapstructure:"redis"`

	Kafka  kafka.Config `mapstructure:"kafka"`
	Topics TopicsConfig `mapstructure:"topics"`

	Prometheus prometheus.Config `mapstructure:"prometheus"`
	Tracing    otel.Config       `mapstructure:"tracing"`

	// DSN 为空时不上报 Sentry
	Sentry sentry.Config `mapstructure:"sentry"`
	// webhook_url 为空时不推送运维群
	Feishu feishu.Config `mapstructure:"feishu"`
	// base_url 为空时 email / sms 渠道不可用
	Gateway gateway.Config `mapstructure:"gateway"`

	Access AccessConfig `mapstructure:"access"`
	Rules  RulesConfig  `mapstructure:"rules"`

	Lifecycle  lifecycle.Config         `mapstructure:"lifecycle"`
	Dispatch   dispatch.Config          `mapstructure:"dispatch"`
	Ops        ops.Config               `mapstructure:"ops"`
	Timer      TimerConfig              `mapstructure:"timer"`
	Intake     ingest.IntakeConfig      `mapstructure:"intake"`
	Scheduler  scheduler.Config         `mapstructure:"scheduler"`
	Reconciler service.ReconcilerConfig `mapstructure:"reconciler"`
}

// TopicsConfig Kafka 主题
type TopicsConfig struct {
	Facts         string `mapstructure:"facts"`
	Notifications string `mapstructure:"notifications"`
	Events        string `mapstructure:"events"`
}

// AccessConfig 调用方授权来源。http.base_url 非空时走授权服务，否则使用静态授权表
type AccessConfig struct {
	Grants []access.Grant     `mapstructure:"grants"`
	HTTP   access.HTTPConfig  `mapstructure:"http"`
	Cache  access.CacheConfig `mapstructure:"cache"`
}

// RulesConfig 规则表文件，path 为空时使用内置规则表
type RulesConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

// TimerConfig 定时器存储与轮询
type TimerConfig struct {
	Name    string             `mapstructure:"name"`
	LockKey string             `mapstructure:"lock_key"`
	LockTTL time.Duration      `mapstructure:"lock_ttl"`
	Poller  timer.PollerConfig `mapstructure:"poller"`
}
