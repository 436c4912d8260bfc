//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/access"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/dao"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/handler"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/ingest"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/metrics"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/ops"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/rule"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/scope"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/service"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/timer"
	"github.com/lk2023060901/fleetalert/pkg/app"
	"github.com/lk2023060901/fleetalert/pkg/logger"
)

func InitApp(cfg *Config, l logger.Logger) (*app.BaseApp, error) {
	panic(wire.Build(
		// 1. 基础框架
		app.ProviderSet,
		provideAppOptions,
		provideComponents,

		// 2. 可观测性
		providePrometheus,
		provideTracing,
		metrics.New,
		provideSentry,
		provideReporter,
		wire.Bind(new(ops.Reporter), new(*ops.OpsReporter)),

		// 3. 存储
		providePostgres,
		provideAlertDAO,
		wire.Bind(new(dao.AlertStore), new(*dao.AlertDAO)),
		wire.Bind(new(rule.Archive), new(*dao.AlertDAO)),
		provideRedis,
		provideTimerStore,
		wire.Bind(new(timer.Store), new(*timer.RedisStore)),

		// 4. 规则与状态机
		provideClock,
		provideRules,
		provideIDGenerator,
		provideProducers,
		provideEventSink,
		provideDispatcher,
		provideManager,

		// 5. 门面
		provideGrants,
		wire.Bind(new(access.Provider), new(*access.CachedProvider)),
		scope.NewResolver,
		service.New,
		wire.Bind(new(ingest.Processor), new(*service.Service)),
		wire.Bind(new(handler.AlertService), new(*service.Service)),

		// 6. 接入
		provideIntake,
		wire.Bind(new(handler.FactIntake), new(*ingest.Intake)),
		provideFactConsumer,
		provideHandler,
		provideRateLimiter,
		provideWebServer,

		// 7. 后台任务
		providePoller,
		provideScheduler,
		provideReconciler,
		provideRuleWatcher,
	))
}
