package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/access"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/dao"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/dispatch"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/handler"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/ingest"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/lifecycle"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/metrics"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/ops"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/rule"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/service"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/timer"
	"github.com/lk2023060901/fleetalert/pkg/app"
	"github.com/lk2023060901/fleetalert/pkg/config"
	"github.com/lk2023060901/fleetalert/pkg/database/postgres"
	"github.com/lk2023060901/fleetalert/pkg/database/redis"
	"github.com/lk2023060901/fleetalert/pkg/idgen"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/mq/kafka"
	"github.com/lk2023060901/fleetalert/pkg/notify"
	"github.com/lk2023060901/fleetalert/pkg/notify/feishu"
	"github.com/lk2023060901/fleetalert/pkg/notify/gateway"
	"github.com/lk2023060901/fleetalert/pkg/otel"
	"github.com/lk2023060901/fleetalert/pkg/prometheus"
	"github.com/lk2023060901/fleetalert/pkg/scheduler"
	"github.com/lk2023060901/fleetalert/pkg/sentry"
	"github.com/lk2023060901/fleetalert/pkg/web"
	webmetrics "github.com/lk2023060901/fleetalert/pkg/web/metrics"
	"github.com/lk2023060901/fleetalert/pkg/web/middleware"
)

const (
	defaultTimerName    = "alert_timers"
	defaultPollerLock   = "alert_timers:poller"
	defaultPollerLockTT = 10 * time.Second
	migrateTimeout      = 30 * time.Second
)

func provideAppOptions(l logger.Logger) []app.Option {
	return []app.Option{
		app.WithName("alerting"),
		app.WithLogger(l),
	}
}

func provideClock() clockwork.Clock {
	return clockwork.NewRealClock()
}

func providePrometheus(cfg *Config, l logger.Logger) (*prometheus.Client, error) {
	return prometheus.New(&cfg.Prometheus, l)
}

func provideTracing(cfg *Config) (*otel.TracerProvider, error) {
	return otel.New(&cfg.Tracing)
}

func providePostgres(cfg *Config, l logger.Logger) (*postgres.Client, error) {
	return postgres.New(&cfg.Postgres, l)
}

func provideRedis(cfg *Config) (*redis.Client, error) {
	return redis.NewClient(&cfg.Redis)
}

// provideAlertDAO 创建告警存储并在启动时建表
func provideAlertDAO(db *postgres.Client, l logger.Logger, m *metrics.AlertMetrics) (*dao.AlertDAO, error) {
	d := dao.NewAlertDAO(db, l, m)
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()
	if err := d.Migrate(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func provideTimerStore(cfg *Config, rc *redis.Client) *timer.RedisStore {
	name := cfg.Timer.Name
	if name == "" {
		name = defaultTimerName
	}
	return timer.NewRedisStore(rc, name)
}

// provideRules 加载规则表，未配置文件时使用内置规则表；存档中的历史版本一并补录
func provideRules(cfg *Config, archive rule.Archive, l logger.Logger) (*rule.Registry, error) {
	table := rule.DefaultTable()
	if cfg.Rules.Path != "" {
		t, err := rule.LoadFile(cfg.Rules.Path)
		if err != nil {
			return nil, err
		}
		table = t
	}
	reg, err := rule.NewRegistry(table)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()
	restored, err := rule.Restore(ctx, reg, archive)
	if err != nil {
		return nil, err
	}
	l.Info("rule table loaded", "version", table.Version, "path", cfg.Rules.Path, "restored_versions", restored)
	return reg, nil
}

func provideIDGenerator(cfg *Config) (idgen.Generator, error) {
	return idgen.NewSonyflake(cfg.MachineID)
}

// provideSentry DSN 为空时返回 nil，上报器只写日志
func provideSentry(cfg *Config) (*sentry.Client, error) {
	if cfg.Sentry.DSN == "" {
		return nil, nil
	}
	return sentry.New(&cfg.Sentry)
}

func provideReporter(cfg *Config, sc *sentry.Client, l logger.Logger) (*ops.OpsReporter, error) {
	var capturer ops.ErrorCapturer
	if sc != nil {
		capturer = sc
	}
	var n notify.Notifier
	if cfg.Feishu.WebhookURL != "" {
		a, err := feishu.NewAdapter(&cfg.Feishu)
		if err != nil {
			return nil, err
		}
		n = a
	}
	return ops.New(&cfg.Ops, capturer, n, l), nil
}

// producers 通知与事件两个主题的生产者
type producers struct {
	notifications *kafka.Producer
	events        *kafka.Producer
}

func (p *producers) Close() error {
	var first error
	for _, pr := range []*kafka.Producer{p.notifications, p.events} {
		if err := pr.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func provideProducers(cfg *Config, l logger.Logger) (*producers, error) {
	notifications, err := kafka.NewProducer(&cfg.Kafka, orDefault(cfg.Topics.Notifications, dispatch.DefaultTopic), l)
	if err != nil {
		return nil, err
	}
	events, err := kafka.NewProducer(&cfg.Kafka, orDefault(cfg.Topics.Events, lifecycle.DefaultEventTopic), l)
	if err != nil {
		_ = notifications.Close()
		return nil, err
	}
	return &producers{notifications: notifications, events: events}, nil
}

func provideEventSink(p *producers) *lifecycle.KafkaEventSink {
	return lifecycle.NewKafkaEventSink(p.events)
}

// provideDispatcher 站内信走 Kafka，邮件与短信走投递网关
func provideDispatcher(
	cfg *Config,
	p *producers,
	reporter ops.Reporter,
	m *metrics.AlertMetrics,
	l logger.Logger,
) (*dispatch.AsyncDispatcher, error) {
	notifiers := map[model.Channel]notify.Notifier{
		model.ChannelInApp: dispatch.NewInAppNotifier(p.notifications),
	}
	if cfg.Gateway.BaseURL != "" {
		for _, ch := range []model.Channel{model.ChannelEmail, model.ChannelSMS} {
			n, err := gateway.New(string(ch), &cfg.Gateway)
			if err != nil {
				return nil, err
			}
			notifiers[ch] = n
		}
	} else {
		l.Warn("delivery gateway not configured, email and sms notifications disabled")
	}
	return dispatch.NewAsyncDispatcher(&cfg.Dispatch, notifiers, reporter, m, l), nil
}

func provideManager(
	cfg *Config,
	store dao.AlertStore,
	timers timer.Store,
	rules *rule.Registry,
	ids idgen.Generator,
	d *dispatch.AsyncDispatcher,
	sink *lifecycle.KafkaEventSink,
	reporter ops.Reporter,
	clock clockwork.Clock,
	m *metrics.AlertMetrics,
	l logger.Logger,
) *lifecycle.Manager {
	return lifecycle.NewManager(&cfg.Lifecycle, store, timers, rules, ids, l,
		lifecycle.WithDispatcher(d),
		lifecycle.WithEventSink(sink),
		lifecycle.WithReporter(reporter),
		lifecycle.WithClock(clock),
		lifecycle.WithMetrics(m),
	)
}

// provideGrants 授权服务优先，未配置时使用静态授权表，两者都带缓存
func provideGrants(cfg *Config) (*access.CachedProvider, error) {
	var next access.Provider
	if cfg.Access.HTTP.BaseURL != "" {
		p, err := access.NewHTTPProvider(&cfg.Access.HTTP)
		if err != nil {
			return nil, err
		}
		next = p
	} else {
		p, err := access.NewStaticProvider(cfg.Access.Grants)
		if err != nil {
			return nil, err
		}
		next = p
	}
	return access.NewCachedProvider(next, &cfg.Access.Cache), nil
}

func provideIntake(cfg *Config, proc ingest.Processor, l logger.Logger) *ingest.Intake {
	return ingest.NewIntake(&cfg.Intake, proc, l)
}

func provideFactConsumer(cfg *Config, proc ingest.Processor, l logger.Logger) (*ingest.FactConsumer, error) {
	return ingest.NewFactConsumer(&cfg.Kafka, cfg.Topics.Facts, proc, l)
}

func provideHandler(
	svc handler.AlertService,
	intake handler.FactIntake,
	store *dao.AlertDAO,
	rc *redis.Client,
	l logger.Logger,
) *handler.Handler {
	checks := map[string]handler.Pinger{
		"postgres": store.Ping,
		"redis":    rc.Ping,
	}
	return handler.New(svc, intake, checks, l)
}

// provideRateLimiter 未开启限流时返回 nil
func provideRateLimiter(cfg *Config, l logger.Logger) *middleware.RateLimiter {
	if !cfg.HTTP.RateLimit.Enabled {
		return nil
	}
	return middleware.NewRateLimiter(&cfg.HTTP.RateLimit, l)
}

// provideWebServer 注册业务路由，独立指标服务关闭时在业务端口挂载 /metrics
func provideWebServer(
	cfg *Config,
	h *handler.Handler,
	prom *prometheus.Client,
	tp *otel.TracerProvider,
	sc *sentry.Client,
	rl *middleware.RateLimiter,
	l logger.Logger,
) (*web.Server, error) {
	hm, err := webmetrics.New(prom)
	if err != nil {
		return nil, err
	}
	opts := []web.ServerOption{web.WithMiddleware(
		middleware.Tracing(tp.Tracer("fleetalert/http")),
		middleware.Metrics(hm),
	)}
	if rl != nil {
		opts = append(opts, web.WithMiddleware(middleware.RateLimit(rl)))
	}
	if sc != nil {
		opts = append(opts, web.WithPanicReporter(func(r any) { sc.RecoverWithContext(r) }))
	}

	srv, err := web.NewServer(&cfg.HTTP, l, opts...)
	if err != nil {
		return nil, err
	}
	h.Register(srv.Router())
	if !cfg.Prometheus.HTTPServer.Enabled {
		path := orDefault(cfg.Prometheus.HTTPServer.Path, "/metrics")
		srv.Router().GET(path, gin.WrapH(prom.Handler()))
	}
	return srv, nil
}

// providePoller 多副本通过 Redis 锁选出轮询者
func providePoller(
	cfg *Config,
	timers timer.Store,
	mgr *lifecycle.Manager,
	rc *redis.Client,
	clock clockwork.Clock,
	m *metrics.AlertMetrics,
	l logger.Logger,
) *timer.Poller {
	ttl := cfg.Timer.LockTTL
	if ttl <= 0 {
		ttl = defaultPollerLockTT
	}
	lock := redis.NewLock(rc, orDefault(cfg.Timer.LockKey, defaultPollerLock), ttl)
	return timer.NewPoller(&cfg.Timer.Poller, timers, mgr.Fire, l,
		timer.WithLocker(lock),
		timer.WithClock(clock),
		timer.WithMetrics(m),
	)
}

func provideScheduler(cfg *Config, l logger.Logger) (*scheduler.Scheduler, error) {
	return scheduler.New(&cfg.Scheduler, scheduler.WithLogger(l))
}

func provideReconciler(cfg *Config, mgr *lifecycle.Manager, l logger.Logger) *service.Reconciler {
	return service.NewReconciler(&cfg.Reconciler, mgr, l)
}

// ruleWatcher 规则文件变更时热加载新版本
type ruleWatcher struct {
	path   string
	svc    *service.Service
	logger logger.Logger
}

func provideRuleWatcher(cfg *Config, svc *service.Service, l logger.Logger) *ruleWatcher {
	if cfg.Rules.Path == "" || !cfg.Rules.Watch {
		return nil
	}
	return &ruleWatcher{path: cfg.Rules.Path, svc: svc, logger: l.Named("rules.watch")}
}

func (w *ruleWatcher) Start() error {
	mgr := config.NewManager()
	if err := mgr.LoadFile(w.path); err != nil {
		return err
	}
	mgr.Watch(func(path string) {
		if err := w.svc.ReloadRules(context.Background(), path); err != nil {
			w.logger.Error("rule reload failed", "path", path, "error", err)
		}
	})
	w.logger.Info("watching rule table", "path", w.path)
	return nil
}

func (w *ruleWatcher) Stop() error { return nil }

// provideComponents 收集服务与资源。关闭顺序与追加顺序相反
func provideComponents(
	db *postgres.Client,
	rc *redis.Client,
	prom *prometheus.Client,
	tp *otel.TracerProvider,
	sc *sentry.Client,
	reporter *ops.OpsReporter,
	p *producers,
	d *dispatch.AsyncDispatcher,
	grants *access.CachedProvider,
	intake *ingest.Intake,
	consumer *ingest.FactConsumer,
	srv *web.Server,
	rl *middleware.RateLimiter,
	poller *timer.Poller,
	sched *scheduler.Scheduler,
	reconciler *service.Reconciler,
	watcher *ruleWatcher,
) app.Components {
	servers := []app.Server{
		poller,
		app.ServerFuncs{
			StartFunc: func() error {
				if err := reconciler.Register(sched); err != nil {
					return err
				}
				sched.Start()
				return nil
			},
			StopFunc: func() error {
				<-sched.Stop().Done()
				return nil
			},
		},
		consumer,
		srv,
	}
	if watcher != nil {
		servers = append(servers, watcher)
	}

	closers := []app.Closer{db, rc, prom, tp}
	if sc != nil {
		closers = append(closers, sc)
	}
	closers = append(closers, reporter, p, d, grants, intake, consumer, sched)
	if rl != nil {
		closers = append(closers, rl)
	}
	return app.Components{Servers: servers, Closers: closers}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
