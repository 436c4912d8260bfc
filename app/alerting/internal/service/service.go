// Package service 组合评估、生命周期与范围解析，对外提供事实处理与调用方操作
package service

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/access"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/dao"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/evaluator"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/lifecycle"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/metrics"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/ops"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/rule"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/scope"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("fleetalert/service")

// BatchStats 一批事实的处理结果
type BatchStats struct {
	Created      int
	Resolved     int
	Noop         int
	ConfigErrors int
	Failed       int
}

// Service 告警引擎门面
type Service struct {
	store    dao.AlertStore
	manager  *lifecycle.Manager
	resolver *scope.Resolver
	grants   access.Provider
	rules    *rule.Registry
	archive  rule.Archive
	reporter ops.Reporter
	logger   logger.Logger
	metrics  *metrics.AlertMetrics
}

// New 创建门面，archive、reporter 与 m 可以为 nil
func New(
	store dao.AlertStore,
	manager *lifecycle.Manager,
	resolver *scope.Resolver,
	grants access.Provider,
	rules *rule.Registry,
	archive rule.Archive,
	reporter ops.Reporter,
	l logger.Logger,
	m *metrics.AlertMetrics,
) *Service {
	if reporter == nil {
		reporter = ops.Nop{}
	}
	return &Service{
		store:    store,
		manager:  manager,
		resolver: resolver,
		grants:   grants,
		rules:    rules,
		archive:  archive,
		reporter: reporter,
		logger:   l.Named("service"),
		metrics:  m,
	}
}

// ProcessFacts 逐个评估并执行意图。
// 配置错误记录后丢弃该事实，其余事实继续；基础设施错误汇总返回以便上游重试
func (s *Service) ProcessFacts(ctx context.Context, facts []*model.Fact) (_ BatchStats, err error) {
	ctx, span := tracer.Start(ctx, "ProcessFacts")
	span.SetAttributes(attribute.Int("facts", len(facts)))
	defer func() { otel.End(span, err) }()

	var (
		stats BatchStats
		errs  []error
	)
	lookup := func(f *model.Fact) ([]*model.Alert, error) {
		return s.store.FindActive(ctx, f.CompanyID, f.Category, f.EntityID)
	}
	evaluator.EvaluateBatch(facts, s.rules.Latest(), lookup, func(res evaluator.Result) {
		if res.Err != nil {
			if evaluator.IsConfigError(res.Err) {
				stats.ConfigErrors++
				s.metrics.RecordConfigError(configErrorKind(res.Err))
				s.logger.WarnContext(ctx, "fact dropped",
					"category", res.Fact.Category, "entity_id", res.Fact.EntityID, "error", res.Err)
				return
			}
			stats.Failed++
			s.metrics.RecordFact(metrics.ResultFailed)
			errs = append(errs, res.Err)
			return
		}
		if err := s.apply(ctx, res.Decision, &stats); err != nil {
			stats.Failed++
			s.metrics.RecordFact(metrics.ResultFailed)
			s.logger.ErrorContext(ctx, "apply decision failed",
				"category", res.Fact.Category, "entity_id", res.Fact.EntityID, "error", err)
			errs = append(errs, err)
		}
	})
	return stats, errors.Join(errs...)
}

// ProcessFact 处理单个事实
func (s *Service) ProcessFact(ctx context.Context, f *model.Fact) error {
	_, err := s.ProcessFacts(ctx, []*model.Fact{f})
	return err
}

func (s *Service) apply(ctx context.Context, d evaluator.Decision, stats *BatchStats) error {
	if d.IsNoop() {
		stats.Noop++
		s.metrics.RecordFact(metrics.ResultNoop)
		return nil
	}
	for _, r := range d.Resolve {
		if err := s.manager.ApplyResolve(ctx, r); err != nil && !errors.Is(err, dao.ErrNotFound) {
			return errors.Wrapf(err, "resolve %s", r.AlertID)
		}
		stats.Resolved++
		s.metrics.RecordFact(metrics.ResultResolved)
	}
	if d.Create == nil {
		return nil
	}
	_, err := s.manager.Create(ctx, d.Create)
	switch {
	case err == nil:
		stats.Created++
		s.metrics.RecordFact(metrics.ResultCreated)
	case errors.Is(err, dao.ErrDuplicate):
		// 并发评估已创建同一告警
		stats.Noop++
		s.metrics.RecordFact(metrics.ResultNoop)
	default:
		return errors.Wrapf(err, "create %s", d.Create.Key())
	}
	return nil
}

func configErrorKind(err error) string {
	switch {
	case errors.Is(err, evaluator.ErrUnknownCategory):
		return "unknown_category"
	case errors.Is(err, rule.ErrAttributeType):
		return "attribute_type"
	case errors.Is(err, model.ErrInvalidFact):
		return "invalid_fact"
	}
	return "malformed_rule"
}

// Grant 查询调用方授权
func (s *Service) Grant(ctx context.Context, callerID string) (*access.Grant, error) {
	if callerID == "" {
		return nil, errors.Wrap(access.ErrUnknownCaller, "empty caller id")
	}
	return s.grants.Grant(ctx, callerID)
}

// List 调用方可见的告警
func (s *Service) List(ctx context.Context, callerID string, f model.Filter) ([]model.View, error) {
	g, err := s.Grant(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return s.resolver.VisibleAlerts(ctx, g, f)
}

// Counts 调用方范围内的仪表盘计数
func (s *Service) Counts(ctx context.Context, callerID string) (*scope.Counts, error) {
	g, err := s.Grant(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return s.resolver.AggregateCounts(ctx, g)
}

// Get 读取单条告警
func (s *Service) Get(ctx context.Context, callerID, id string) (model.View, error) {
	g, err := s.Grant(ctx, callerID)
	if err != nil {
		return model.View{}, err
	}
	return s.resolver.VisibleAlert(ctx, g, id)
}

// Acknowledge 调用方确认告警
func (s *Service) Acknowledge(ctx context.Context, callerID, id string) (model.View, error) {
	return s.mutate(ctx, callerID, id, func(actor string) (*model.Alert, error) {
		return s.manager.Acknowledge(ctx, id, actor)
	})
}

// Snooze 调用方暂停告警
func (s *Service) Snooze(ctx context.Context, callerID, id string, d time.Duration, reason string) (model.View, error) {
	return s.mutate(ctx, callerID, id, func(actor string) (*model.Alert, error) {
		return s.manager.Snooze(ctx, id, d, reason, actor)
	})
}

// Resolve 调用方解除告警
func (s *Service) Resolve(ctx context.Context, callerID, id, reason string) (model.View, error) {
	return s.mutate(ctx, callerID, id, func(actor string) (*model.Alert, error) {
		return s.manager.Resolve(ctx, id, actor, reason)
	})
}

// mutate 范围外的告警按不存在处理，只读授权拒绝变更
func (s *Service) mutate(ctx context.Context, callerID, id string, op func(actor string) (*model.Alert, error)) (model.View, error) {
	g, err := s.Grant(ctx, callerID)
	if err != nil {
		return model.View{}, err
	}
	if _, err := s.resolver.VisibleAlert(ctx, g, id); err != nil {
		return model.View{}, err
	}
	if err := g.CheckWrite(); err != nil {
		return model.View{}, err
	}
	a, err := op(g.CallerID)
	if err != nil {
		return model.View{}, err
	}
	return model.NewView(a, s.resolver.Now()), nil
}

// ReloadRules 注册新版本规则表，只影响此后创建的告警
func (s *Service) ReloadRules(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read rules %s", path)
	}
	t, err := rule.Parse(data)
	if err == nil {
		err = s.rules.Register(t)
	}
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "rule table registered", "version", t.Version, "path", path)
		if err := rule.Save(ctx, s.archive, t); err != nil {
			// 新表已生效，存档失败只影响重启后老告警的策略查找
			s.reporter.Report(ctx, ops.Incident{
				Title:  "rule table archive failed",
				Err:    err,
				Labels: map[string]string{"version": t.Version},
			})
		}
		return nil
	case errors.Is(err, rule.ErrStaleVersion):
		s.logger.DebugContext(ctx, "rule table unchanged", "path", path, "error", err)
		return nil
	}
	s.reporter.Report(ctx, ops.Incident{
		Title:  "rule table reload rejected",
		Err:    err,
		Labels: map[string]string{"path": path},
	})
	return err
}

// Ping 检查存储可用
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
