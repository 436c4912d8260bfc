// Package lifecycle 告警状态机：创建、确认、暂停、解除、升级与自动关闭
package lifecycle

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/dao"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/dispatch"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/evaluator"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/metrics"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/ops"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/rule"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/timer"
	"github.com/lk2023060901/fleetalert/pkg/idgen"
	"github.com/lk2023060901/fleetalert/pkg/logger"
)

// SystemActor 由引擎自身触发的变更
const SystemActor = "system"

// Config 生命周期配置
type Config struct {
	LockStripes int `mapstructure:"lock_stripes"`
	// 定时器处理遇到版本冲突时的重读次数
	ConflictRetries int `mapstructure:"conflict_retries"`

	ScheduleMaxTries        uint          `mapstructure:"schedule_max_tries"`
	ScheduleInitialInterval time.Duration `mapstructure:"schedule_initial_interval"`
	ScheduleMaxInterval     time.Duration `mapstructure:"schedule_max_interval"`

	ReconcileBatch int `mapstructure:"reconcile_batch"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		LockStripes:             256,
		ConflictRetries:         3,
		ScheduleMaxTries:        5,
		ScheduleInitialInterval: 100 * time.Millisecond,
		ScheduleMaxInterval:     2 * time.Second,
		ReconcileBatch:          500,
	}
}

// Option 管理器选项
type Option func(*Manager)

func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithDispatcher(d dispatch.Dispatcher) Option {
	return func(m *Manager) { m.dispatcher = d }
}

func WithEventSink(s EventSink) Option {
	return func(m *Manager) { m.events = s }
}

func WithReporter(r ops.Reporter) Option {
	return func(m *Manager) { m.reporter = r }
}

func WithMetrics(am *metrics.AlertMetrics) Option {
	return func(m *Manager) { m.metrics = am }
}

// Manager 告警状态机。所有变更在告警级锁内进行，并以乐观锁写入存储
type Manager struct {
	cfg        *Config
	store      dao.AlertStore
	timers     timer.Store
	rules      *rule.Registry
	ids        idgen.Generator
	dispatcher dispatch.Dispatcher
	events     EventSink
	reporter   ops.Reporter
	clock      clockwork.Clock
	locks      *stripedMutex
	logger     logger.Logger
	metrics    *metrics.AlertMetrics
}

// NewManager 创建管理器
func NewManager(
	cfg *Config,
	store dao.AlertStore,
	timers timer.Store,
	rules *rule.Registry,
	ids idgen.Generator,
	l logger.Logger,
	opts ...Option,
) *Manager {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = def.ConflictRetries
	}
	if cfg.ScheduleMaxTries == 0 {
		cfg.ScheduleMaxTries = def.ScheduleMaxTries
	}
	if cfg.ScheduleInitialInterval <= 0 {
		cfg.ScheduleInitialInterval = def.ScheduleInitialInterval
	}
	if cfg.ScheduleMaxInterval <= 0 {
		cfg.ScheduleMaxInterval = def.ScheduleMaxInterval
	}
	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = def.ReconcileBatch
	}
	m := &Manager{
		cfg:      cfg,
		store:    store,
		timers:   timers,
		rules:    rules,
		ids:      ids,
		events:   nopSink{},
		reporter: ops.Nop{},
		clock:    clockwork.NewRealClock(),
		locks:    newStripedMutex(cfg.LockStripes),
		logger:   l.Named("lifecycle"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create 按创建意图开启新告警。
// 定时器先于告警写入登记，登记失败时告警不会被创建
func (m *Manager) Create(ctx context.Context, in *evaluator.CreateIntent) (*model.Alert, error) {
	defer m.observe("create", m.clock.Now())

	unlock := m.locks.lock(in.Key().String())
	defer unlock()

	r := m.rules.RuleFor(in.RuleVersion, in.Severity)
	if r == nil {
		return nil, errors.Wrapf(rule.ErrMalformedRule, "no %s rule in version %s", in.Severity, in.RuleVersion)
	}
	id, err := idgen.NextString(m.ids)
	if err != nil {
		return nil, errors.Wrap(err, "generate alert id")
	}

	now := m.clock.Now()
	f := in.Fact
	a := &model.Alert{
		ID:                id,
		Category:          f.Category,
		Severity:          in.Severity,
		Status:            model.StatusOpen,
		CompanyID:         f.CompanyID,
		SourceModule:      f.SourceModule,
		RelatedEntityType: f.EntityType,
		RelatedEntityID:   f.EntityID,
		Title:             in.Title(),
		Message:           in.Message(),
		RuleVersion:       in.RuleVersion,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if f.VesselID != nil {
		a.VesselID = model.Ptr(*f.VesselID)
	}
	if f.DueAt != nil {
		a.DueAt = model.Ptr(*f.DueAt)
	}
	ctx = logger.WithAlertID(ctx, id)

	var pending []timer.Timer
	if r.Escalation != nil {
		pending = append(pending, timer.Timer{AlertID: id, Kind: timer.KindEscalation, FireAt: now.Add(r.Escalation.Deadline)})
	}
	if r.AutoDismissAfter > 0 {
		pending = append(pending, timer.Timer{AlertID: id, Kind: timer.KindAutoDismiss, FireAt: now.Add(r.AutoDismissAfter)})
	}
	if err := m.schedule(ctx, pending...); err != nil {
		return nil, err
	}

	if err := m.store.Create(ctx, a); err != nil {
		m.cancel(ctx, id)
		return nil, err
	}

	m.metrics.RecordCreated(string(a.Severity), string(a.Category))
	m.metrics.RecordTransition("", string(a.Status))
	m.emit(ctx, model.EventCreated, a, "", SystemActor, "")
	m.logger.InfoContext(ctx, "alert created",
		"severity", a.Severity, "category", a.Category, "entity_id", a.RelatedEntityID, "vessel_id", a.VesselKey())

	if r.NotifyOnCreate != nil {
		m.dispatch(ctx, a, r.NotifyOnCreate.Roles, r.NotifyOnCreate.Channels)
	}
	return a, nil
}

// Acknowledge 确认告警，只允许从 OPEN 或 ESCALATED 进入。
// 升级期限已过但尚未升级时，先提交升级再提交确认
func (m *Manager) Acknowledge(ctx context.Context, id, actor string) (*model.Alert, error) {
	defer m.observe("acknowledge", m.clock.Now())
	ctx = logger.WithAlertID(ctx, id)

	unlock := m.locks.lock(id)
	defer unlock()

	a, r, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status.IsTerminal() {
		return nil, m.rejected(ctx, reject(CodeTerminalState, "alert is %s", a.Status))
	}
	if a.Status != model.StatusOpen && a.Status != model.StatusEscalated {
		return nil, m.rejected(ctx, reject(CodeInvalidTransition, "cannot acknowledge a %s alert", a.Status))
	}

	now := m.clock.Now()
	if a.Status == model.StatusOpen && escalationDue(a, r, now) {
		if err := m.escalate(ctx, a, r, now); err != nil {
			return nil, err
		}
	}

	from := a.Status
	a.Status = model.StatusAcknowledged
	a.AcknowledgedAt = model.Ptr(now)
	a.AcknowledgedBy = actor
	a.UpdatedAt = now
	if err := m.commit(ctx, a, from, model.EventAcknowledged, actor, ""); err != nil {
		return nil, err
	}
	m.cancel(ctx, id, timer.KindEscalation, timer.KindAutoDismiss)
	return a, nil
}

// Snooze 暂停告警。超出上限时拒绝，不做截断
func (m *Manager) Snooze(ctx context.Context, id string, d time.Duration, reason, actor string) (*model.Alert, error) {
	defer m.observe("snooze", m.clock.Now())
	ctx = logger.WithAlertID(ctx, id)

	unlock := m.locks.lock(id)
	defer unlock()

	a, r, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkSnooze(a, r, d, reason); err != nil {
		return nil, m.rejected(ctx, err)
	}

	now := m.clock.Now()
	until := now.Add(d)
	if err := m.schedule(ctx, timer.Timer{AlertID: id, Kind: timer.KindWake, FireAt: until}); err != nil {
		return nil, err
	}

	from := a.Status
	a.Status = model.StatusSnoozed
	a.SnoozedUntil = model.Ptr(until)
	a.SnoozeReason = strings.TrimSpace(reason)
	a.SnoozeCount++
	a.UpdatedAt = now
	if err := m.commit(ctx, a, from, model.EventSnoozed, actor, a.SnoozeReason); err != nil {
		m.cancel(ctx, id, timer.KindWake)
		return nil, err
	}
	m.cancel(ctx, id, timer.KindEscalation, timer.KindAutoDismiss)
	return a, nil
}

func checkSnooze(a *model.Alert, r *rule.Rule, d time.Duration, reason string) error {
	switch {
	case a.Status.IsTerminal():
		return reject(CodeTerminalState, "alert is %s", a.Status)
	case a.Status == model.StatusEscalated:
		return reject(CodeInvalidTransition, "escalated alerts can only be acknowledged")
	case a.Status != model.StatusOpen && a.Status != model.StatusAcknowledged:
		return reject(CodeInvalidTransition, "cannot snooze a %s alert", a.Status)
	case d <= 0:
		return reject(CodeInvalidDuration, "snooze duration must be positive, got %s", d)
	case r == nil || !r.Snooze.Allowed:
		return reject(CodeSnoozeNotAllowed, "%s alerts cannot be snoozed", a.Severity)
	case a.SnoozeCount >= r.Snooze.MaxSnoozes:
		return reject(CodeMaxSnoozesReached, "alert already snoozed %d of %d times", a.SnoozeCount, r.Snooze.MaxSnoozes)
	case d > r.Snooze.MaxDuration:
		return reject(CodeSnoozeDurationExceeded, "snooze %s exceeds maximum %s", d, r.Snooze.MaxDuration)
	case r.Snooze.RequiresReason && strings.TrimSpace(reason) == "":
		return reject(CodeSnoozeReasonRequired, "%s alerts require a snooze reason", a.Severity)
	}
	return nil
}

// Resolve 从任意非终态解除告警
func (m *Manager) Resolve(ctx context.Context, id, actor, reason string) (*model.Alert, error) {
	defer m.observe("resolve", m.clock.Now())
	ctx = logger.WithAlertID(ctx, id)

	unlock := m.locks.lock(id)
	defer unlock()

	a, _, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status.IsTerminal() {
		return nil, m.rejected(ctx, reject(CodeTerminalState, "alert is %s", a.Status))
	}

	now := m.clock.Now()
	from := a.Status
	a.Status = model.StatusResolved
	a.ResolvedAt = model.Ptr(now)
	a.ResolvedBy = actor
	a.UpdatedAt = now
	if err := m.commit(ctx, a, from, model.EventResolved, actor, reason); err != nil {
		return nil, err
	}
	m.cancel(ctx, id)
	return a, nil
}

// ApplyResolve 执行评估器给出的解除意图，已是终态的告警忽略
func (m *Manager) ApplyResolve(ctx context.Context, in evaluator.ResolveIntent) error {
	_, err := m.Resolve(ctx, in.AlertID, SystemActor, string(in.Reason))
	if re, ok := AsRejection(err); ok && re.Code == CodeTerminalState {
		return nil
	}
	return err
}

// Get 读取告警
func (m *Manager) Get(ctx context.Context, id string) (*model.Alert, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) load(ctx context.Context, id string) (*model.Alert, *rule.Rule, error) {
	a, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	// 既有告警沿用创建时的规则版本
	return a, m.rules.RuleFor(a.RuleVersion, a.Severity), nil
}

func escalationDue(a *model.Alert, r *rule.Rule, now time.Time) bool {
	return r != nil && r.Escalation != nil &&
		a.AcknowledgedAt == nil && a.EscalatedAt == nil &&
		!now.Before(a.CreatedAt.Add(r.Escalation.Deadline))
}

// escalate 提交升级并推送，调用方持有告警锁
func (m *Manager) escalate(ctx context.Context, a *model.Alert, r *rule.Rule, now time.Time) error {
	from := a.Status
	a.Status = model.StatusEscalated
	a.EscalatedAt = model.Ptr(now)
	a.EscalationTargetRoles = slices.Clone(r.Escalation.EscalateToRoles)
	a.UpdatedAt = now
	if err := m.commit(ctx, a, from, model.EventEscalated, SystemActor, "escalation deadline elapsed"); err != nil {
		return err
	}
	m.cancel(ctx, a.ID, timer.KindEscalation, timer.KindAutoDismiss)
	m.logger.WarnContext(ctx, "alert escalated", "severity", a.Severity, "roles", a.EscalationTargetRoles)
	m.dispatch(ctx, a, r.Escalation.EscalateToRoles, r.Escalation.NotifyChannels)
	return nil
}

func (m *Manager) commit(ctx context.Context, a *model.Alert, from model.Status, ev model.EventType, actor, reason string) error {
	if err := m.store.Update(ctx, a); err != nil {
		return err
	}
	m.metrics.RecordTransition(string(from), string(a.Status))
	m.emit(ctx, ev, a, from, actor, reason)
	return nil
}

// schedule 逐个登记定时器并带退避重试，任一失败时撤销本次已登记的定时器
func (m *Manager) schedule(ctx context.Context, timers ...timer.Timer) error {
	for i, t := range timers {
		if err := m.scheduleOne(ctx, t); err != nil {
			for _, done := range timers[:i] {
				if cerr := m.timers.Cancel(context.WithoutCancel(ctx), done.AlertID, done.Kind); cerr != nil {
					m.logger.WarnContext(ctx, "timer rollback failed", "kind", done.Kind, "error", cerr)
				}
			}
			return err
		}
	}
	return nil
}

func (m *Manager) scheduleOne(ctx context.Context, t timer.Timer) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.ScheduleInitialInterval
	b.MaxInterval = m.cfg.ScheduleMaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, m.timers.Schedule(ctx, t)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(m.cfg.ScheduleMaxTries))
	if err == nil {
		return nil
	}

	m.metrics.RecordTimerScheduleFailure(string(t.Kind))
	m.reporter.Report(ctx, ops.Incident{
		Title:  "timer scheduling exhausted",
		Err:    err,
		Labels: map[string]string{"alert_id": t.AlertID, "kind": string(t.Kind)},
	})
	return errors.Wrapf(ErrTimerSchedule, "%s timer for %s: %v", t.Kind, t.AlertID, err)
}

// cancel 尽力取消，残留的定时器触发时会被状态守卫忽略
func (m *Manager) cancel(ctx context.Context, id string, kinds ...timer.Kind) {
	if err := m.timers.Cancel(context.WithoutCancel(ctx), id, kinds...); err != nil {
		m.logger.WarnContext(ctx, "timer cancel failed", "kinds", kinds, "error", err)
	}
}

func (m *Manager) dispatch(ctx context.Context, a *model.Alert, roles []string, channels []model.Channel) {
	if m.dispatcher == nil || len(channels) == 0 {
		return
	}
	if err := m.dispatcher.Dispatch(ctx, a, roles, channels); err != nil {
		m.logger.WarnContext(ctx, "dispatch not accepted", "channels", channels, "error", err)
	}
}

func (m *Manager) emit(ctx context.Context, typ model.EventType, a *model.Alert, from model.Status, actor, reason string) {
	ev := &model.Event{
		Type:      typ,
		AlertID:   a.ID,
		From:      from,
		To:        a.Status,
		Actor:     actor,
		Reason:    reason,
		Alert:     a.Clone(),
		Timestamp: a.UpdatedAt,
	}
	if err := m.events.Publish(ctx, ev); err != nil {
		m.logger.WarnContext(ctx, "alert event publish failed", "type", typ, "error", err)
	}
}

func (m *Manager) rejected(ctx context.Context, err error) error {
	if re, ok := AsRejection(err); ok {
		m.metrics.RecordRejection(string(re.Code))
		m.logger.InfoContext(ctx, "operation rejected", "code", re.Code, "reason", re.Message)
	}
	return err
}

func (m *Manager) observe(op string, start time.Time) {
	m.metrics.ObserveTransition(op, m.clock.Since(start).Seconds())
}
