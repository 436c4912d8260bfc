package lifecycle

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/dao"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/rule"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/timer"
	"github.com/lk2023060901/fleetalert/pkg/logger"
)

// Fire 处理到期定时器，作为 timer.Handler 注册到轮询器。
// 版本冲突时重读重试，告警不存在或已终态时为空操作
func (m *Manager) Fire(ctx context.Context, t timer.Timer) error {
	ctx = logger.WithAlertID(ctx, t.AlertID)
	for attempt := 0; ; attempt++ {
		err := m.fireOnce(ctx, t)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, dao.ErrNotFound):
			m.logger.WarnContext(ctx, "timer fired for unknown alert", "kind", t.Kind)
			return nil
		case errors.Is(err, dao.ErrVersionConflict) && attempt < m.cfg.ConflictRetries:
			m.logger.DebugContext(ctx, "timer handler conflict, retrying", "kind", t.Kind, "attempt", attempt+1)
			continue
		}
		return err
	}
}

func (m *Manager) fireOnce(ctx context.Context, t timer.Timer) error {
	defer m.observe("fire_"+string(t.Kind), m.clock.Now())

	unlock := m.locks.lock(t.AlertID)
	defer unlock()

	a, r, err := m.load(ctx, t.AlertID)
	if err != nil {
		return err
	}
	if a.Status.IsTerminal() {
		return nil
	}

	now := m.clock.Now()
	switch t.Kind {
	case timer.KindEscalation:
		return m.onEscalation(ctx, a, r, now)
	case timer.KindWake:
		return m.onWake(ctx, a, r, now)
	case timer.KindAutoDismiss:
		return m.onAutoDismiss(ctx, a, r, now)
	}
	return errors.Wrapf(timer.ErrMalformedTimer, "kind %q", t.Kind)
}

// onEscalation 只对从未确认、从未升级的 OPEN 告警生效，保证恰好一次
func (m *Manager) onEscalation(ctx context.Context, a *model.Alert, r *rule.Rule, now time.Time) error {
	if a.Status != model.StatusOpen || r == nil || r.Escalation == nil ||
		a.AcknowledgedAt != nil || a.EscalatedAt != nil {
		return nil
	}
	if deadline := a.CreatedAt.Add(r.Escalation.Deadline); now.Before(deadline) {
		return m.schedule(ctx, timer.Timer{AlertID: a.ID, Kind: timer.KindEscalation, FireAt: deadline})
	}
	return m.escalate(ctx, a, r, now)
}

// onWake SNOOZED -> OPEN。原升级期限已过则立即升级，否则按原期限重新登记；
// 自动关闭从唤醒时刻重新计时
func (m *Manager) onWake(ctx context.Context, a *model.Alert, r *rule.Rule, now time.Time) error {
	if a.Status != model.StatusSnoozed {
		return nil
	}
	if a.SnoozedUntil != nil && now.Before(*a.SnoozedUntil) {
		return m.schedule(ctx, timer.Timer{AlertID: a.ID, Kind: timer.KindWake, FireAt: *a.SnoozedUntil})
	}

	escalateNow := false
	var pending []timer.Timer
	if r != nil && r.Escalation != nil && a.AcknowledgedAt == nil && a.EscalatedAt == nil {
		deadline := a.CreatedAt.Add(r.Escalation.Deadline)
		if now.Before(deadline) {
			pending = append(pending, timer.Timer{AlertID: a.ID, Kind: timer.KindEscalation, FireAt: deadline})
		} else {
			escalateNow = true
		}
	}
	if !escalateNow && r != nil && r.AutoDismissAfter > 0 && a.AcknowledgedAt == nil {
		pending = append(pending, timer.Timer{AlertID: a.ID, Kind: timer.KindAutoDismiss, FireAt: now.Add(r.AutoDismissAfter)})
	}
	if err := m.schedule(ctx, pending...); err != nil {
		return err
	}

	a.Status = model.StatusOpen
	a.SnoozedUntil = nil
	a.UpdatedAt = now
	if err := m.commit(ctx, a, model.StatusSnoozed, model.EventWoken, SystemActor, ""); err != nil {
		m.cancel(ctx, a.ID, timer.KindEscalation, timer.KindAutoDismiss)
		return err
	}
	m.logger.InfoContext(ctx, "alert woken", "escalate_now", escalateNow)

	if escalateNow {
		return m.escalate(ctx, a, r, now)
	}
	return nil
}

// onAutoDismiss 未确认的非终态告警自动关闭，暂停中的告警由唤醒重新计时
func (m *Manager) onAutoDismiss(ctx context.Context, a *model.Alert, r *rule.Rule, now time.Time) error {
	if r == nil || r.AutoDismissAfter <= 0 || a.AcknowledgedAt != nil || a.Status == model.StatusSnoozed {
		return nil
	}

	from := a.Status
	a.Status = model.StatusAutoDismissed
	a.AutoDismissedAt = model.Ptr(now)
	a.UpdatedAt = now
	if err := m.commit(ctx, a, from, model.EventAutoDismissed, SystemActor, "auto dismiss window elapsed"); err != nil {
		return err
	}
	m.cancel(ctx, a.ID)
	if r.NotifyOnAutoDismiss != nil {
		m.dispatch(ctx, a, r.NotifyOnAutoDismiss.Roles, r.NotifyOnAutoDismiss.Channels)
	}
	return nil
}
