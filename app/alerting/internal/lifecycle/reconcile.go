package lifecycle

import (
	"context"
	"time"

	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/timer"
)

// ReconcileStats 恢复扫描结果
type ReconcileStats struct {
	Scanned  int
	Restored int
}

// Reconcile 遍历全部非终态告警，补登记丢失的定时器。
// 已到期的定时器以过去的时间登记，下一轮轮询即会触发；已存在的定时器不覆盖
func (m *Manager) Reconcile(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats
	after := ""
	for {
		batch, err := m.store.ListNonTerminal(ctx, after, m.cfg.ReconcileBatch)
		if err != nil {
			return stats, err
		}
		if len(batch) == 0 {
			break
		}
		for _, a := range batch {
			after = a.ID
			stats.Scanned++
			n, err := m.restoreTimers(ctx, a)
			if err != nil {
				return stats, err
			}
			stats.Restored += n
		}
	}
	if stats.Restored > 0 {
		m.logger.Warn("reconcile restored missing timers", "scanned", stats.Scanned, "restored", stats.Restored)
	}
	return stats, nil
}

func (m *Manager) restoreTimers(ctx context.Context, a *model.Alert) (int, error) {
	r := m.rules.RuleFor(a.RuleVersion, a.Severity)
	var want []timer.Timer

	switch a.Status {
	case model.StatusSnoozed:
		if a.SnoozedUntil != nil {
			want = append(want, timer.Timer{AlertID: a.ID, Kind: timer.KindWake, FireAt: *a.SnoozedUntil})
		}
	case model.StatusOpen:
		if r == nil || a.AcknowledgedAt != nil {
			break
		}
		if r.Escalation != nil && a.EscalatedAt == nil {
			want = append(want, timer.Timer{AlertID: a.ID, Kind: timer.KindEscalation, FireAt: a.CreatedAt.Add(r.Escalation.Deadline)})
		}
		if r.AutoDismissAfter > 0 {
			// 唤醒过的告警从最近一次更新（唤醒）开始计时
			base := a.CreatedAt
			if a.SnoozeCount > 0 {
				base = a.UpdatedAt
			}
			want = append(want, timer.Timer{AlertID: a.ID, Kind: timer.KindAutoDismiss, FireAt: base.Add(r.AutoDismissAfter)})
		}
	}

	restored := 0
	for _, t := range want {
		added, err := m.timers.ScheduleIfAbsent(ctx, t)
		if err != nil {
			return restored, err
		}
		if added {
			restored++
			m.logger.Info("timer restored", "alert_id", a.ID, "kind", t.Kind, "fire_at", t.FireAt.Format(time.RFC3339))
		}
	}
	return restored, nil
}
