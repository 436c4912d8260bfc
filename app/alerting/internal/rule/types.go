package rule

import (
	"slices"
	"time"

	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
)

// Condition 对事实属性的单个断言
type Condition struct {
	Attribute string
	Operator  Operator
	Value     any
}

// Trigger 类别加断言，多个条件之间为 AND，无条件时恒成立
type Trigger struct {
	Category    model.Category
	Description string
	Conditions  []Condition
}

// EscalationPolicy 升级策略，时长在加载时已统一为 time.Duration
type EscalationPolicy struct {
	Deadline        time.Duration
	EscalateToRoles []string
	NotifyChannels  []model.Channel
}

// SnoozePolicy 暂停策略
type SnoozePolicy struct {
	Allowed        bool
	MaxDuration    time.Duration
	MaxSnoozes     int
	RequiresReason bool
}

// NotifyTarget 创建或自动关闭时的推送目标
type NotifyTarget struct {
	Roles    []string
	Channels []model.Channel
}

// Rule 单个级别的规则
type Rule struct {
	Severity   model.Severity
	Triggers   []Trigger
	Escalation *EscalationPolicy
	Snooze     SnoozePolicy
	// 0 表示不自动关闭
	AutoDismissAfter    time.Duration
	NotifyOnCreate      *NotifyTarget
	NotifyOnAutoDismiss *NotifyTarget
}

// TriggersFor 返回该规则对某类别的触发器，保持声明顺序
func (r *Rule) TriggersFor(c model.Category) []Trigger {
	var out []Trigger
	for _, t := range r.Triggers {
		if t.Category == c {
			out = append(out, t)
		}
	}
	return out
}

// Table 带版本的规则表，构造后只读
type Table struct {
	Version string
	// 按级别从高到低排序，同级别保持声明顺序
	Rules []*Rule
	// 解析前的原文，用于存档；NewTable 构造的表为空
	Source []byte
}

// NewTable 构造规则表并按级别稳定排序
func NewTable(version string, rules []*Rule) *Table {
	sorted := slices.Clone(rules)
	slices.SortStableFunc(sorted, func(a, b *Rule) int {
		return a.Severity.Rank() - b.Severity.Rank()
	})
	return &Table{Version: version, Rules: sorted}
}

// ForSeverity 返回级别对应的第一条规则
func (t *Table) ForSeverity(s model.Severity) *Rule {
	for _, r := range t.Rules {
		if r.Severity == s {
			return r
		}
	}
	return nil
}

// HasCategory 是否有任一规则覆盖该类别
func (t *Table) HasCategory(c model.Category) bool {
	for _, r := range t.Rules {
		if len(r.TriggersFor(c)) > 0 {
			return true
		}
	}
	return false
}
