package model

import (
	"slices"
	"time"
)

// Alert 告警实体，只能通过生命周期状态机变更，从不删除
type Alert struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Status   Status   `json:"status"`

	CompanyID string  `json:"company_id"`
	VesselID  *string `json:"vessel_id"` // nil 表示公司级告警，只对全船队权限可见

	SourceModule      string `json:"source_module"`
	RelatedEntityType string `json:"related_entity_type"`
	RelatedEntityID   string `json:"related_entity_id"`

	Title       string `json:"title"`
	Message     string `json:"message"`
	RuleVersion string `json:"rule_version"`

	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DueAt           *time.Time `json:"due_at,omitempty"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  string     `json:"acknowledged_by,omitempty"`
	SnoozedUntil    *time.Time `json:"snoozed_until,omitempty"`
	SnoozeReason    string     `json:"snooze_reason,omitempty"`
	SnoozeCount     int        `json:"snooze_count"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	EscalatedAt     *time.Time `json:"escalated_at,omitempty"`
	AutoDismissedAt *time.Time `json:"auto_dismissed_at,omitempty"`

	EscalationTargetRoles []string `json:"escalation_target_roles"`

	// 乐观锁版本号，每次写入加一
	Version int64 `json:"version"`
}

// IsOverdue due_at 已过且未进入终态
func (a *Alert) IsOverdue(now time.Time) bool {
	return a.DueAt != nil && a.DueAt.Before(now) && !a.Status.IsTerminal()
}

// VesselKey 按船舶分桶时使用的键，公司级告警为空串
func (a *Alert) VesselKey() string {
	if a.VesselID == nil {
		return ""
	}
	return *a.VesselID
}

// Key 去重键
func (a *Alert) Key() DedupeKey {
	return DedupeKey{CompanyID: a.CompanyID, Category: a.Category, EntityID: a.RelatedEntityID, Severity: a.Severity}
}

// Clone 深拷贝，存储层返回副本避免调用方共享可变状态
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	cp := *a
	cp.VesselID = cloneString(a.VesselID)
	cp.DueAt = cloneTime(a.DueAt)
	cp.AcknowledgedAt = cloneTime(a.AcknowledgedAt)
	cp.SnoozedUntil = cloneTime(a.SnoozedUntil)
	cp.ResolvedAt = cloneTime(a.ResolvedAt)
	cp.EscalatedAt = cloneTime(a.EscalatedAt)
	cp.AutoDismissedAt = cloneTime(a.AutoDismissedAt)
	cp.EscalationTargetRoles = slices.Clone(a.EscalationTargetRoles)
	return &cp
}

// View 对外展示，附带派生字段
type View struct {
	*Alert
	IsOverdue bool `json:"is_overdue"`
}

// NewView 按当前时间计算派生字段
func NewView(a *Alert, now time.Time) View {
	return View{Alert: a, IsOverdue: a.IsOverdue(now)}
}

// DedupeKey 同一公司同一实体同一级别最多存在一条非终态告警。
// 实体 id 只在公司内唯一，不同租户的同名实体互不影响
type DedupeKey struct {
	CompanyID string
	Category  Category
	EntityID  string
	Severity  Severity
}

func (k DedupeKey) String() string {
	return k.CompanyID + "|" + string(k.Category) + "|" + k.EntityID + "|" + string(k.Severity)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Ptr 取地址的便捷函数
func Ptr[T any](v T) *T {
	return &v
}
