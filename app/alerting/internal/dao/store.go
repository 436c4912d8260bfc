// Package dao 告警持久化
package dao

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
)

var (
	// ErrNotFound 告警不存在
	ErrNotFound = errors.New("alert not found")
	// ErrDuplicate 相同去重键已存在非终态告警
	ErrDuplicate = errors.New("duplicate active alert")
	// ErrVersionConflict 乐观锁冲突，调用方需重新读取
	ErrVersionConflict = errors.New("alert version conflict")
)

// Scope 下推到存储查询的可见范围
type Scope struct {
	// 空串表示不限公司，只供内部任务使用
	CompanyID string
	// 非空时只包含该船的告警，公司级告警（vessel_id 为空）随之排除
	VesselID *string
}

// AlertStore 告警存储
type AlertStore interface {
	// Create 写入新告警，a.Version 置为 1
	Create(ctx context.Context, a *model.Alert) error
	Get(ctx context.Context, id string) (*model.Alert, error)
	// Update 以 a.Version 作为期望版本写入，成功后 a.Version 加一
	Update(ctx context.Context, a *model.Alert) error
	// FindActive 返回 (company, category, entity) 下所有非终态告警
	FindActive(ctx context.Context, companyID string, category model.Category, entityID string) ([]*model.Alert, error)
	// ListNonTerminal 按 id 键集分页遍历全部非终态告警
	ListNonTerminal(ctx context.Context, afterID string, limit int) ([]*model.Alert, error)
	List(ctx context.Context, scope Scope, f model.Filter, now time.Time) ([]*model.Alert, error)
	// CountRows 按 (vessel, severity, category) 分组统计非终态告警
	CountRows(ctx context.Context, scope Scope, now time.Time) ([]model.CountRow, error)
	Ping(ctx context.Context) error
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	}
	return n
}
