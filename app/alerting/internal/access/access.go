// Package access 解析调用方的访问授权，决定其可见的公司与船舶范围
package access

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/dao"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
)

var (
	// ErrUnknownCaller 调用方没有任何授权
	ErrUnknownCaller = errors.New("unknown caller")
	// ErrInvalidGrant 授权既不是全船队也没有绑定船舶
	ErrInvalidGrant = errors.New("invalid grant")
	// ErrReadOnly 只读授权尝试执行变更
	ErrReadOnly = errors.New("grant is read only")
)

// Grant 调用方授权
type Grant struct {
	CallerID  string  `json:"caller_id" mapstructure:"caller_id"`
	Role      string  `json:"role" mapstructure:"role"`
	CompanyID string  `json:"company_id" mapstructure:"company_id"`
	VesselID  *string `json:"vessel_id" mapstructure:"vessel_id"`
	FleetWide bool    `json:"fleet_wide" mapstructure:"fleet_wide"`
	ReadOnly  bool    `json:"read_only" mapstructure:"read_only"`
}

// Validate 检查授权结构
func (g *Grant) Validate() error {
	switch {
	case g.CallerID == "":
		return errors.Wrap(ErrInvalidGrant, "caller_id is empty")
	case g.CompanyID == "":
		return errors.Wrapf(ErrInvalidGrant, "%s: company_id is empty", g.CallerID)
	case !g.FleetWide && (g.VesselID == nil || *g.VesselID == ""):
		return errors.Wrapf(ErrInvalidGrant, "%s: neither fleet_wide nor vessel_id", g.CallerID)
	}
	return nil
}

// Allows 告警是否在授权范围内。
// 船舶级授权看不到公司级告警（vessel_id 为空）
func (g *Grant) Allows(a *model.Alert) bool {
	if a == nil || a.CompanyID != g.CompanyID {
		return false
	}
	if g.FleetWide {
		return true
	}
	return g.VesselID != nil && a.VesselID != nil && *a.VesselID == *g.VesselID
}

// Scope 下推到存储层的查询范围
func (g *Grant) Scope() dao.Scope {
	s := dao.Scope{CompanyID: g.CompanyID}
	if !g.FleetWide {
		s.VesselID = g.VesselID
	}
	return s
}

// CheckWrite 只读授权拒绝变更
func (g *Grant) CheckWrite() error {
	if g.ReadOnly {
		return errors.Wrapf(ErrReadOnly, "caller %s", g.CallerID)
	}
	return nil
}

// Provider 授权查询
type Provider interface {
	Grant(ctx context.Context, callerID string) (*Grant, error)
}
