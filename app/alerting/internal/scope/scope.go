// Package scope 按调用方授权裁剪告警列表与仪表盘计数
package scope

import (
	"context"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/access"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/dao"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/pkg/logger"
)

// CompanyBucket 公司级告警（vessel_id 为空）在计数结果中的键
const CompanyBucket = ""

// Counts 仪表盘计数。Fleet 由 ByVessel 逐项累加得到
type Counts struct {
	Fleet    *model.Counts            `json:"fleet"`
	ByVessel map[string]*model.Counts `json:"by_vessel"`
}

// Resolver 范围解析
type Resolver struct {
	store  dao.AlertStore
	clock  clockwork.Clock
	logger logger.Logger
}

// NewResolver 创建解析器
func NewResolver(store dao.AlertStore, clock clockwork.Clock, l logger.Logger) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{store: store, clock: clock, logger: l.Named("scope")}
}

// VisibleAlerts 范围条件下推到存储层，返回前再逐条校验授权
func (r *Resolver) VisibleAlerts(ctx context.Context, g *access.Grant, f model.Filter) ([]model.View, error) {
	now := r.clock.Now()
	if f.VesselID != nil && !g.FleetWide && (g.VesselID == nil || *f.VesselID != *g.VesselID) {
		return []model.View{}, nil
	}

	alerts, err := r.store.List(ctx, g.Scope(), f, now)
	if err != nil {
		return nil, err
	}
	out := make([]model.View, 0, len(alerts))
	for _, a := range alerts {
		if !g.Allows(a) {
			r.logger.ErrorContext(ctx, "store returned alert outside grant",
				"alert_id", a.ID, "company_id", a.CompanyID, "vessel_id", a.VesselKey())
			continue
		}
		out = append(out, model.NewView(a, now))
	}
	return out, nil
}

// VisibleAlert 读取单条告警，范围外的告警与不存在同样处理
func (r *Resolver) VisibleAlert(ctx context.Context, g *access.Grant, id string) (model.View, error) {
	a, err := r.store.Get(ctx, id)
	if err != nil {
		return model.View{}, err
	}
	if !g.Allows(a) {
		return model.View{}, dao.ErrNotFound
	}
	return model.NewView(a, r.clock.Now()), nil
}

// AggregateCounts 非终态告警按船舶分桶计数，全船队计数为各桶之和
func (r *Resolver) AggregateCounts(ctx context.Context, g *access.Grant) (*Counts, error) {
	rows, err := r.store.CountRows(ctx, g.Scope(), r.clock.Now())
	if err != nil {
		return nil, err
	}

	out := &Counts{Fleet: model.NewCounts(), ByVessel: make(map[string]*model.Counts)}
	for _, row := range rows {
		probe := &model.Alert{CompanyID: g.CompanyID, VesselID: row.VesselID}
		if !g.Allows(probe) {
			continue
		}
		key := CompanyBucket
		if row.VesselID != nil {
			key = *row.VesselID
		}
		c, ok := out.ByVessel[key]
		if !ok {
			c = model.NewCounts()
			out.ByVessel[key] = c
		}
		c.Total += row.Count
		c.Overdue += row.Overdue
		c.BySeverity[row.Severity] += row.Count
		c.ByCategory[row.Category] += row.Count
	}

	for _, key := range Vessels(out) {
		out.Fleet.Add(out.ByVessel[key])
	}
	return out, nil
}

// Vessels 计数结果中的船舶键，按字典序，公司级在最前
func Vessels(c *Counts) []string {
	keys := make([]string, 0, len(c.ByVessel))
	for k := range c.ByVessel {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Now 解析器的当前时间，派生字段按此计算
func (r *Resolver) Now() time.Time {
	return r.clock.Now()
}
