package model

import (
	"time"

	"github.com/cockroachdb/errors"
)

// ErrInvalidFact 事实缺少必填字段
var ErrInvalidFact = errors.New("invalid fact")

// Fact 领域协作方上报的规范化事实
type Fact struct {
	Category     Category       `json:"category" binding:"required"`
	EntityID     string         `json:"entity_id" binding:"required"`
	EntityType   string         `json:"entity_type"`
	SourceModule string         `json:"source_module"`
	CompanyID    string         `json:"company_id" binding:"required"`
	VesselID     *string        `json:"vessel_id"`
	Attributes   map[string]any `json:"attributes"`
	// 条件已解除，例如证书已续期、CAPA 已关闭
	Cleared    bool       `json:"cleared"`
	DueAt      *time.Time `json:"due_at"`
	ObservedAt time.Time  `json:"observed_at"`
}

// Validate 只检查结构，类别是否受支持由规则表判断
func (f *Fact) Validate() error {
	switch {
	case f.Category == "":
		return errors.Wrap(ErrInvalidFact, "category is required")
	case f.EntityID == "":
		return errors.Wrap(ErrInvalidFact, "entity_id is required")
	case f.CompanyID == "":
		return errors.Wrap(ErrInvalidFact, "company_id is required")
	case f.VesselID != nil && *f.VesselID == "":
		return errors.Wrap(ErrInvalidFact, "vessel_id must be null or non-empty")
	}
	return nil
}
