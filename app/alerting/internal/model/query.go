package model

// Filter 列表过滤条件，空切片表示不限
type Filter struct {
	Severities []Severity
	Categories []Category
	Statuses   []Status
	VesselID   *string
	// 只看已逾期
	Overdue bool
	Limit   int
	Offset  int
}

// Counts 仪表盘聚合计数，只统计非终态告警
type Counts struct {
	Total      int              `json:"total"`
	Overdue    int              `json:"overdue"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByCategory map[Category]int `json:"by_category"`
}

// NewCounts 创建空计数
func NewCounts() *Counts {
	return &Counts{
		BySeverity: make(map[Severity]int),
		ByCategory: make(map[Category]int),
	}
}

// Add 累加另一个计数
func (c *Counts) Add(o *Counts) {
	c.Total += o.Total
	c.Overdue += o.Overdue
	for k, v := range o.BySeverity {
		c.BySeverity[k] += v
	}
	for k, v := range o.ByCategory {
		c.ByCategory[k] += v
	}
}

// CountRow 存储层按 (vessel, severity, category) 分组的计数行
type CountRow struct {
	VesselID *string
	Severity Severity
	Category Category
	Count    int
	Overdue  int
}
