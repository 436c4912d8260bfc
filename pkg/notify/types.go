package notify

import "time"

// Level 通知级别
type Level string

const (
	LevelCritical Level = "critical"
	LevelWarning  Level = "warning"
	LevelInfo     Level = "info"
)

// Recipient 按角色寻址的收件人，具体用户由投递网关解析
type Recipient struct {
	Role      string `json:"role"`
	CompanyID string `json:"company_id"`
	VesselID  string `json:"vessel_id,omitempty"`
}

// Notification 平台无关的通知
type Notification struct {
	// ID 幂等键，网关据此去重
	ID         string            `json:"id"`
	Level      Level             `json:"level"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Recipients []Recipient       `json:"recipients"`
	Labels     map[string]string `json:"labels,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
