package model

import "time"

// EventType 告警历史事件类型
type EventType string

const (
	EventCreated       EventType = "created"
	EventAcknowledged  EventType = "acknowledged"
	EventSnoozed       EventType = "snoozed"
	EventWoken         EventType = "woken"
	EventResolved      EventType = "resolved"
	EventEscalated     EventType = "escalated"
	EventAutoDismissed EventType = "auto_dismissed"
)

// Event 状态变更事件，供审计与协作方订阅
type Event struct {
	Type      EventType `json:"type"`
	AlertID   string    `json:"alert_id"`
	From      Status    `json:"from,omitempty"`
	To        Status    `json:"to"`
	Actor     string    `json:"actor,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Alert     *Alert    `json:"alert"`
	Timestamp time.Time `json:"timestamp"`
}
