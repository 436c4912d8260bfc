package model

// Severity 告警级别，创建后不可变
type Severity string

const (
	SeverityRed    Severity = "RED"
	SeverityOrange Severity = "ORANGE"
	SeverityYellow Severity = "YELLOW"
	SeverityGreen  Severity = "GREEN"
)

// Severities 按优先级从高到低
var Severities = []Severity{SeverityRed, SeverityOrange, SeverityYellow, SeverityGreen}

// Rank 数值越小优先级越高，未知级别排在最后
func (s Severity) Rank() int {
	for i, x := range Severities {
		if x == s {
			return i
		}
	}
	return len(Severities)
}

func (s Severity) Valid() bool {
	return s.Rank() < len(Severities)
}

// Status 告警状态
type Status string

const (
	StatusOpen          Status = "OPEN"
	StatusAcknowledged  Status = "ACKNOWLEDGED"
	StatusSnoozed       Status = "SNOOZED"
	StatusResolved      Status = "RESOLVED"
	StatusEscalated     Status = "ESCALATED"
	StatusAutoDismissed Status = "AUTO_DISMISSED"
)

// TerminalStatuses 终态，进入后不再变化
var TerminalStatuses = []Status{StatusResolved, StatusAutoDismissed}

// ActiveStatuses 非终态
var ActiveStatuses = []Status{StatusOpen, StatusAcknowledged, StatusSnoozed, StatusEscalated}

func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusAutoDismissed
}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusAcknowledged, StatusSnoozed, StatusResolved, StatusEscalated, StatusAutoDismissed:
		return true
	}
	return false
}

// Category 告警类别
type Category string

const (
	CategoryIncident           Category = "incident"
	CategoryMedicalReport      Category = "medical_report"
	CategoryDefect             Category = "defect"
	CategorySafeManning        Category = "safe_manning"
	CategoryCertificate        Category = "certificate"
	CategoryNonCompliance      Category = "non_compliance"
	CategoryHoursOfRest        Category = "hours_of_rest"
	CategoryCAPA               Category = "capa"
	CategoryCorrectiveAction   Category = "corrective_action"
	CategoryTraining           Category = "training"
	CategoryDrillParticipation Category = "drill_participation"
	CategoryMeetingMinutes     Category = "meeting_minutes"
	CategoryAudit              Category = "audit"
	CategorySurvey             Category = "survey"
	CategoryDrill              Category = "drill"
	CategorySubmission         Category = "submission"
	CategoryReminder           Category = "reminder"
)

// Categories 全部类别
var Categories = []Category{
	CategoryIncident, CategoryMedicalReport, CategoryDefect, CategorySafeManning,
	CategoryCertificate, CategoryNonCompliance, CategoryHoursOfRest, CategoryCAPA,
	CategoryCorrectiveAction, CategoryTraining, CategoryDrillParticipation,
	CategoryMeetingMinutes, CategoryAudit, CategorySurvey, CategoryDrill,
	CategorySubmission, CategoryReminder,
}

func (c Category) Valid() bool {
	for _, x := range Categories {
		if x == c {
			return true
		}
	}
	return false
}

// Channel 通知渠道
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

func (c Channel) Valid() bool {
	return c == ChannelInApp || c == ChannelEmail || c == ChannelSMS
}
