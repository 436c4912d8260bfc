package lifecycle

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// RejectionCode 拒绝原因码，对外稳定
type RejectionCode string

const (
	CodeMaxSnoozesReached      RejectionCode = "max_snoozes_reached"
	CodeSnoozeNotAllowed       RejectionCode = "snooze_not_allowed"
	CodeSnoozeDurationExceeded RejectionCode = "snooze_duration_exceeded"
	CodeSnoozeReasonRequired   RejectionCode = "snooze_reason_required"
	CodeInvalidTransition      RejectionCode = "invalid_transition"
	CodeTerminalState          RejectionCode = "terminal_state"
	CodeInvalidDuration        RejectionCode = "invalid_duration"
)

// RejectionError 违反状态机或策略约束，告警保持不变
type RejectionError struct {
	Code    RejectionCode
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func reject(code RejectionCode, format string, args ...any) error {
	return &RejectionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsRejection 提取拒绝错误
func AsRejection(err error) (*RejectionError, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// ErrTimerSchedule 定时器登记重试耗尽，状态变更未提交
var ErrTimerSchedule = errors.New("timer scheduling failed")
