// Package timer 持久化的告警定时器：升级、唤醒、自动关闭
package timer

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Kind 定时器类型
type Kind string

const (
	KindEscalation  Kind = "escalation"
	KindWake        Kind = "wake"
	KindAutoDismiss Kind = "auto_dismiss"
)

// Kinds 全部类型
var Kinds = []Kind{KindEscalation, KindWake, KindAutoDismiss}

// Valid 是否为已知类型
func (k Kind) Valid() bool {
	switch k {
	case KindEscalation, KindWake, KindAutoDismiss:
		return true
	}
	return false
}

// ErrMalformedTimer 存储中的成员无法解析
var ErrMalformedTimer = errors.New("malformed timer")

// Timer 以 (AlertID, Kind) 为键，同键重复登记会覆盖
type Timer struct {
	AlertID string
	Kind    Kind
	FireAt  time.Time
}

const sep = "|"

func (t Timer) member() string {
	return t.AlertID + sep + string(t.Kind)
}

func score(at time.Time) float64 {
	return float64(at.UnixMilli())
}

func parseMember(member string, s float64) (Timer, error) {
	id, kind, ok := strings.Cut(member, sep)
	if !ok || id == "" || !Kind(kind).Valid() {
		return Timer{}, errors.Wrapf(ErrMalformedTimer, "%q", member)
	}
	return Timer{AlertID: id, Kind: Kind(kind), FireAt: time.UnixMilli(int64(s)).UTC()}, nil
}

// Store 定时器存储
type Store interface {
	// Schedule 登记或覆盖同键定时器
	Schedule(ctx context.Context, t Timer) error
	// ScheduleIfAbsent 同键不存在时才登记，返回是否写入
	ScheduleIfAbsent(ctx context.Context, t Timer) (bool, error)
	// Cancel 取消告警的指定类型定时器，kinds 为空时取消全部
	Cancel(ctx context.Context, alertID string, kinds ...Kind) error
	// Due 读取 FireAt <= now 的定时器，按触发时间升序
	Due(ctx context.Context, now time.Time, limit int) ([]Timer, error)
	// Claim 原子地摘除已到期的定时器，多个副本中只有一个会成功
	Claim(ctx context.Context, t Timer, now time.Time) (bool, error)
	Get(ctx context.Context, alertID string, kind Kind) (Timer, bool, error)
	Len(ctx context.Context) (int64, error)
}

func kindsOrAll(kinds []Kind) []Kind {
	if len(kinds) == 0 {
		return Kinds
	}
	return kinds
}
