// Package metrics 告警引擎业务指标
package metrics

import (
	"fmt"

	"github.com/lk2023060901/fleetalert/pkg/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
)

// 事实评估结果标签
const (
	ResultCreated  = "created"
	ResultResolved = "resolved"
	ResultNoop     = "noop"
	ResultConfig   = "config_error"
	ResultFailed   = "failed"
)

// AlertMetrics 告警引擎指标，nil 接收者上的调用全部忽略，方便测试直接传 nil
type AlertMetrics struct {
	// 评估
	FactsEvaluated *prom.CounterVec // result
	ConfigErrors   *prom.CounterVec // kind: unknown_category/malformed_rule/attribute_type/invalid_fact

	// 生命周期
	AlertsCreated     *prom.CounterVec   // severity, category
	Transitions       *prom.CounterVec   // from, to
	Rejections        *prom.CounterVec   // code
	TransitionLatency *prom.HistogramVec // operation

	// 推送
	DispatchAttempts *prom.CounterVec // channel
	DispatchFailures *prom.CounterVec // channel

	// 定时器
	TimerFires            *prom.CounterVec // kind
	TimerScheduleFailures *prom.CounterVec // kind
	PendingTimers         *prom.GaugeVec

	// 数据库
	DBQueryTotal    *prom.CounterVec   // operation, result
	DBQueryDuration *prom.HistogramVec // operation
}

type spec struct {
	name, help string
	labels     []string
	counter    **prom.CounterVec
	gauge      **prom.GaugeVec
	histogram  **prom.HistogramVec
	buckets    []float64
}

// New 在客户端的注册表上注册全部指标
func New(c *prometheus.Client) (*AlertMetrics, error) {
	m := &AlertMetrics{}
	specs := []spec{
		{name: "facts_evaluated_total", help: "事实评估总数", labels: []string{"result"}, counter: &m.FactsEvaluated},
		{name: "config_errors_total", help: "规则配置错误总数", labels: []string{"kind"}, counter: &m.ConfigErrors},
		{name: "alerts_created_total", help: "创建告警总数", labels: []string{"severity", "category"}, counter: &m.AlertsCreated},
		{name: "alert_transitions_total", help: "告警状态迁移总数", labels: []string{"from", "to"}, counter: &m.Transitions},
		{name: "alert_rejections_total", help: "被拒绝的告警操作", labels: []string{"code"}, counter: &m.Rejections},
		{
			name: "alert_transition_duration_seconds", help: "状态迁移耗时（秒）",
			labels: []string{"operation"}, histogram: &m.TransitionLatency,
			buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		},
		{name: "dispatch_attempts_total", help: "推送尝试总数", labels: []string{"channel"}, counter: &m.DispatchAttempts},
		{name: "dispatch_failures_total", help: "推送最终失败总数", labels: []string{"channel"}, counter: &m.DispatchFailures},
		{name: "timer_fires_total", help: "定时器触发总数", labels: []string{"kind"}, counter: &m.TimerFires},
		{name: "timer_schedule_failures_total", help: "定时器登记失败（重试耗尽）", labels: []string{"kind"}, counter: &m.TimerScheduleFailures},
		{name: "pending_timers", help: "待触发定时器数量", labels: nil, gauge: &m.PendingTimers},
		{name: "db_queries_total", help: "数据库查询总数", labels: []string{"operation", "result"}, counter: &m.DBQueryTotal},
		{
			name: "db_query_duration_seconds", help: "数据库查询延迟（秒）",
			labels: []string{"operation"}, histogram: &m.DBQueryDuration,
			buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	}

	for _, s := range specs {
		var err error
		switch {
		case s.counter != nil:
			*s.counter, err = c.NewCounter(s.name, s.help, s.labels)
		case s.gauge != nil:
			*s.gauge, err = c.NewGauge(s.name, s.help, s.labels)
		case s.histogram != nil:
			*s.histogram, err = c.NewHistogram(s.name, s.help, s.labels, s.buckets)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", s.name, err)
		}
	}
	return m, nil
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}

// RecordFact 记录一次事实评估
func (m *AlertMetrics) RecordFact(res string) {
	if m == nil {
		return
	}
	m.FactsEvaluated.WithLabelValues(res).Inc()
}

// RecordConfigError 记录配置错误
func (m *AlertMetrics) RecordConfigError(kind string) {
	if m == nil {
		return
	}
	m.ConfigErrors.WithLabelValues(kind).Inc()
	m.FactsEvaluated.WithLabelValues(ResultConfig).Inc()
}

// RecordCreated 记录告警创建
func (m *AlertMetrics) RecordCreated(severity, category string) {
	if m == nil {
		return
	}
	m.AlertsCreated.WithLabelValues(severity, category).Inc()
}

// RecordTransition 记录状态迁移
func (m *AlertMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

// RecordRejection 记录拒绝
func (m *AlertMetrics) RecordRejection(code string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(code).Inc()
}

// ObserveTransition 记录操作耗时
func (m *AlertMetrics) ObserveTransition(op string, seconds float64) {
	if m == nil {
		return
	}
	m.TransitionLatency.WithLabelValues(op).Observe(seconds)
}

// RecordDispatch 记录一次推送尝试，failed 表示重试已耗尽
func (m *AlertMetrics) RecordDispatch(channel string, failed bool) {
	if m == nil {
		return
	}
	m.DispatchAttempts.WithLabelValues(channel).Inc()
	if failed {
		m.DispatchFailures.WithLabelValues(channel).Inc()
	}
}

// RecordTimerFire 记录定时器触发
func (m *AlertMetrics) RecordTimerFire(kind string) {
	if m == nil {
		return
	}
	m.TimerFires.WithLabelValues(kind).Inc()
}

// RecordTimerScheduleFailure 记录定时器登记失败
func (m *AlertMetrics) RecordTimerScheduleFailure(kind string) {
	if m == nil {
		return
	}
	m.TimerScheduleFailures.WithLabelValues(kind).Inc()
}

// SetPendingTimers 更新待触发定时器数量
func (m *AlertMetrics) SetPendingTimers(n int64) {
	if m == nil {
		return
	}
	m.PendingTimers.WithLabelValues().Set(float64(n))
}

// RecordDBQuery 记录数据库查询
func (m *AlertMetrics) RecordDBQuery(operation string, success bool, duration float64) {
	if m == nil {
		return
	}
	m.DBQueryTotal.WithLabelValues(operation, result(success)).Inc()
	m.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}
