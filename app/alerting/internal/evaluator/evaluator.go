// Package evaluator 把事实与规则表匹配成创建/解除意图，不产生任何副作用
package evaluator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/rule"
)

// ErrUnknownCategory 规则表不覆盖事实的类别
var ErrUnknownCategory = errors.New("unknown category")

// IsConfigError 配置类错误：记录、计数、丢弃该事实，批次继续
func IsConfigError(err error) bool {
	return errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, rule.ErrMalformedRule) ||
		errors.Is(err, rule.ErrAttributeType) ||
		errors.Is(err, model.ErrInvalidFact)
}

// ResolveReason 解除原因
type ResolveReason string

const (
	ReasonCleared         ResolveReason = "condition_cleared"
	ReasonSeverityChanged ResolveReason = "severity_changed"
)

// CreateIntent 创建告警意图
type CreateIntent struct {
	Fact        *model.Fact
	Severity    model.Severity
	RuleVersion string
	Trigger     rule.Trigger
}

// Key 去重键
func (c *CreateIntent) Key() model.DedupeKey {
	return model.DedupeKey{CompanyID: c.Fact.CompanyID, Category: c.Fact.Category, EntityID: c.Fact.EntityID, Severity: c.Severity}
}

// Title 告警标题
func (c *CreateIntent) Title() string {
	desc := c.Trigger.Description
	if desc == "" {
		desc = strings.ReplaceAll(string(c.Fact.Category), "_", " ")
	}
	return fmt.Sprintf("%s %s: %s", c.Fact.Category, c.Fact.EntityID, desc)
}

// Message 告警正文，属性按键排序保证输出稳定
func (c *CreateIntent) Message() string {
	if len(c.Fact.Attributes) == 0 {
		return c.Title()
	}
	keys := make([]string, 0, len(c.Fact.Attributes))
	for k := range c.Fact.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, c.Fact.Attributes[k]))
	}
	return c.Title() + " (" + strings.Join(parts, ", ") + ")"
}

// ResolveIntent 解除告警意图
type ResolveIntent struct {
	AlertID string
	Reason  ResolveReason
}

// Decision 单个事实的评估结果
type Decision struct {
	Create  *CreateIntent
	Resolve []ResolveIntent
}

// IsNoop 无需任何动作
func (d Decision) IsNoop() bool {
	return d.Create == nil && len(d.Resolve) == 0
}

// Match 找到事实命中的最高级别规则及触发器，未命中返回 nil
func Match(f *model.Fact, t *rule.Table) (*rule.Rule, *rule.Trigger, error) {
	if !f.Category.Valid() || !t.HasCategory(f.Category) {
		return nil, nil, errors.Wrapf(ErrUnknownCategory, "%q", f.Category)
	}
	for _, r := range t.Rules {
		for _, trig := range r.TriggersFor(f.Category) {
			ok, err := matches(trig, f.Attributes)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "%s/%s", r.Severity, f.Category)
			}
			if ok {
				return r, &trig, nil
			}
		}
	}
	return nil, nil, nil
}

func matches(t rule.Trigger, attrs map[string]any) (bool, error) {
	for _, c := range t.Conditions {
		ok, err := c.Match(attrs)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Evaluate 依据规则表与现存告警计算意图。
// active 可以包含其它实体或终态告警，这里只考虑同一 (company, category, entity) 的非终态告警
func Evaluate(f *model.Fact, t *rule.Table, active []*model.Alert) (Decision, error) {
	if err := f.Validate(); err != nil {
		return Decision{}, err
	}
	r, trig, err := Match(f, t)
	if err != nil {
		return Decision{}, err
	}

	var current []*model.Alert
	for _, a := range active {
		if a.CompanyID == f.CompanyID && a.Category == f.Category && a.RelatedEntityID == f.EntityID && !a.Status.IsTerminal() {
			current = append(current, a)
		}
	}

	var d Decision
	if f.Cleared {
		for _, a := range current {
			d.Resolve = append(d.Resolve, ResolveIntent{AlertID: a.ID, Reason: ReasonCleared})
		}
		return d, nil
	}
	// 未命中任何规则不代表条件解除，可能只是缺少属性的补充事实
	if r == nil {
		return d, nil
	}

	exists := false
	for _, a := range current {
		if a.Severity == r.Severity {
			exists = true
			continue
		}
		// 级别变化：关闭旧告警，另开新告警保留历史
		d.Resolve = append(d.Resolve, ResolveIntent{AlertID: a.ID, Reason: ReasonSeverityChanged})
	}
	if !exists {
		d.Create = &CreateIntent{
			Fact:        f,
			Severity:    r.Severity,
			RuleVersion: t.Version,
			Trigger:     *trig,
		}
	}
	return d, nil
}

// Lookup 查询某个事实对应的现存告警
type Lookup func(f *model.Fact) ([]*model.Alert, error)

// Result 批量评估中单个事实的结果
type Result struct {
	Fact     *model.Fact
	Decision Decision
	Err      error
}

// EvaluateBatch 逐个独立评估，单个事实出错不影响其它事实。
// apply 非 nil 时在查询下一个事实之前执行，同一批次内的后续事实能看到它的结果
func EvaluateBatch(facts []*model.Fact, t *rule.Table, lookup Lookup, apply func(Result)) []Result {
	out := make([]Result, 0, len(facts))
	for _, f := range facts {
		res := Result{Fact: f}
		active, err := lookup(f)
		if err != nil {
			res.Err = errors.Wrap(err, "lookup active alerts")
		} else {
			res.Decision, res.Err = Evaluate(f, t, active)
		}
		if apply != nil {
			apply(res)
		}
		out = append(out, res)
	}
	return out
}
