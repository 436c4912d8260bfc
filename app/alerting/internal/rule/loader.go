package rule

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-version"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/pkg/util/durationx"
	"gopkg.in/yaml.v3"
)

// 规则文件的 YAML 结构
type document struct {
	Version string    `yaml:"version"`
	Rules   []ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	Severity            string         `yaml:"severity"`
	Triggers            []triggerDoc   `yaml:"triggers"`
	Escalation          *escalationDoc `yaml:"escalation"`
	Snooze              snoozeDoc      `yaml:"snooze"`
	AutoDismissAfter    string         `yaml:"auto_dismiss_after"`
	NotifyOnCreate      *notifyDoc     `yaml:"notify_on_create"`
	NotifyOnAutoDismiss *notifyDoc     `yaml:"notify_on_auto_dismiss"`
}

type triggerDoc struct {
	Category    string         `yaml:"category"`
	Description string         `yaml:"description"`
	Conditions  []conditionDoc `yaml:"conditions"`
}

type conditionDoc struct {
	Attribute string `yaml:"attribute"`
	Operator  string `yaml:"operator"`
	Value     any    `yaml:"value"`
}

type escalationDoc struct {
	Deadline   int      `yaml:"deadline"`
	Unit       string   `yaml:"unit"` // minutes | hours
	EscalateTo []string `yaml:"escalate_to"`
	Channels   []string `yaml:"channels"`
}

type snoozeDoc struct {
	Allowed        bool   `yaml:"allowed"`
	MaxDuration    string `yaml:"max_duration"`
	MaxSnoozes     int    `yaml:"max_snoozes"`
	RequiresReason bool   `yaml:"requires_reason"`
}

type notifyDoc struct {
	Roles    []string `yaml:"roles"`
	Channels []string `yaml:"channels"`
}

// LoadFile 读取并解析规则文件
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read rule table %s", path)
	}
	return Parse(data)
}

// Parse 解析 YAML 规则表，所有时长在此统一换算
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(ErrMalformedRule, "decode rule table: %v", err)
	}
	if _, err := version.NewVersion(doc.Version); err != nil {
		return nil, errors.Wrapf(ErrInvalidVersion, "%q", doc.Version)
	}
	if len(doc.Rules) == 0 {
		return nil, errors.Wrap(ErrMalformedRule, "no rules")
	}

	seen := make(map[model.Severity]bool)
	rules := make([]*Rule, 0, len(doc.Rules))
	for i, rd := range doc.Rules {
		r, err := rd.build()
		if err != nil {
			return nil, errors.Wrapf(err, "rules[%d]", i)
		}
		if seen[r.Severity] {
			return nil, errors.Wrapf(ErrMalformedRule, "rules[%d]: duplicate severity %s", i, r.Severity)
		}
		seen[r.Severity] = true
		rules = append(rules, r)
	}
	t := NewTable(doc.Version, rules)
	t.Source = data
	return t, nil
}

func (d ruleDoc) build() (*Rule, error) {
	sev := model.Severity(strings.ToUpper(d.Severity))
	if !sev.Valid() {
		return nil, errors.Wrapf(ErrMalformedRule, "unknown severity %q", d.Severity)
	}
	r := &Rule{Severity: sev}

	for j, td := range d.Triggers {
		t, err := td.build()
		if err != nil {
			return nil, errors.Wrapf(err, "triggers[%d]", j)
		}
		r.Triggers = append(r.Triggers, t)
	}

	if d.Escalation != nil {
		p, err := d.Escalation.build()
		if err != nil {
			return nil, err
		}
		r.Escalation = p
	}

	if d.Snooze.Allowed {
		maxDur, err := durationx.Parse(d.Snooze.MaxDuration)
		if err != nil || maxDur <= 0 {
			return nil, errors.Wrapf(ErrMalformedRule, "snooze.max_duration %q", d.Snooze.MaxDuration)
		}
		if d.Snooze.MaxSnoozes <= 0 {
			return nil, errors.Wrap(ErrMalformedRule, "snooze.max_snoozes must be positive")
		}
		r.Snooze = SnoozePolicy{
			Allowed:        true,
			MaxDuration:    maxDur,
			MaxSnoozes:     d.Snooze.MaxSnoozes,
			RequiresReason: d.Snooze.RequiresReason,
		}
	}

	if d.AutoDismissAfter != "" {
		dur, err := durationx.Parse(d.AutoDismissAfter)
		if err != nil || dur <= 0 {
			return nil, errors.Wrapf(ErrMalformedRule, "auto_dismiss_after %q", d.AutoDismissAfter)
		}
		r.AutoDismissAfter = dur
	}

	var err error
	if r.NotifyOnCreate, err = d.NotifyOnCreate.build("notify_on_create"); err != nil {
		return nil, err
	}
	if r.NotifyOnAutoDismiss, err = d.NotifyOnAutoDismiss.build("notify_on_auto_dismiss"); err != nil {
		return nil, err
	}
	return r, nil
}

func (d triggerDoc) build() (Trigger, error) {
	c := model.Category(d.Category)
	if !c.Valid() {
		return Trigger{}, errors.Wrapf(ErrMalformedRule, "unknown category %q", d.Category)
	}
	t := Trigger{Category: c, Description: d.Description}
	for k, cd := range d.Conditions {
		cond := Condition{Attribute: cd.Attribute, Operator: Operator(cd.Operator), Value: cd.Value}
		if err := cond.validate(); err != nil {
			return Trigger{}, errors.Wrapf(err, "conditions[%d]", k)
		}
		t.Conditions = append(t.Conditions, cond)
	}
	return t, nil
}

func (c Condition) validate() error {
	if c.Attribute == "" {
		return errors.Wrap(ErrMalformedRule, "attribute is required")
	}
	if !c.Operator.IsValid() {
		return errors.Wrapf(ErrMalformedRule, "invalid operator %q", c.Operator)
	}
	if c.Operator == OpIn {
		if _, ok := c.Value.([]any); !ok {
			return errors.Wrapf(ErrMalformedRule, "operator in requires a list value for %q", c.Attribute)
		}
	}
	if c.Operator.numeric() {
		if _, ok := toFloat(c.Value); !ok {
			return errors.Wrapf(ErrMalformedRule, "operator %s requires a numeric value for %q", c.Operator, c.Attribute)
		}
	}
	return nil
}

func (d *escalationDoc) build() (*EscalationPolicy, error) {
	if d.Deadline <= 0 {
		return nil, errors.Wrap(ErrMalformedRule, "escalation.deadline must be positive")
	}
	var unit time.Duration
	switch d.Unit {
	case "minutes":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	default:
		return nil, errors.Wrapf(ErrMalformedRule, "escalation.unit %q must be minutes or hours", d.Unit)
	}
	if len(d.EscalateTo) == 0 {
		return nil, errors.Wrap(ErrMalformedRule, "escalation.escalate_to is empty")
	}
	channels, err := parseChannels(d.Channels)
	if err != nil {
		return nil, errors.Wrap(err, "escalation.channels")
	}
	return &EscalationPolicy{
		Deadline:        time.Duration(d.Deadline) * unit,
		EscalateToRoles: d.EscalateTo,
		NotifyChannels:  channels,
	}, nil
}

func (d *notifyDoc) build(field string) (*NotifyTarget, error) {
	if d == nil {
		return nil, nil
	}
	if len(d.Roles) == 0 {
		return nil, errors.Wrapf(ErrMalformedRule, "%s.roles is empty", field)
	}
	channels, err := parseChannels(d.Channels)
	if err != nil {
		return nil, errors.Wrap(err, field)
	}
	return &NotifyTarget{Roles: d.Roles, Channels: channels}, nil
}

func parseChannels(in []string) ([]model.Channel, error) {
	if len(in) == 0 {
		return nil, errors.Wrap(ErrMalformedRule, "no channels")
	}
	out := make([]model.Channel, 0, len(in))
	for _, s := range in {
		c := model.Channel(s)
		if !c.Valid() {
			return nil, errors.Wrapf(ErrMalformedRule, "unknown channel %q", s)
		}
		out = append(out, c)
	}
	return out, nil
}
