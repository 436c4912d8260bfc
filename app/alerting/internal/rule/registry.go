package rule

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-version"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
)

// Registry 保存所有加载过的规则表版本。
// 新告警使用最新版本，已有告警按 rule_version 查回创建时的策略
type Registry struct {
	mu      sync.RWMutex
	tables  map[string]*Table
	latest  *Table
	current *version.Version
}

// NewRegistry 以初始表创建注册表
func NewRegistry(initial *Table) (*Registry, error) {
	r := &Registry{tables: make(map[string]*Table)}
	if err := r.Register(initial); err != nil {
		return nil, err
	}
	return r, nil
}

// Register 注册新版本，版本号必须严格大于当前最新版本
func (r *Registry) Register(t *Table) error {
	v, err := version.NewVersion(t.Version)
	if err != nil {
		return errors.Wrapf(ErrInvalidVersion, "%q", t.Version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && !v.GreaterThan(r.current) {
		return errors.Wrapf(ErrStaleVersion, "%s <= %s", v, r.current)
	}
	r.tables[v.String()] = t
	r.latest = t
	r.current = v
	return nil
}

// Add 补录历史版本，不改变最新版本。已登记的版本保持原样，返回是否新增
func (r *Registry) Add(t *Table) (bool, error) {
	v, err := version.NewVersion(t.Version)
	if err != nil {
		return false, errors.Wrapf(ErrInvalidVersion, "%q", t.Version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[v.String()]; ok {
		return false, nil
	}
	r.tables[v.String()] = t
	return true, nil
}

// Latest 当前最新规则表
func (r *Registry) Latest() *Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Get 按版本号获取，"1.2" 与 "1.2.0" 视为同一版本
func (r *Registry) Get(ver string) (*Table, error) {
	v, err := version.NewVersion(ver)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidVersion, "%q", ver)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[v.String()]
	if !ok {
		return nil, errors.Wrapf(ErrVersionNotFound, "%s", ver)
	}
	return t, nil
}

// RuleFor 返回告警创建时所用版本中对应级别的规则。
// 历史版本由 Restore 从存档补录；存档也缺失时退回最新版本
func (r *Registry) RuleFor(ver string, s model.Severity) *Rule {
	t, err := r.Get(ver)
	if err != nil {
		t = r.Latest()
	}
	return t.ForSeverity(s)
}

// Versions 已注册的版本号
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tables))
	for k := range r.tables {
		out = append(out, k)
	}
	return out
}
