package dao

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
)

// MemoryStore 进程内告警存储，语义与 AlertDAO 一致，用于测试和单机演示
type MemoryStore struct {
	mu         sync.RWMutex
	alerts     map[string]*model.Alert
	ruleTables map[string]ruleTableRow
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alerts: make(map[string]*model.Alert)}
}

func (s *MemoryStore) Create(_ context.Context, a *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[a.ID]; ok {
		return errors.Wrapf(ErrDuplicate, "id %s", a.ID)
	}
	if !a.Status.IsTerminal() {
		for _, cur := range s.alerts {
			if !cur.Status.IsTerminal() && cur.Key() == a.Key() {
				return errors.Wrapf(ErrDuplicate, "%s", a.Key())
			}
		}
	}
	a.Version = 1
	s.alerts[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", id)
	}
	return a.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, a *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.alerts[a.ID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "%s", a.ID)
	}
	if cur.Version != a.Version {
		return errors.Wrapf(ErrVersionConflict, "%s@%d", a.ID, a.Version)
	}
	a.Version++
	s.alerts[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) FindActive(_ context.Context, companyID string, category model.Category, entityID string) ([]*model.Alert, error) {
	return s.collect(func(a *model.Alert) bool {
		return !a.Status.IsTerminal() && a.CompanyID == companyID && a.Category == category && a.RelatedEntityID == entityID
	}, byCreatedAsc), nil
}

func (s *MemoryStore) ListNonTerminal(_ context.Context, afterID string, limit int) ([]*model.Alert, error) {
	out := s.collect(func(a *model.Alert) bool {
		return !a.Status.IsTerminal() && a.ID > afterID
	}, func(x, y *model.Alert) int { return compareString(x.ID, y.ID) })
	return head(out, 0, clampLimit(limit)), nil
}

func (s *MemoryStore) List(_ context.Context, scope Scope, f model.Filter, now time.Time) ([]*model.Alert, error) {
	out := s.collect(func(a *model.Alert) bool {
		return inScope(scope, a) && matchFilter(f, a, now)
	}, func(x, y *model.Alert) int {
		if c := y.CreatedAt.Compare(x.CreatedAt); c != 0 {
			return c
		}
		return compareString(y.ID, x.ID)
	})
	return head(out, f.Offset, clampLimit(f.Limit)), nil
}

func (s *MemoryStore) CountRows(_ context.Context, scope Scope, now time.Time) ([]model.CountRow, error) {
	type key struct {
		vessel   string
		hasV     bool
		severity model.Severity
		category model.Category
	}
	groups := make(map[key]*model.CountRow)

	s.mu.RLock()
	for _, a := range s.alerts {
		if a.Status.IsTerminal() || !inScope(scope, a) {
			continue
		}
		k := key{vessel: a.VesselKey(), hasV: a.VesselID != nil, severity: a.Severity, category: a.Category}
		row, ok := groups[k]
		if !ok {
			row = &model.CountRow{Severity: a.Severity, Category: a.Category}
			if a.VesselID != nil {
				row.VesselID = model.Ptr(*a.VesselID)
			}
			groups[k] = row
		}
		row.Count++
		if a.IsOverdue(now) {
			row.Overdue++
		}
	}
	s.mu.RUnlock()

	out := make([]model.CountRow, 0, len(groups))
	for _, r := range groups {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if va, vb := vesselOf(a), vesselOf(b); va != vb {
			return va < vb
		}
		if a.Severity != b.Severity {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		return a.Category < b.Category
	})
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len 告警总数，含终态
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

func (s *MemoryStore) collect(keep func(*model.Alert) bool, cmp func(x, y *model.Alert) int) []*model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Alert
	for _, a := range s.alerts {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	slices.SortFunc(out, cmp)
	return out
}

func byCreatedAsc(x, y *model.Alert) int {
	if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
		return c
	}
	return compareString(x.ID, y.ID)
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func head(in []*model.Alert, offset, limit int) []*model.Alert {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if len(in) > limit {
		in = in[:limit]
	}
	return in
}

func vesselOf(r model.CountRow) string {
	if r.VesselID == nil {
		return ""
	}
	return *r.VesselID
}

func inScope(scope Scope, a *model.Alert) bool {
	if scope.CompanyID != "" && a.CompanyID != scope.CompanyID {
		return false
	}
	if scope.VesselID != nil && (a.VesselID == nil || *a.VesselID != *scope.VesselID) {
		return false
	}
	return true
}

func matchFilter(f model.Filter, a *model.Alert, now time.Time) bool {
	if len(f.Severities) > 0 && !slices.Contains(f.Severities, a.Severity) {
		return false
	}
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, a.Category) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
		return false
	}
	if f.VesselID != nil && (a.VesselID == nil || *a.VesselID != *f.VesselID) {
		return false
	}
	if f.Overdue && !a.IsOverdue(now) {
		return false
	}
	return true
}
