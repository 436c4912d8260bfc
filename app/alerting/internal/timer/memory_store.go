package timer

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore 进程内定时器存储
type MemoryStore struct {
	mu     sync.Mutex
	timers map[string]Timer
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{timers: make(map[string]Timer)}
}

func (s *MemoryStore) Schedule(_ context.Context, t Timer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.FireAt = t.FireAt.Truncate(time.Millisecond)
	s.timers[t.member()] = t
	return nil
}

func (s *MemoryStore) ScheduleIfAbsent(ctx context.Context, t Timer) (bool, error) {
	s.mu.Lock()
	_, ok := s.timers[t.member()]
	s.mu.Unlock()
	if ok {
		return false, nil
	}
	return true, s.Schedule(ctx, t)
}

func (s *MemoryStore) Cancel(_ context.Context, alertID string, kinds ...Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range kindsOrAll(kinds) {
		delete(s.timers, Timer{AlertID: alertID, Kind: k}.member())
	}
	return nil
}

func (s *MemoryStore) Due(_ context.Context, now time.Time, limit int) ([]Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Timer
	for _, t := range s.timers {
		if !t.FireAt.After(now) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b Timer) int {
		if c := a.FireAt.Compare(b.FireAt); c != 0 {
			return c
		}
		if a.member() < b.member() {
			return -1
		}
		return 1
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Claim(_ context.Context, t Timer, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.timers[t.member()]
	if !ok || cur.FireAt.After(now) {
		return false, nil
	}
	delete(s.timers, t.member())
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, alertID string, kind Kind) (Timer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[Timer{AlertID: alertID, Kind: kind}.member()]
	return t, ok, nil
}

func (s *MemoryStore) Len(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.timers)), nil
}
