package lifecycle

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// stripedMutex 按键哈希到固定数量的锁上，同一告警的变更串行
type stripedMutex struct {
	stripes []sync.Mutex
}

func newStripedMutex(n int) *stripedMutex {
	if n <= 0 {
		n = 256
	}
	return &stripedMutex{stripes: make([]sync.Mutex, n)}
}

func (s *stripedMutex) lock(key string) (unlock func()) {
	mu := &s.stripes[xxhash.Sum64String(key)%uint64(len(s.stripes))]
	mu.Lock()
	return mu.Unlock
}
