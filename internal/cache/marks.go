package cache

import (
	"sync"
	"time"
)

// markerTTL 控制远端后端多久重新写一次 Store 标记。其他实例删除 Store 后，
// 本实例最多在这段时间内把条目写进一个没有标记的前缀。
const markerTTL = time.Minute

// storeMarks 记录本进程近期确认过标记的 Store，命中时 Open 不再产生远端写。
type storeMarks struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func newStoreMarks(ttl time.Duration) *storeMarks {
	return &storeMarks{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (m *storeMarks) fresh(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.seen[name]
	return ok && m.now().Sub(at) < m.ttl
}

func (m *storeMarks) mark(name string) {
	m.mu.Lock()
	m.seen[name] = m.now()
	m.mu.Unlock()
}

func (m *storeMarks) forget(name string) {
	m.mu.Lock()
	delete(m.seen, name)
	m.mu.Unlock()
}
