package cache

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/nexusrank/nexusrank-edge/internal/fetch"
)

// NewMemoryStorage 返回进程内存储，重启即丢失，适合测试与临时部署。
func NewMemoryStorage() Storage {
	return &memoryStorage{stores: make(map[string]*memoryStore)}
}

type memoryStorage struct {
	mu     sync.RWMutex
	stores map[string]*memoryStore
}

type memoryStore struct {
	name string

	mu      sync.RWMutex
	entries map[string]*fetch.Response
}

func (s *memoryStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.New("cache name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.stores[name]
	if !ok {
		store = &memoryStore{name: name, entries: make(map[string]*fetch.Response)}
		s.stores[name] = store
	}
	return store, nil
}

func (s *memoryStorage) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memoryStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[name]; !ok {
		return false, nil
	}
	delete(s.stores, name)
	return true, nil
}

func (s *memoryStorage) Close() error { return nil }

func (m *memoryStore) Name() string { return m.name }

func (m *memoryStore) Match(ctx context.Context, key string) (*fetch.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	resp, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return resp.Clone(), nil
}

func (m *memoryStore) Put(ctx context.Context, key string, resp *fetch.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if resp == nil {
		return errors.New("nil response")
	}
	m.mu.Lock()
	m.entries[key] = resp.Clone()
	m.mu.Unlock()
	return nil
}
