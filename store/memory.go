package store

import (
	"context"
	"sync"
)

type MemoryStore[V any] struct {
	mu sync.RWMutex
	m  map[string]Entry[V]
}

func NewMemoryStore[V any]() *MemoryStore[V] {
	return &MemoryStore[V]{m: map[string]Entry[V]{}}
}

func (m *MemoryStore[V]) Get(ctx context.Context, key string) (Entry[V], bool, error) {
	m.mu.RLock()
	e, ok := m.m[key]
	m.mu.RUnlock()
	return e, ok, nil
}

func (m *MemoryStore[V]) Put(ctx context.Context, key string, val V) error {
	m.mu.Lock()
	e := m.m[key]
	m.m[key] = Entry[V]{Value: val, Version: e.Version + 1}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore[V]) CompareAndSwap(ctx context.Context, key string, expected uint64, val V) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.m[key]
	if e.Version != expected {
		return false, nil
	}
	m.m[key] = Entry[V]{Value: val, Version: expected + 1}
	return true, nil
}

func (m *MemoryStore[V]) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.m, key)
	m.mu.Unlock()
	return nil
}

var _ Store[int] = (*MemoryStore[int])(nil)
