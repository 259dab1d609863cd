package store

import (
	"context"
	"fmt"
	"sync"
)

// KeyedMutex hands out one mutex per key and forgets it once nobody holds it.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Guard serializes read-modify-write cycles per key. Inside one process the
// keyed mutex orders callers; across processes the final CompareAndSwap
// detects a lost race and reports ErrConflict instead of overwriting.
type Guard[V any] struct {
	store Store[V]
	locks KeyedMutex
}

func NewGuard[V any](s Store[V]) *Guard[V] {
	return &Guard[V]{store: s}
}

// Load reads key, falling back to init when the key is absent.
func (g *Guard[V]) Load(ctx context.Context, key string, init func() V) (V, error) {
	e, ok, err := g.store.Get(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	if !ok {
		return init(), nil
	}
	return e.Value, nil
}

// Update runs fn on the current value (or init() when absent) and stores the
// result. fn runs at most once; when it returns an error nothing is written.
func (g *Guard[V]) Update(ctx context.Context, key string, init func() V, fn func(*V) error) (V, error) {
	unlock := g.locks.Lock(key)
	defer unlock()

	var zero V
	e, ok, err := g.store.Get(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("load %q: %w", key, err)
	}
	val := e.Value
	if !ok {
		// e.Version may be non-zero when the stored value is undecodable;
		// swapping against it replaces the bad value.
		val = init()
	}
	if err := fn(&val); err != nil {
		return zero, err
	}
	swapped, err := g.store.CompareAndSwap(ctx, key, e.Version, val)
	if err != nil {
		return zero, fmt.Errorf("save %q: %w", key, err)
	}
	if !swapped {
		return zero, fmt.Errorf("save %q: %w", key, ErrConflict)
	}
	return val, nil
}
