// Package store keeps versioned values by key. Sessions, invitations and LLM
// history all live behind the same Store interface so the backing datastore can
// be swapped without touching the tracker.
package store

import (
	"context"
	"errors"
)

var ErrConflict = errors.New("store: concurrent modification")

// Entry is a stored value and its version. Version 0 means "absent".
type Entry[V any] struct {
	Value   V
	Version uint64
}

type Store[V any] interface {
	Get(ctx context.Context, key string) (Entry[V], bool, error)
	Put(ctx context.Context, key string, val V) error
	// CompareAndSwap writes val only if the stored version still equals
	// expected. expected == 0 requires the key to be absent.
	CompareAndSwap(ctx context.Context, key string, expected uint64, val V) (bool, error)
	Delete(ctx context.Context, key string) error
}

type prefixed[V any] struct {
	inner     Store[V]
	namespace string
}

// Prefixed namespaces every key as "<namespace>:<key>".
func Prefixed[V any](inner Store[V], namespace string) Store[V] {
	if namespace == "" {
		return inner
	}
	return prefixed[V]{inner: inner, namespace: namespace}
}

func (p prefixed[V]) key(key string) string {
	return p.namespace + ":" + key
}

func (p prefixed[V]) Get(ctx context.Context, key string) (Entry[V], bool, error) {
	return p.inner.Get(ctx, p.key(key))
}

func (p prefixed[V]) Put(ctx context.Context, key string, val V) error {
	return p.inner.Put(ctx, p.key(key), val)
}

func (p prefixed[V]) CompareAndSwap(ctx context.Context, key string, expected uint64, val V) (bool, error) {
	return p.inner.CompareAndSwap(ctx, p.key(key), expected, val)
}

func (p prefixed[V]) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.key(key))
}
