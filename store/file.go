package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
)

// FileStore keeps every value in one JSON document keyed by key, read and
// written wholesale on each call. A missing or corrupt document reads as empty.
// Versions are digests of each value's encoding, so the document itself keeps
// the plain {key: value} shape.
type FileStore[V any] struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

func NewFileStore[V any](path string, logger *slog.Logger) *FileStore[V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore[V]{path: path, logger: logger}
}

func (f *FileStore[V]) load() map[string]json.RawMessage {
	doc := map[string]json.RawMessage{}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("Session file unreadable, starting empty", "path", f.path, "error", err)
		}
		return doc
	}
	if len(data) == 0 {
		return doc
	}
	if err := sonic.Unmarshal(data, &doc); err != nil {
		f.logger.Warn("Session file corrupt, starting empty", "path", f.path, "error", err)
		return map[string]json.RawMessage{}
	}
	return doc
}

func (f *FileStore[V]) save(doc map[string]json.RawMessage) error {
	data, err := sonic.ConfigStd.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

func digest(raw []byte) uint64 {
	h := xxhash.Sum64(raw)
	if h == 0 {
		return 1
	}
	return h
}

func (f *FileStore[V]) Get(ctx context.Context, key string) (Entry[V], bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.load()[key]
	if !ok {
		return Entry[V]{}, false, nil
	}
	var val V
	if err := sonic.Unmarshal(raw, &val); err != nil {
		f.logger.Warn("Ignoring undecodable entry", "path", f.path, "key", key, "error", err)
		return Entry[V]{Version: digest(raw)}, false, nil
	}
	return Entry[V]{Value: val, Version: digest(raw)}, true, nil
}

func (f *FileStore[V]) Put(ctx context.Context, key string, val V) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := sonic.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	doc := f.load()
	doc[key] = raw
	return f.save(doc)
}

func (f *FileStore[V]) CompareAndSwap(ctx context.Context, key string, expected uint64, val V) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.load()
	var current uint64
	if raw, ok := doc[key]; ok {
		current = digest(raw)
	}
	if current != expected {
		return false, nil
	}
	raw, err := sonic.Marshal(val)
	if err != nil {
		return false, fmt.Errorf("encode %q: %w", key, err)
	}
	doc[key] = raw
	if err := f.save(doc); err != nil {
		return false, err
	}
	return true, nil
}

func (f *FileStore[V]) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.load()
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return f.save(doc)
}

var _ Store[int] = (*FileStore[int])(nil)
