package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
  namespace  TEXT    NOT NULL,
  key        TEXT    NOT NULL,
  version    INTEGER NOT NULL,
  value      TEXT    NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (namespace, key)
)`

// OpenSQLite opens (and creates) the database shared by every SQLiteStore.
func OpenSQLite(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return db, nil
}

type SQLiteStore[V any] struct {
	db        *sql.DB
	namespace string
}

func NewSQLiteStore[V any](db *sql.DB, namespace string) *SQLiteStore[V] {
	return &SQLiteStore[V]{db: db, namespace: namespace}
}

func (s *SQLiteStore[V]) Get(ctx context.Context, key string) (Entry[V], bool, error) {
	var (
		version uint64
		raw     string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, value FROM kv WHERE namespace = ? AND key = ?`,
		s.namespace, key,
	).Scan(&version, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry[V]{}, false, nil
	}
	if err != nil {
		return Entry[V]{}, false, fmt.Errorf("select %q: %w", key, err)
	}
	var val V
	if err := sonic.UnmarshalString(raw, &val); err != nil {
		return Entry[V]{Version: version}, false, nil
	}
	return Entry[V]{Value: val, Version: version}, true, nil
}

func (s *SQLiteStore[V]) Put(ctx context.Context, key string, val V) error {
	raw, err := sonic.MarshalString(val)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (namespace, key, version, value, updated_at) VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET
		   version = kv.version + 1,
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		s.namespace, key, raw, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore[V]) CompareAndSwap(ctx context.Context, key string, expected uint64, val V) (bool, error) {
	raw, err := sonic.MarshalString(val)
	if err != nil {
		return false, fmt.Errorf("encode %q: %w", key, err)
	}
	now := time.Now().UTC().UnixMilli()
	var res sql.Result
	if expected == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO kv (namespace, key, version, value, updated_at) VALUES (?, ?, 1, ?, ?)
			 ON CONFLICT (namespace, key) DO NOTHING`,
			s.namespace, key, raw, now,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE kv SET version = version + 1, value = ?, updated_at = ?
			 WHERE namespace = ? AND key = ? AND version = ?`,
			raw, now, s.namespace, key, expected,
		)
	}
	if err != nil {
		return false, fmt.Errorf("compare-and-swap %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("compare-and-swap %q: %w", key, err)
	}
	return n == 1, nil
}

func (s *SQLiteStore[V]) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ? AND key = ?`, s.namespace, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

var _ Store[int] = (*SQLiteStore[int])(nil)
