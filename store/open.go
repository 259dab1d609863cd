package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// SessionNamespace is stored at Config.Path itself by the file driver so the
// session document keeps its historical location.
const SessionNamespace = "session"

type Config struct {
	Driver        string `json:"driver" env:"DRIVER"`
	Path          string `json:"path" env:"PATH"`
	RedisAddr     string `json:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `json:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `json:"redis_db" env:"REDIS_DB"`
	// TTLSeconds expires idle redis entries; zero keeps them forever.
	TTLSeconds int `json:"ttl_seconds" env:"TTL_SECONDS"`
}

func (c Config) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Backend owns the connection shared by every store opened from it.
type Backend struct {
	cfg    Config
	logger *slog.Logger
	rdb    goredis.UniversalClient
	db     *sql.DB
}

func OpenBackend(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{cfg: cfg, logger: logger}
	switch cfg.Driver {
	case "", DriverMemory:
		b.cfg.Driver = DriverMemory
	case DriverFile:
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, fmt.Errorf("file store: path is required")
		}
	case DriverRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redis store: address is required")
		}
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis store: ping %s: %w", cfg.RedisAddr, err)
		}
		b.rdb = rdb
	case DriverSQLite:
		db, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		b.db = db
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	logger.Info("Store backend ready", "driver", b.cfg.Driver, "path", cfg.Path, "redis", cfg.RedisAddr)
	return b, nil
}

func (b *Backend) Driver() string {
	return b.cfg.Driver
}

func (b *Backend) Close() error {
	var errs []error
	if b.rdb != nil {
		errs = append(errs, b.rdb.Close())
	}
	if b.db != nil {
		errs = append(errs, b.db.Close())
	}
	return errors.Join(errs...)
}

// Open returns the store for one namespace on b.
func Open[V any](b *Backend, namespace string) Store[V] {
	switch b.cfg.Driver {
	case DriverFile:
		return NewFileStore[V](filePath(b.cfg.Path, namespace), b.logger)
	case DriverRedis:
		return NewRedisStore[V](b.rdb, "remi:"+namespace, b.cfg.TTL())
	case DriverSQLite:
		return NewSQLiteStore[V](b.db, namespace)
	default:
		return NewMemoryStore[V]()
	}
}

func filePath(base, namespace string) string {
	if namespace == SessionNamespace {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_" + namespace + ext
}
