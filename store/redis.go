package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	goredis "github.com/redis/go-redis/v9"
)

const (
	redisVersionField = "v"
	redisDataField    = "data"
)

// RedisStore keeps each value in a hash {v: version, data: json}.
type RedisStore[V any] struct {
	rdb       goredis.UniversalClient
	namespace string
	ttl       time.Duration
}

func NewRedisStore[V any](rdb goredis.UniversalClient, namespace string, ttl time.Duration) *RedisStore[V] {
	return &RedisStore[V]{rdb: rdb, namespace: namespace, ttl: ttl}
}

func (r *RedisStore[V]) key(key string) string {
	if r.namespace == "" {
		return key
	}
	return r.namespace + ":" + key
}

func (r *RedisStore[V]) Get(ctx context.Context, key string) (Entry[V], bool, error) {
	vals, err := r.rdb.HMGet(ctx, r.key(key), redisVersionField, redisDataField).Result()
	if err != nil {
		return Entry[V]{}, false, fmt.Errorf("redis HMGET: %w", err)
	}
	return decodeRedisEntry[V](vals)
}

func decodeRedisEntry[V any](vals []any) (Entry[V], bool, error) {
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Entry[V]{}, false, nil
	}
	rawVersion, _ := vals[0].(string)
	version, err := strconv.ParseUint(rawVersion, 10, 64)
	if err != nil {
		return Entry[V]{}, false, fmt.Errorf("redis version %q: %w", rawVersion, err)
	}
	data, _ := vals[1].(string)
	var val V
	if err := sonic.UnmarshalString(data, &val); err != nil {
		return Entry[V]{Version: version}, false, nil
	}
	return Entry[V]{Value: val, Version: version}, true, nil
}

func (r *RedisStore[V]) Put(ctx context.Context, key string, val V) error {
	data, err := sonic.MarshalString(val)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	k := r.key(key)
	_, err = r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HIncrBy(ctx, k, redisVersionField, 1)
		pipe.HSet(ctx, k, redisDataField, data)
		if r.ttl > 0 {
			pipe.Expire(ctx, k, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

func (r *RedisStore[V]) CompareAndSwap(ctx context.Context, key string, expected uint64, val V) (bool, error) {
	data, err := sonic.MarshalString(val)
	if err != nil {
		return false, fmt.Errorf("encode %q: %w", key, err)
	}
	k := r.key(key)
	swapped := false
	err = r.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := tx.HGet(ctx, k, redisVersionField).Uint64()
		if errors.Is(err, goredis.Nil) {
			current = 0
		} else if err != nil {
			return err
		}
		if current != expected {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, k, redisVersionField, expected+1, redisDataField, data)
			if r.ttl > 0 {
				pipe.Expire(ctx, k, r.ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, k)
	if errors.Is(err, goredis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis compare-and-swap: %w", err)
	}
	return swapped, nil
}

func (r *RedisStore[V]) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis DEL: %w", err)
	}
	return nil
}

var _ Store[int] = (*RedisStore[int])(nil)
