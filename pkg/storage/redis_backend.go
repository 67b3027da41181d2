package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps a collection in one Redis string key, namespaced as
// prnotify:{namespace}:{name}. SET replaces the value atomically.
type RedisBackend struct {
	rdb *redis.Client
	key string
}

// NewRedisBackend creates a backend on its own connection.
// namespace and name must not be empty.
func NewRedisBackend(opts *redis.Options, namespace, name string) (*RedisBackend, error) {
	if namespace == "" {
		return nil, fmt.Errorf("redis namespace cannot be empty")
	}
	if name == "" {
		return nil, fmt.Errorf("redis collection name cannot be empty")
	}
	return &RedisBackend{
		rdb: redis.NewClient(opts),
		key: RedisKey(namespace, name),
	}, nil
}

// RedisKey returns the key used for a collection.
func RedisKey(namespace, name string) string {
	return fmt.Sprintf("prnotify:%s:%s", namespace, name)
}

// Key returns the Redis key the backend uses.
func (b *RedisBackend) Key() string { return b.key }

// Ping verifies Redis connectivity.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}

// Load returns the stored value, or nil if the key does not exist.
func (b *RedisBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := b.rdb.Get(ctx, b.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s from Redis: %w", b.key, err)
	}
	return data, nil
}

// Save replaces the stored value.
func (b *RedisBackend) Save(ctx context.Context, data []byte) error {
	if err := b.rdb.Set(ctx, b.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s to Redis: %w", b.key, err)
	}
	return nil
}
