// Package repository 提供了本地持久化层的实现。
package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

// ErrNotFound 表示键不存在。
var ErrNotFound = errors.New("key not found")

// KVStore 定义了登录态等少量键值的持久化操作。
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

type redisKVStore struct {
	redisClient *redis.Client
	prefix      string
}

// NewRedisKVStore 创建基于 Redis 的 KVStore，所有键加上 prefix 前缀。键不过期。
func NewRedisKVStore(redisClient *redis.Client, prefix string) KVStore {
	return &redisKVStore{redisClient: redisClient, prefix: prefix}
}

func (r *redisKVStore) key(k string) string {
	return r.prefix + k
}

// Get 读取一个键，不存在时返回 ErrNotFound。
func (r *redisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.redisClient.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, nil
}

// Set 写入一个键。
func (r *redisKVStore) Set(ctx context.Context, key, value string) error {
	if err := r.redisClient.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete 删除若干键，不存在的键忽略。
func (r *redisKVStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.redisClient.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

type memoryKVStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKVStore 创建进程内 KVStore，进程退出即丢失。
func NewMemoryKVStore() KVStore {
	return &memoryKVStore{data: make(map[string]string)}
}

func (m *memoryKVStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memoryKVStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryKVStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}
