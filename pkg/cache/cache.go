// Package cache provides byte-oriented key/value stores with expiry.
package cache

import (
	"context"
	"errors"
	"time"
)

const (
	// BackendRedis 使用 Redis 存储
	BackendRedis = "redis"
	// BackendMemory 使用进程内存储，仅适用于单实例部署
	BackendMemory = "memory"
)

// ErrMiss is returned by Get when the key does not exist or has expired.
var ErrMiss = errors.New("cache miss")

// Store is a key/value store with per-entry TTL.
type Store interface {
	// Get returns the value stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key; a non-positive ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix and returns the count.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}
