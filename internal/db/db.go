// Package db defines the shared key-value store abstraction used by the
// embedding cache and the distributed rate limiter. Consumers depend on the
// narrow sub-interfaces, not the Store facade.
package db

import (
	"context"
	"time"
)

// Store is the database facade combining all sub-interfaces.
type Store interface {
	Pinger
	KVStore
	Counter
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Counter provides atomic counter operations for windowed rate limiting.
type Counter interface {
	// Incr increments the key by one and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets TTL on a key. When nx=true, sets TTL only if the key has
	// no expiry yet (EXPIRE NX).
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
	// TTL returns the remaining time to live of a key.
	TTL(ctx context.Context, key string) (time.Duration, error)
}
