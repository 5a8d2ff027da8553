// Package db defines the storage contracts used by the score cache.
package db

import (
	"context"
	"time"
)

// Store is the database facade; consumers depend on the narrow sub-interfaces.
type Store interface {
	Pinger
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVItem is a single entry for a multi-key write.
type KVItem struct {
	Key   string
	Value []byte
}

// KVStore is a plain key-value store.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// MGet returns one value per key; missing keys yield nil.
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetMultiWithTTL(ctx context.Context, items []KVItem, ttl time.Duration) error
}
