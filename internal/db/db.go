package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
type Store interface {
	Pinger
	KVStore
	SortedSetStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations. Set replaces the whole value, so readers
// never observe a partially written record.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, keys ...string) error
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// ScoreRange selects sorted set members by score, inclusive on both ends.
type ScoreRange struct {
	Min, Max int64
	Offset   int64
	Count    int64 // 0 = no limit
	Reverse  bool  // highest score first
}

// SortedSetStore provides ordered secondary indexes.
type SortedSetStore interface {
	ZAdd(ctx context.Context, key string, score int64, member string) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRangeByScore(ctx context.Context, key string, r ScoreRange) ([]string, error)
}
