// Package kvstore provides the typed key-value store abstraction that the
// cache layer is built on. It defines the Store contract, a Redis-backed
// implementation used in deployments, and an in-memory implementation used
// by tests and local development.
//
// All values pass through a canonical JSON serializer; values above a
// configurable threshold are transparently compressed. Every call is
// bounded by a timeout, and the Redis implementation wraps calls in a
// circuit breaker so that a failing store degrades to misses instead of
// propagating errors to request paths.
package kvstore

import (
	"context"
	"time"
)

// ZMember pairs a sorted-set member with its score.
type ZMember struct {
	Member string
	Score  float64
}

// Observer receives a notification for every store operation. The metrics
// collector implements this to record hit rates and latencies without the
// call sites instrumenting anything.
type Observer interface {
	Observe(operation, key string, hit bool, latency time.Duration, err error)
}

// Store is the contract for the backing key-value store.
//
// Implementations must treat a missing key as (found=false, nil error) on
// reads, rely on the backing store's native atomicity for Increment and
// sorted-set operations, and keep DeletePattern semantics as the union of
// all keys matching at call time.
type Store interface {
	// Get decodes the value stored at key into dest.
	Get(ctx context.Context, key string, dest any) (bool, error)
	// GetRaw returns the stored payload without decoding.
	GetRaw(ctx context.Context, key string) (string, bool, error)
	// Set encodes value and stores it under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Delete removes the given keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)
	// DeletePattern removes every key matching the glob pattern.
	DeletePattern(ctx context.Context, pattern string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Increment atomically adds delta to the integer counter at key,
	// creating it at zero first if absent.
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL mirrors Redis semantics: -1 means no expiry, -2 means missing.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Keys returns all keys matching the glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// MGet returns raw payloads for the given keys; nil marks a miss.
	MGet(ctx context.Context, keys ...string) ([]*string, error)
	MSet(ctx context.Context, values map[string]any, ttl time.Duration) error

	// Sorted-set operations, used as time-ordered indexes.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZScore(ctx context.Context, key, member string) (float64, bool, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZRangeByScoreWithScores(ctx context.Context, key string, min, max float64) ([]ZMember, error)
	ZIncrBy(ctx context.Context, key string, incr float64, member string) (float64, error)

	// Set operations.
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SCard(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
