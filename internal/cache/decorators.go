package cache

import (
	"context"
	"reflect"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/concurrency"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/kvstore"
)

// Loader produces a value from the system of record on a cache miss.
type Loader[T any] func(ctx context.Context) (T, error)

// Policy carries the shared machinery the caching strategies run on: the
// store, a singleflight group so concurrent misses on one key trigger a
// single load, and the worker pool for background revalidation.
//
// The strategies are package-level generic functions over a Policy rather
// than methods because methods cannot carry type parameters.
type Policy struct {
	store  kvstore.Store
	pool   *concurrency.WorkerPool
	logger *zap.Logger
	group  singleflight.Group
}

// NewPolicy builds the shared strategy state.
func NewPolicy(store kvstore.Store, pool *concurrency.WorkerPool, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{store: store, pool: pool, logger: logger}
}

// ReadThrough returns the cached value for key, or loads, caches, and
// returns it on a miss. Concurrent misses on the same key share one
// loader call. Loader errors propagate uncached; store errors degrade to
// a miss.
func ReadThrough[T any](ctx context.Context, p *Policy, key string, ttl time.Duration, loader Loader[T]) (T, error) {
	var cached T
	if found, err := p.store.Get(ctx, key, &cached); err == nil && found {
		return cached, nil
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		var fresh T
		var lerr error
		fresh, lerr = loader(ctx)
		if lerr != nil {
			return nil, lerr
		}
		if !isNilValue(fresh) {
			if serr := p.store.Set(ctx, key, fresh, ttl); serr != nil {
				p.logger.Warn("read-through store failed",
					zap.String("key", key),
					zap.Error(serr))
			}
		}
		return fresh, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// StaleWhileRevalidate serves the cached value immediately when present
// and refreshes it in the background, keeping latency flat while the
// entry converges on fresh data. A miss falls back to ReadThrough. The
// background refresh is skipped when the worker queue is full.
func StaleWhileRevalidate[T any](ctx context.Context, p *Policy, key string, ttl time.Duration, loader Loader[T]) (T, error) {
	var cached T
	if found, err := p.store.Get(ctx, key, &cached); err == nil && found {
		p.pool.Submit(concurrency.Task{
			Name: "swr-revalidate",
			Execute: func(taskCtx context.Context) error {
				fresh, lerr := loader(taskCtx)
				if lerr != nil {
					return lerr
				}
				if isNilValue(fresh) {
					return nil
				}
				return p.store.Set(taskCtx, key, fresh, ttl)
			},
		})
		return cached, nil
	}
	return ReadThrough(ctx, p, key, ttl, loader)
}

// WriteInvalidate runs the write operation and, on success, deletes every
// key matching the patterns. Placeholders of the form {name} are
// substituted from args before matching. Invalidation failures are logged
// and swallowed; the write has already committed.
func WriteInvalidate[T any](ctx context.Context, p *Policy, patterns []string, args map[string]string, op Loader[T]) (T, error) {
	result, err := op(ctx)
	if err != nil {
		return result, err
	}
	for _, pattern := range patterns {
		resolved := substitutePlaceholders(pattern, args)
		if _, derr := p.store.DeletePattern(ctx, resolved); derr != nil {
			p.logger.Warn("write invalidation failed",
				zap.String("pattern", resolved),
				zap.Error(derr))
		}
	}
	return result, nil
}

// substitutePlaceholders replaces each {name} token with args[name].
// Unknown tokens are left intact.
func substitutePlaceholders(pattern string, args map[string]string) string {
	for name, value := range args {
		pattern = strings.ReplaceAll(pattern, "{"+name+"}", value)
	}
	return pattern
}

// isNilValue reports whether v is nil or a typed nil pointer, map, or
// slice. Nil results are returned to the caller but never cached, so a
// later write is visible immediately.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
