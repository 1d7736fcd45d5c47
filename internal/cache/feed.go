package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache/keys"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/concurrency"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/kvstore"
)

// FeedQuery identifies one logical feed page. The zero CommunityID selects
// the location-based discover feed; a non-empty one selects the community
// feed and ignores coordinates.
type FeedQuery struct {
	CommunityID string
	Lat         float64
	Lng         float64
	Filters     map[string]any
	Page        int
	Limit       int
}

// Key returns the canonical cache key for the query.
func (q FeedQuery) Key() string {
	if q.CommunityID != "" {
		return keys.CommunityFeed(q.CommunityID, q.Filters, q.Page, q.Limit)
	}
	return keys.DiscoverFeed(q.Lat, q.Lng, q.Filters, q.Page, q.Limit)
}

// FeedLoader produces one feed page from the system of record. Loaders are
// invoked with the query's coordinates and filters already bound; only the
// page number varies.
type FeedLoader func(ctx context.Context, page int) (*FeedPage, error)

// FeedCache caches feed pages keyed by geo bucket, filter digest, and
// pagination, and predictively prefetches the next page in the background.
type FeedCache struct {
	store  kvstore.Store
	pool   *concurrency.WorkerPool
	logger *zap.Logger

	// ttl is stored as nanoseconds so config hot-reload can swap it
	// without a lock.
	ttl atomic.Int64
}

// NewFeedCache builds a feed cache writing entries with the given TTL.
func NewFeedCache(store kvstore.Store, pool *concurrency.WorkerPool, ttl time.Duration, logger *zap.Logger) *FeedCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	fc := &FeedCache{store: store, pool: pool, logger: logger}
	fc.ttl.Store(int64(ttl))
	return fc
}

// SetTTL swaps the TTL applied to subsequent writes. Existing entries keep
// the TTL they were written with.
func (fc *FeedCache) SetTTL(ttl time.Duration) {
	fc.ttl.Store(int64(ttl))
}

// GetFeed returns the cached page for the query, or found=false on a miss.
// Store failures degrade to a miss.
func (fc *FeedCache) GetFeed(ctx context.Context, q FeedQuery) (*FeedPage, bool) {
	var page FeedPage
	found, err := fc.store.Get(ctx, q.Key(), &page)
	if err != nil || !found {
		return nil, false
	}
	return &page, true
}

// SetFeed caches the page under the query's canonical key.
func (fc *FeedCache) SetFeed(ctx context.Context, q FeedQuery, page *FeedPage) error {
	return fc.store.Set(ctx, q.Key(), page, time.Duration(fc.ttl.Load()))
}

// InvalidateAll drops every cached feed page across all geo buckets and
// communities. Returns the number of keys removed.
func (fc *FeedCache) InvalidateAll(ctx context.Context) (int64, error) {
	return fc.store.DeletePattern(ctx, keys.FeedPattern())
}

// PrefetchNextPage schedules a background load of page+1 for the query.
// The task is dropped when the worker queue is full; prefetch is an
// optimization, never required for correctness. Returns whether the task
// was accepted.
func (fc *FeedCache) PrefetchNextPage(q FeedQuery, loader FeedLoader) bool {
	next := q
	next.Page = q.Page + 1
	key := next.Key()

	return fc.pool.Submit(concurrency.Task{
		Name: "feed-prefetch",
		Execute: func(ctx context.Context) error {
			exists, err := fc.store.Exists(ctx, key)
			if err != nil || exists {
				return err
			}
			page, err := loader(ctx, next.Page)
			if err != nil {
				return err
			}
			if page == nil || len(page.Items) == 0 {
				return nil
			}
			return fc.store.Set(ctx, key, page, time.Duration(fc.ttl.Load()))
		},
	})
}

// WarmCache populates the first n pages of the query synchronously and
// returns how many were cached. Individual page failures are logged and
// skipped so one bad page does not abort the rest.
func (fc *FeedCache) WarmCache(ctx context.Context, q FeedQuery, n int, loader FeedLoader) int {
	warmed := 0
	for page := 1; page <= n; page++ {
		target := q
		target.Page = page

		if exists, err := fc.store.Exists(ctx, target.Key()); err == nil && exists {
			warmed++
			continue
		}

		result, err := loader(ctx, page)
		if err != nil {
			fc.logger.Warn("feed warm page failed",
				zap.Int("page", page),
				zap.Error(err))
			continue
		}
		if result == nil || len(result.Items) == 0 {
			break
		}
		if err := fc.SetFeed(ctx, target, result); err != nil {
			fc.logger.Warn("feed warm store failed",
				zap.Int("page", page),
				zap.Error(err))
			continue
		}
		warmed++
		if !result.HasMore {
			break
		}
	}
	return warmed
}
