package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/concurrency"
)

func newTestPool(t *testing.T) *concurrency.WorkerPool {
	t.Helper()
	pool := concurrency.NewWorkerPool(2, 16, nil)
	pool.Start()
	t.Cleanup(func() { pool.Stop(time.Second) })
	return pool
}

func testFeedPage(page, items int, hasMore bool) *FeedPage {
	out := &FeedPage{Page: page, Limit: 20, HasMore: hasMore}
	for i := 0; i < items; i++ {
		out.Items = append(out.Items, ProductSummary{ID: "p", Title: "item"})
	}
	out.Total = items
	return out
}

func TestFeedCache_SetGetRoundTrip(t *testing.T) {
	fc := NewFeedCache(newTestStore(), newTestPool(t), time.Minute, nil)
	ctx := context.Background()

	q := FeedQuery{Lat: 25.2048, Lng: 55.2708, Page: 1, Limit: 20}
	require.NoError(t, fc.SetFeed(ctx, q, testFeedPage(1, 3, true)))

	got, found := fc.GetFeed(ctx, q)
	require.True(t, found)
	assert.Len(t, got.Items, 3)
	assert.True(t, got.HasMore)

	// A different page is a distinct entry.
	_, found = fc.GetFeed(ctx, FeedQuery{Lat: 25.2048, Lng: 55.2708, Page: 2, Limit: 20})
	assert.False(t, found)
}

func TestFeedCache_NearbyQueriesShareEntry(t *testing.T) {
	fc := NewFeedCache(newTestStore(), newTestPool(t), time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, fc.SetFeed(ctx, FeedQuery{Lat: 25.2048, Lng: 55.2708, Page: 1, Limit: 20}, testFeedPage(1, 1, false)))

	_, found := fc.GetFeed(ctx, FeedQuery{Lat: 25.2052, Lng: 55.2711, Page: 1, Limit: 20})
	assert.True(t, found, "coordinates in the same geo bucket share the entry")
}

func TestFeedCache_InvalidateAll(t *testing.T) {
	store := newTestStore()
	fc := NewFeedCache(store, newTestPool(t), time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, fc.SetFeed(ctx, FeedQuery{Lat: 1, Lng: 2, Page: 1, Limit: 20}, testFeedPage(1, 1, false)))
	require.NoError(t, fc.SetFeed(ctx, FeedQuery{CommunityID: "c1", Page: 1, Limit: 20}, testFeedPage(1, 1, false)))
	require.NoError(t, store.Set(ctx, "user:1", "kept", 0))

	deleted, err := fc.InvalidateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	exists, _ := store.Exists(ctx, "user:1")
	assert.True(t, exists)
}

func TestFeedCache_PrefetchNextPage(t *testing.T) {
	fc := NewFeedCache(newTestStore(), newTestPool(t), time.Minute, nil)
	ctx := context.Background()

	var loads atomic.Int32
	loader := func(ctx context.Context, page int) (*FeedPage, error) {
		loads.Add(1)
		return testFeedPage(page, 2, true), nil
	}

	q := FeedQuery{Lat: 1, Lng: 2, Page: 1, Limit: 20}
	require.True(t, fc.PrefetchNextPage(q, loader))

	next := q
	next.Page = 2
	require.Eventually(t, func() bool {
		_, found := fc.GetFeed(ctx, next)
		return found
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), loads.Load())

	// Prefetching again finds the page cached and skips the load.
	require.True(t, fc.PrefetchNextPage(q, loader))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), loads.Load())
}

func TestFeedCache_WarmCacheStopsAtLastPage(t *testing.T) {
	fc := NewFeedCache(newTestStore(), newTestPool(t), time.Minute, nil)
	ctx := context.Background()

	loader := func(ctx context.Context, page int) (*FeedPage, error) {
		if page > 2 {
			return testFeedPage(page, 0, false), nil
		}
		return testFeedPage(page, 2, page < 2), nil
	}

	warmed := fc.WarmCache(ctx, FeedQuery{Lat: 1, Lng: 2, Limit: 20}, 5, loader)
	assert.Equal(t, 2, warmed)
}

func TestFeedCache_WarmCacheContinuesPastFailures(t *testing.T) {
	fc := NewFeedCache(newTestStore(), newTestPool(t), time.Minute, nil)
	ctx := context.Background()

	loader := func(ctx context.Context, page int) (*FeedPage, error) {
		if page == 2 {
			return nil, errors.New("backend hiccup")
		}
		return testFeedPage(page, 2, true), nil
	}

	warmed := fc.WarmCache(ctx, FeedQuery{Lat: 1, Lng: 2, Limit: 20}, 3, loader)
	assert.Equal(t, 2, warmed, "pages 1 and 3 cached despite page 2 failing")
}
