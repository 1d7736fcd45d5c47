package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadThrough_MissLoadsAndCaches(t *testing.T) {
	p := NewPolicy(newTestStore(), newTestPool(t), nil)
	ctx := context.Background()

	var loads atomic.Int32
	loader := func(ctx context.Context) (*ProductSummary, error) {
		loads.Add(1)
		return &ProductSummary{ID: "p1", Title: "Sofa"}, nil
	}

	got, err := ReadThrough(ctx, p, "product:p1", time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, "Sofa", got.Title)
	assert.Equal(t, int32(1), loads.Load())

	// Second call is served from cache.
	got, err = ReadThrough(ctx, p, "product:p1", time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, "Sofa", got.Title)
	assert.Equal(t, int32(1), loads.Load())
}

func TestReadThrough_LoaderErrorNotCached(t *testing.T) {
	p := NewPolicy(newTestStore(), newTestPool(t), nil)
	ctx := context.Background()

	var loads atomic.Int32
	failing := func(ctx context.Context) (*ProductSummary, error) {
		loads.Add(1)
		return nil, errors.New("db down")
	}

	_, err := ReadThrough(ctx, p, "product:p1", time.Minute, failing)
	require.Error(t, err)

	// The failure was not cached; the loader runs again.
	_, err = ReadThrough(ctx, p, "product:p1", time.Minute, failing)
	require.Error(t, err)
	assert.Equal(t, int32(2), loads.Load())
}

func TestReadThrough_NilResultNotCached(t *testing.T) {
	store := newTestStore()
	p := NewPolicy(store, newTestPool(t), nil)
	ctx := context.Background()

	loader := func(ctx context.Context) (*ProductSummary, error) {
		return nil, nil
	}

	got, err := ReadThrough(ctx, p, "product:absent", time.Minute, loader)
	require.NoError(t, err)
	assert.Nil(t, got)

	exists, _ := store.Exists(ctx, "product:absent")
	assert.False(t, exists)
}

func TestStaleWhileRevalidate_ServesStaleThenRefreshes(t *testing.T) {
	store := newTestStore()
	p := NewPolicy(store, newTestPool(t), nil)
	ctx := context.Background()

	var version atomic.Int32
	version.Store(1)
	loader := func(ctx context.Context) (*ProductSummary, error) {
		return &ProductSummary{ID: "p1", Title: "v" + string(rune('0'+version.Load()))}, nil
	}

	// First call misses and loads version 1.
	got, err := StaleWhileRevalidate(ctx, p, "product:p1", time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Title)

	version.Store(2)

	// Second call serves the stale v1 immediately.
	got, err = StaleWhileRevalidate(ctx, p, "product:p1", time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Title)

	// The background refresh converges the entry on v2.
	require.Eventually(t, func() bool {
		var cached ProductSummary
		found, _ := store.Get(ctx, "product:p1", &cached)
		return found && cached.Title == "v2"
	}, time.Second, 10*time.Millisecond)
}

func TestWriteInvalidate_DeletesMatchingPatterns(t *testing.T) {
	store := newTestStore()
	p := NewPolicy(store, newTestPool(t), nil)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "product:p1", "stale", 0))
	require.NoError(t, store.Set(ctx, "feed:discover:a", "stale", 0))
	require.NoError(t, store.Set(ctx, "product:p2", "other", 0))

	result, err := WriteInvalidate(ctx, p,
		[]string{"product:{id}", "feed:*"},
		map[string]string{"id": "p1"},
		func(ctx context.Context) (string, error) { return "written", nil })
	require.NoError(t, err)
	assert.Equal(t, "written", result)

	exists, _ := store.Exists(ctx, "product:p1")
	assert.False(t, exists)
	exists, _ = store.Exists(ctx, "feed:discover:a")
	assert.False(t, exists)
	exists, _ = store.Exists(ctx, "product:p2")
	assert.True(t, exists, "unmatched keys survive")
}

func TestWriteInvalidate_FailedWriteKeepsCache(t *testing.T) {
	store := newTestStore()
	p := NewPolicy(store, newTestPool(t), nil)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "product:p1", "kept", 0))

	_, err := WriteInvalidate(ctx, p,
		[]string{"product:*"}, nil,
		func(ctx context.Context) (string, error) { return "", errors.New("write failed") })
	require.Error(t, err)

	exists, _ := store.Exists(ctx, "product:p1")
	assert.True(t, exists, "invalidation must not run when the write fails")
}

func TestSubstitutePlaceholders(t *testing.T) {
	out := substitutePlaceholders("feed:community:{community}:*", map[string]string{"community": "c9"})
	assert.Equal(t, "feed:community:c9:*", out)

	out = substitutePlaceholders("user:{unknown}", nil)
	assert.Equal(t, "user:{unknown}", out)
}
