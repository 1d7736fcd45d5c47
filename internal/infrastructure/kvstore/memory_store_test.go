package kvstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore(nil, nil, nil)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMemoryStore_SetGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, store.Set(ctx, "test:key", payload{Name: "sofa", Count: 3}, 0))

	var got payload
	found, err := store.Get(ctx, "test:key", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sofa", got.Name)
	assert.Equal(t, 3, got.Count)
}

func TestMemoryStore_GetMiss(t *testing.T) {
	store := newTestStore(t)

	var got string
	found, err := store.Get(context.Background(), "test:absent", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "test:short", "v", 30*time.Millisecond))

	exists, err := store.Exists(ctx, "test:short")
	require.NoError(t, err)
	assert.True(t, exists)

	time.Sleep(50 * time.Millisecond)

	exists, err = store.Exists(ctx, "test:short")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStore_TTLSentinels(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "test:forever", "v", 0))

	ttl, err := store.TTL(ctx, "test:forever")
	require.NoError(t, err)
	assert.Equal(t, -1*time.Second, ttl)

	ttl, err = store.TTL(ctx, "test:missing")
	require.NoError(t, err)
	assert.Equal(t, -2*time.Second, ttl)
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_, err := store.Increment(ctx, "test:counter", 1)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	final, err := store.Increment(ctx, "test:counter", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines*perGoroutine), final)
}

func TestMemoryStore_DeletePatternScope(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "feed:discover:a", "1", 0))
	require.NoError(t, store.Set(ctx, "feed:community:b", "2", 0))
	require.NoError(t, store.Set(ctx, "user:1", "3", 0))

	deleted, err := store.DeletePattern(ctx, "feed:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	exists, _ := store.Exists(ctx, "user:1")
	assert.True(t, exists, "keys outside the pattern must survive")
}

func TestMemoryStore_KeysAndMGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "product:views:pending:p1", "5", 0))
	require.NoError(t, store.Set(ctx, "product:views:pending:p2", "7", 0))
	require.NoError(t, store.Set(ctx, "product:p3", "x", 0))

	matched, err := store.Keys(ctx, "product:views:pending:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"product:views:pending:p1", "product:views:pending:p2"}, matched)

	values, err := store.MGet(ctx, "product:views:pending:p1", "product:absent", "product:views:pending:p2")
	require.NoError(t, err)
	require.Len(t, values, 3)
	require.NotNil(t, values[0])
	assert.Equal(t, "5", *values[0])
	assert.Nil(t, values[1])
	require.NotNil(t, values[2])
	assert.Equal(t, "7", *values[2])
}

func TestMemoryStore_SortedSets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ZAdd(ctx, "zs", 30, "c"))
	require.NoError(t, store.ZAdd(ctx, "zs", 10, "a"))
	require.NoError(t, store.ZAdd(ctx, "zs", 20, "b"))

	members, err := store.ZRange(ctx, "zs", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, members)

	inRange, err := store.ZRangeByScoreWithScores(ctx, "zs", 10, 20)
	require.NoError(t, err)
	require.Len(t, inRange, 2)
	assert.Equal(t, "a", inRange[0].Member)
	assert.Equal(t, float64(10), inRange[0].Score)

	score, found, err := store.ZScore(ctx, "zs", "b")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, float64(20), score)

	removed, err := store.ZRem(ctx, "zs", "a", "nope")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	card, err := store.ZCard(ctx, "zs")
	require.NoError(t, err)
	assert.Equal(t, int64(2), card)
}

func TestMemoryStore_Sets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	added, err := store.SAdd(ctx, "viewers", "u1", "u2", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), added, "duplicate adds must not count")

	ok, err := store.SIsMember(ctx, "viewers", "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := store.SMembers(ctx, "viewers")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, members)

	removed, err := store.SRem(ctx, "viewers", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	card, err := store.SCard(ctx, "viewers")
	require.NoError(t, err)
	assert.Equal(t, int64(1), card)
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		str     string
		pattern string
		want    bool
	}{
		{"feed:discover:abc", "feed:*", true},
		{"feed:discover:abc", "*", true},
		{"user:1", "feed:*", false},
		{"typing:conv1:u9", "typing:conv1:*", true},
		{"typing:conv2:u9", "typing:conv1:*", false},
		{"unread:u1:conv:c3", "unread:u1:conv:*", true},
		{"product:views:pending:p1", "product:views:pending:*", true},
		{"exact", "exact", true},
		{"exact-no", "exact", false},
		{"a-middle-z", "a*middle*z", true},
		{"a-z", "a*middle*z", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchPattern(tt.str, tt.pattern),
			"matchPattern(%q, %q)", tt.str, tt.pattern)
	}
}
