package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/kvstore"
)

func newTestState(presenceTTL, typingTTL time.Duration) *State {
	return NewState(kvstore.NewMemoryStore(nil, nil, nil), presenceTTL, typingTTL, nil)
}

func TestPresence_OnlineUntilTTL(t *testing.T) {
	state := newTestState(40*time.Millisecond, time.Second)
	ctx := context.Background()

	require.NoError(t, state.SetOnline(ctx, "u1"))
	assert.True(t, state.IsOnline(ctx, "u1"))

	// No heartbeat: the user ages out to offline.
	time.Sleep(60 * time.Millisecond)
	assert.False(t, state.IsOnline(ctx, "u1"))
}

func TestPresence_HeartbeatExtends(t *testing.T) {
	state := newTestState(50*time.Millisecond, time.Second)
	ctx := context.Background()

	require.NoError(t, state.SetOnline(ctx, "u1"))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, state.SetOnline(ctx, "u1"))
	time.Sleep(30 * time.Millisecond)

	assert.True(t, state.IsOnline(ctx, "u1"), "heartbeat restarts the TTL")
}

func TestPresence_SetOffline(t *testing.T) {
	state := newTestState(time.Minute, time.Second)
	ctx := context.Background()

	require.NoError(t, state.SetOnline(ctx, "u1"))
	require.NoError(t, state.SetOffline(ctx, "u1"))
	assert.False(t, state.IsOnline(ctx, "u1"))
}

func TestPresence_GetOnlineUsersBatch(t *testing.T) {
	state := newTestState(time.Minute, time.Second)
	ctx := context.Background()

	require.NoError(t, state.SetOnline(ctx, "u1"))
	require.NoError(t, state.SetOnline(ctx, "u3"))

	online, err := state.GetOnlineUsers(ctx, []string{"u1", "u2", "u3", "u4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, online)

	online, err = state.GetOnlineUsers(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestPresence_StatusRoundTrip(t *testing.T) {
	state := newTestState(time.Minute, time.Second)
	ctx := context.Background()

	assert.Equal(t, StatusOffline, state.GetPresence(ctx, "u1"), "absence reads as offline")

	require.NoError(t, state.SetPresence(ctx, "u1", StatusAway))
	assert.Equal(t, StatusAway, state.GetPresence(ctx, "u1"))
	assert.True(t, state.IsOnline(ctx, "u1"), "away still counts as present")

	require.NoError(t, state.SetOnline(ctx, "u1"))
	assert.Equal(t, StatusOnline, state.GetPresence(ctx, "u1"))
}

func TestPresence_GetPresenceBatch(t *testing.T) {
	state := newTestState(time.Minute, time.Second)
	ctx := context.Background()

	require.NoError(t, state.SetOnline(ctx, "u1"))
	require.NoError(t, state.SetPresence(ctx, "u2", StatusAway))

	statuses, err := state.GetPresenceBatch(ctx, []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"u1": StatusOnline,
		"u2": StatusAway,
		"u3": StatusOffline,
	}, statuses)

	statuses, err = state.GetPresenceBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestTyping_IndicatorExpires(t *testing.T) {
	state := newTestState(time.Minute, 40*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, state.StartTyping(ctx, "conv1", "u1"))
	require.NoError(t, state.StartTyping(ctx, "conv1", "u2"))
	require.NoError(t, state.StartTyping(ctx, "conv2", "u3"))

	typing, err := state.GetTyping(ctx, "conv1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, typing)

	// Keystrokes stop: the indicators clear themselves.
	time.Sleep(60 * time.Millisecond)
	typing, err = state.GetTyping(ctx, "conv1")
	require.NoError(t, err)
	assert.Empty(t, typing)
}

func TestTyping_StopClearsImmediately(t *testing.T) {
	state := newTestState(time.Minute, time.Minute)
	ctx := context.Background()

	require.NoError(t, state.StartTyping(ctx, "conv1", "u1"))
	assert.True(t, state.IsTyping(ctx, "conv1", "u1"))

	require.NoError(t, state.StopTyping(ctx, "conv1", "u1"))
	assert.False(t, state.IsTyping(ctx, "conv1", "u1"))

	typing, err := state.GetTyping(ctx, "conv1")
	require.NoError(t, err)
	assert.Empty(t, typing)
}

func TestViewers_RosterLifecycle(t *testing.T) {
	state := newTestState(time.Minute, time.Second)
	ctx := context.Background()

	count, err := state.AddViewer(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = state.AddViewer(ctx, "s1", "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = state.AddViewer(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "reconnects must not inflate the count")

	assert.Equal(t, int64(2), state.ViewerCount(ctx, "s1"))
	assert.True(t, state.IsViewing(ctx, "s1", "u1"))

	viewers, err := state.Viewers(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, viewers)

	require.NoError(t, state.RemoveViewer(ctx, "s1", "u1"))
	assert.Equal(t, int64(1), state.ViewerCount(ctx, "s1"))

	require.NoError(t, state.EndStream(ctx, "s1"))
	assert.Equal(t, int64(0), state.ViewerCount(ctx, "s1"))
}

func TestUnread_IncrementAndRead(t *testing.T) {
	state := newTestState(time.Minute, time.Second)
	ctx := context.Background()

	require.NoError(t, state.IncrementUnread(ctx, "u1", "c1"))
	require.NoError(t, state.IncrementUnread(ctx, "u1", "c1"))
	require.NoError(t, state.IncrementUnread(ctx, "u1", "c2"))

	assert.Equal(t, int64(3), state.UnreadTotal(ctx, "u1"))
	assert.Equal(t, int64(2), state.UnreadInConversation(ctx, "u1", "c1"))
	assert.Equal(t, int64(1), state.UnreadInConversation(ctx, "u1", "c2"))
}

func TestUnread_DecrementFloorsAtZero(t *testing.T) {
	state := newTestState(time.Minute, time.Second)
	ctx := context.Background()

	require.NoError(t, state.IncrementUnread(ctx, "u1", "c1"))
	require.NoError(t, state.DecrementUnread(ctx, "u1", "c1", 5))

	assert.Equal(t, int64(0), state.UnreadTotal(ctx, "u1"))
	assert.Equal(t, int64(0), state.UnreadInConversation(ctx, "u1", "c1"))
}

func TestUnread_ByConversation(t *testing.T) {
	state := newTestState(time.Minute, time.Second)
	ctx := context.Background()

	require.NoError(t, state.IncrementUnread(ctx, "u1", "c1"))
	require.NoError(t, state.IncrementUnread(ctx, "u1", "c1"))
	require.NoError(t, state.IncrementUnread(ctx, "u1", "c2"))
	require.NoError(t, state.IncrementUnread(ctx, "u2", "c9"))

	counts, err := state.UnreadByConversation(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"c1": 2, "c2": 1}, counts)

	counts, err = state.UnreadByConversation(ctx, "u3")
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestUnread_ClearConversationAdjustsTotal(t *testing.T) {
	state := newTestState(time.Minute, time.Second)
	ctx := context.Background()

	require.NoError(t, state.IncrementUnread(ctx, "u1", "c1"))
	require.NoError(t, state.IncrementUnread(ctx, "u1", "c1"))
	require.NoError(t, state.IncrementUnread(ctx, "u1", "c2"))

	require.NoError(t, state.ClearConversation(ctx, "u1", "c1"))

	assert.Equal(t, int64(1), state.UnreadTotal(ctx, "u1"))
	assert.Equal(t, int64(0), state.UnreadInConversation(ctx, "u1", "c1"))
	assert.Equal(t, int64(1), state.UnreadInConversation(ctx, "u1", "c2"))
}

func TestUnread_ClearAll(t *testing.T) {
	state := newTestState(time.Minute, time.Second)
	ctx := context.Background()

	require.NoError(t, state.IncrementUnread(ctx, "u1", "c1"))
	require.NoError(t, state.IncrementUnread(ctx, "u1", "c2"))
	require.NoError(t, state.ClearAll(ctx, "u1"))

	assert.Equal(t, int64(0), state.UnreadTotal(ctx, "u1"))
	assert.Equal(t, int64(0), state.UnreadInConversation(ctx, "u1", "c1"))
}
