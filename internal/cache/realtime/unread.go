package realtime

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache/keys"
)

// IncrementUnread adds one unread message to both the user's total and
// the per-conversation counter.
func (s *State) IncrementUnread(ctx context.Context, userID, conversationID string) error {
	if _, err := s.store.Increment(ctx, keys.UnreadTotal(userID), 1); err != nil {
		return err
	}
	_, err := s.store.Increment(ctx, keys.UnreadConversation(userID, conversationID), 1)
	return err
}

// DecrementUnread subtracts n from both counters, flooring each at zero.
// Decrementing past zero happens when reads race resets; the floor keeps
// badge counts from going negative.
func (s *State) DecrementUnread(ctx context.Context, userID, conversationID string, n int64) error {
	if n <= 0 {
		return nil
	}
	if err := s.decrementFloored(ctx, keys.UnreadTotal(userID), n); err != nil {
		return err
	}
	return s.decrementFloored(ctx, keys.UnreadConversation(userID, conversationID), n)
}

// UnreadTotal returns the user's total unread count. Store failures and
// missing counters read as zero.
func (s *State) UnreadTotal(ctx context.Context, userID string) int64 {
	return s.readCounter(ctx, keys.UnreadTotal(userID))
}

// UnreadInConversation returns one conversation's unread count.
func (s *State) UnreadInConversation(ctx context.Context, userID, conversationID string) int64 {
	return s.readCounter(ctx, keys.UnreadConversation(userID, conversationID))
}

// UnreadByConversation returns every conversation's unread count for the
// user in one batched read. Conversations with no counter are absent.
func (s *State) UnreadByConversation(ctx context.Context, userID string) (map[string]int64, error) {
	convKeys, err := s.store.Keys(ctx, keys.UnreadConversationPattern(userID))
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(convKeys))
	if len(convKeys) == 0 {
		return counts, nil
	}
	raws, err := s.store.MGet(ctx, convKeys...)
	if err != nil {
		return nil, err
	}
	prefix := keys.UnreadConversation(userID, "")
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		n, perr := strconv.ParseInt(*raw, 10, 64)
		if perr != nil {
			continue
		}
		counts[strings.TrimPrefix(convKeys[i], prefix)] = n
	}
	return counts, nil
}

// ClearConversation marks a conversation read: its counter is deleted and
// its count subtracted from the user's total.
func (s *State) ClearConversation(ctx context.Context, userID, conversationID string) error {
	count := s.readCounter(ctx, keys.UnreadConversation(userID, conversationID))
	if _, err := s.store.Delete(ctx, keys.UnreadConversation(userID, conversationID)); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	return s.decrementFloored(ctx, keys.UnreadTotal(userID), count)
}

// ClearAll wipes every unread counter for the user.
func (s *State) ClearAll(ctx context.Context, userID string) error {
	if _, err := s.store.DeletePattern(ctx, keys.UnreadConversationPattern(userID)); err != nil {
		return err
	}
	_, err := s.store.Delete(ctx, keys.UnreadTotal(userID))
	return err
}

func (s *State) readCounter(ctx context.Context, key string) int64 {
	raw, found, err := s.store.GetRaw(ctx, key)
	if err != nil || !found {
		return 0
	}
	n, perr := strconv.ParseInt(raw, 10, 64)
	if perr != nil {
		return 0
	}
	return n
}

// decrementFloored subtracts n and corrects any overshoot back to zero.
// The correction races concurrent increments by at most one window, which
// is acceptable for badge counts.
func (s *State) decrementFloored(ctx context.Context, key string, n int64) error {
	v, err := s.store.Increment(ctx, key, -n)
	if err != nil {
		return err
	}
	if v < 0 {
		if _, err := s.store.Increment(ctx, key, -v); err != nil {
			s.logger.Warn("unread floor correction failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}
	return nil
}
