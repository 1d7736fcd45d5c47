package realtime

import (
	"context"
	"strings"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache/keys"
)

// StartTyping raises the user's typing indicator in a conversation. The
// indicator carries a short TTL and clients re-raise it on every
// keystroke, so a stopped typist disappears without an explicit stop.
func (s *State) StartTyping(ctx context.Context, conversationID, userID string) error {
	return s.store.Set(ctx, keys.Typing(conversationID, userID), "1", s.typingTTL)
}

// StopTyping clears the indicator immediately, typically on send.
func (s *State) StopTyping(ctx context.Context, conversationID, userID string) error {
	_, err := s.store.Delete(ctx, keys.Typing(conversationID, userID))
	return err
}

// IsTyping reports whether the user's indicator is currently raised.
// Store failures read as not typing.
func (s *State) IsTyping(ctx context.Context, conversationID, userID string) bool {
	ok, err := s.store.Exists(ctx, keys.Typing(conversationID, userID))
	return err == nil && ok
}

// GetTyping returns the users currently typing in a conversation.
func (s *State) GetTyping(ctx context.Context, conversationID string) ([]string, error) {
	typingKeys, err := s.store.Keys(ctx, keys.TypingPattern(conversationID))
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(typingKeys))
	prefix := keys.TypingPattern(conversationID)
	prefix = strings.TrimSuffix(prefix, "*")
	for _, k := range typingKeys {
		if strings.HasPrefix(k, prefix) {
			users = append(users, strings.TrimPrefix(k, prefix))
		}
	}
	return users, nil
}
