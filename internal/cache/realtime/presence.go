// Package realtime tracks ephemeral user-facing state: presence, stream
// viewer rosters, typing indicators, and unread counters. All state lives
// entirely in the store with aggressive TTLs; nothing here is durable and
// nothing survives a store flush, which is the point.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache/keys"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/kvstore"
)

// Presence statuses. Absence of a record always reads as offline.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// State exposes the realtime trackers over one store.
type State struct {
	store       kvstore.Store
	logger      *zap.Logger
	presenceTTL time.Duration
	typingTTL   time.Duration
}

// NewState builds the realtime state layer. PresenceTTL bounds how long a
// user stays online without a heartbeat; typingTTL bounds how long a
// typing indicator survives without a keystroke.
func NewState(store kvstore.Store, presenceTTL, typingTTL time.Duration, logger *zap.Logger) *State {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &State{
		store:       store,
		logger:      logger,
		presenceTTL: presenceTTL,
		typingTTL:   typingTTL,
	}
}

// presencePayload is the stored presence record.
type presencePayload struct {
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

// SetPresence records the user's status and restarts the presence TTL.
// Clients call this as a heartbeat; a user whose heartbeats stop ages out
// to offline with no explicit cleanup.
func (s *State) SetPresence(ctx context.Context, userID, status string) error {
	return s.store.Set(ctx, keys.Presence(userID), presencePayload{
		Status:   status,
		LastSeen: time.Now().UTC(),
	}, s.presenceTTL)
}

// SetOnline is the common heartbeat shorthand.
func (s *State) SetOnline(ctx context.Context, userID string) error {
	return s.SetPresence(ctx, userID, StatusOnline)
}

// SetOffline removes the user's presence record immediately.
func (s *State) SetOffline(ctx context.Context, userID string) error {
	_, err := s.store.Delete(ctx, keys.Presence(userID))
	return err
}

// GetPresence returns the user's current status. A missing record or a
// store failure reads as offline, never as an error.
func (s *State) GetPresence(ctx context.Context, userID string) string {
	var p presencePayload
	found, err := s.store.Get(ctx, keys.Presence(userID), &p)
	if err != nil || !found || p.Status == "" {
		return StatusOffline
	}
	return p.Status
}

// IsOnline reports whether the user has a live presence record. Store
// failures read as offline.
func (s *State) IsOnline(ctx context.Context, userID string) bool {
	return s.GetPresence(ctx, userID) != StatusOffline
}

// GetPresenceBatch returns a status per requested user in one batched
// read. Users without a record map to offline.
func (s *State) GetPresenceBatch(ctx context.Context, userIDs []string) (map[string]string, error) {
	statuses := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return statuses, nil
	}
	presenceKeys := make([]string, len(userIDs))
	for i, id := range userIDs {
		presenceKeys[i] = keys.Presence(id)
	}
	raws, err := s.store.MGet(ctx, presenceKeys...)
	if err != nil {
		return nil, err
	}
	for i, raw := range raws {
		statuses[userIDs[i]] = StatusOffline
		if raw == nil {
			continue
		}
		var p presencePayload
		if err := json.Unmarshal([]byte(*raw), &p); err != nil || p.Status == "" {
			continue
		}
		statuses[userIDs[i]] = p.Status
	}
	return statuses, nil
}

// GetOnlineUsers returns the subset of userIDs currently online, in one
// batched read.
func (s *State) GetOnlineUsers(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	presenceKeys := make([]string, len(userIDs))
	for i, id := range userIDs {
		presenceKeys[i] = keys.Presence(id)
	}
	raws, err := s.store.MGet(ctx, presenceKeys...)
	if err != nil {
		return nil, err
	}
	online := make([]string, 0, len(userIDs))
	for i, raw := range raws {
		if raw != nil {
			online = append(online, userIDs[i])
		}
	}
	return online, nil
}
