package realtime

import (
	"context"
	"time"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache/keys"
)

// AddViewer puts a user in a stream's viewer roster, scored by join time,
// and returns the viewer count after the add. Re-adding an existing
// viewer keeps the original join time, so reconnects never inflate the
// count or reorder the roster.
func (s *State) AddViewer(ctx context.Context, streamID, userID string) (int64, error) {
	key := keys.StreamViewers(streamID)
	_, present, err := s.store.ZScore(ctx, key, userID)
	if err != nil {
		return 0, err
	}
	if !present {
		if err := s.store.ZAdd(ctx, key, float64(time.Now().Unix()), userID); err != nil {
			return 0, err
		}
	}
	return s.store.ZCard(ctx, key)
}

// RemoveViewer drops a user from the roster.
func (s *State) RemoveViewer(ctx context.Context, streamID, userID string) error {
	_, err := s.store.ZRem(ctx, keys.StreamViewers(streamID), userID)
	return err
}

// ViewerCount returns the roster size. Store failures read as zero.
func (s *State) ViewerCount(ctx context.Context, streamID string) int64 {
	n, err := s.store.ZCard(ctx, keys.StreamViewers(streamID))
	if err != nil {
		return 0
	}
	return n
}

// Viewers lists the roster in join order.
func (s *State) Viewers(ctx context.Context, streamID string) ([]string, error) {
	return s.store.ZRange(ctx, keys.StreamViewers(streamID), 0, -1)
}

// IsViewing reports roster membership.
func (s *State) IsViewing(ctx context.Context, streamID, userID string) bool {
	_, present, err := s.store.ZScore(ctx, keys.StreamViewers(streamID), userID)
	return err == nil && present
}

// EndStream tears down the roster when a stream closes.
func (s *State) EndStream(ctx context.Context, streamID string) error {
	_, err := s.store.Delete(ctx, keys.StreamViewers(streamID))
	return err
}
