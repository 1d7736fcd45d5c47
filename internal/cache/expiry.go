package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache/keys"
	apperrors "github.com/saleemjadallah/Jiran-Backend-sub000/internal/errors"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/kvstore"
)

// markerGrace keeps per-offer markers alive past their expiry time so a
// sweep that runs late still finds them.
const markerGrace = 24 * time.Hour

// SweepStats summarizes one expiry sweep.
type SweepStats struct {
	Processed       int           `json:"processed"`
	DatabaseUpdated int           `json:"databaseUpdated"`
	Errors          int           `json:"errors"`
	Duration        time.Duration `json:"duration"`
}

// ExpiryScheduler tracks offer deadlines in a score-ordered index and
// periodically transitions overdue offers to expired in durable storage.
// Index entries are removed only after the durable update succeeds, so a
// failed sweep retries the same offers next cycle.
type ExpiryScheduler struct {
	store   kvstore.Store
	durable DurableStore
	logger  *zap.Logger
}

// NewExpiryScheduler builds a scheduler over the given store.
func NewExpiryScheduler(store kvstore.Store, durable DurableStore, logger *zap.Logger) *ExpiryScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpiryScheduler{store: store, durable: durable, logger: logger}
}

// Track registers an offer's deadline. Re-tracking an offer overwrites
// its previous deadline.
func (s *ExpiryScheduler) Track(ctx context.Context, offerID string, expiresAt time.Time) error {
	if err := s.store.ZAdd(ctx, keys.OfferExpiryIndex(), float64(expiresAt.Unix()), offerID); err != nil {
		return err
	}
	ttl := time.Until(expiresAt) + markerGrace
	if ttl <= 0 {
		ttl = markerGrace
	}
	return s.store.Set(ctx, keys.OfferExpiryMarker(offerID), expiresAt.Unix(), ttl)
}

// GetExpiringSoon returns offers whose deadline falls within the window,
// soonest first.
func (s *ExpiryScheduler) GetExpiringSoon(ctx context.Context, within time.Duration) ([]ExpiringOffer, error) {
	now := time.Now()
	members, err := s.store.ZRangeByScoreWithScores(ctx, keys.OfferExpiryIndex(),
		float64(now.Unix()), float64(now.Add(within).Unix()))
	if err != nil {
		return nil, err
	}
	offers := make([]ExpiringOffer, 0, len(members))
	for _, m := range members {
		offers = append(offers, ExpiringOffer{
			ID:        m.Member,
			ExpiresAt: time.Unix(int64(m.Score), 0),
		})
	}
	return offers, nil
}

// Sweep transitions every overdue offer to expired. Offers whose durable
// update fails individually stay in the index for the next sweep.
func (s *ExpiryScheduler) Sweep(ctx context.Context) (*SweepStats, error) {
	start := time.Now()
	stats := &SweepStats{}

	due, err := s.store.ZRangeByScoreWithScores(ctx, keys.OfferExpiryIndex(), 0, float64(start.Unix()))
	if err != nil {
		return stats, err
	}
	if len(due) == 0 {
		stats.Duration = time.Since(start)
		return stats, nil
	}
	stats.Processed = len(due)

	ids := make([]string, len(due))
	for i, m := range due {
		ids[i] = m.Member
	}

	failed, err := s.durable.MarkOffersExpired(ctx, ids)
	if err != nil {
		// Batch failed outright; every offer retries next sweep.
		stats.Errors = len(ids)
		stats.Duration = time.Since(start)
		return stats, err
	}

	succeeded := make([]string, 0, len(ids))
	for _, id := range ids {
		if ferr := failed[id]; ferr != nil {
			stats.Errors++
			s.logger.Warn("offer expiry update failed",
				zap.String("offer_id", id),
				zap.Error(ferr))
			continue
		}
		succeeded = append(succeeded, id)
	}

	if len(succeeded) > 0 {
		if _, err := s.store.ZRem(ctx, keys.OfferExpiryIndex(), succeeded...); err != nil {
			s.logger.Warn("expiry index cleanup failed", zap.Error(err))
		}
		markers := make([]string, len(succeeded))
		for i, id := range succeeded {
			markers[i] = keys.OfferExpiryMarker(id)
		}
		if _, err := s.store.Delete(ctx, markers...); err != nil {
			s.logger.Warn("expiry marker cleanup failed", zap.Error(err))
		}
	}

	stats.DatabaseUpdated = len(succeeded)
	stats.Duration = time.Since(start)
	s.logger.Info("expiry sweep completed",
		zap.Int("processed", stats.Processed),
		zap.Int("updated", stats.DatabaseUpdated),
		zap.Int("errors", stats.Errors),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// Extend pushes a tracked offer's deadline out by the given duration,
// measured from its current deadline. Untracked offers return not-found.
func (s *ExpiryScheduler) Extend(ctx context.Context, offerID string, by time.Duration) error {
	score, found, err := s.store.ZScore(ctx, keys.OfferExpiryIndex(), offerID)
	if err != nil {
		return err
	}
	if !found {
		return apperrors.NewNotFound("expiry.extend", "offer not tracked for expiry: "+offerID)
	}
	newDeadline := time.Unix(int64(score), 0).Add(by)
	return s.Track(ctx, offerID, newDeadline)
}

// Remove untracks an offer, typically after it is accepted or withdrawn.
func (s *ExpiryScheduler) Remove(ctx context.Context, offerID string) error {
	if _, err := s.store.ZRem(ctx, keys.OfferExpiryIndex(), offerID); err != nil {
		return err
	}
	_, err := s.store.Delete(ctx, keys.OfferExpiryMarker(offerID))
	return err
}

// CleanupOrphaned drops index entries whose offers are no longer pending
// durably, typically because they were accepted or deleted without a
// Remove call. Returns the number of entries dropped.
func (s *ExpiryScheduler) CleanupOrphaned(ctx context.Context) (int, error) {
	ids, err := s.store.ZRange(ctx, keys.OfferExpiryIndex(), 0, -1)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	statuses, err := s.durable.GetOfferStatuses(ctx, ids)
	if err != nil {
		return 0, err
	}

	orphans := make([]string, 0)
	for _, id := range ids {
		if statuses[id] != OfferStatusPending {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	if _, err := s.store.ZRem(ctx, keys.OfferExpiryIndex(), orphans...); err != nil {
		return 0, err
	}
	markers := make([]string, len(orphans))
	for i, id := range orphans {
		markers[i] = keys.OfferExpiryMarker(id)
	}
	if _, err := s.store.Delete(ctx, markers...); err != nil {
		s.logger.Warn("orphan marker cleanup failed", zap.Error(err))
	}

	s.logger.Info("orphaned expiry entries removed", zap.Int("count", len(orphans)))
	return len(orphans), nil
}
