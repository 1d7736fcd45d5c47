package cache

import "context"

// Offer lifecycle states as stored durably.
const (
	OfferStatusPending = "pending"
	OfferStatusExpired = "expired"
)

// DurableStore is the persistence port the cache layer flushes into.
// Implementations live under internal/infrastructure/persistence.
//
// Batch methods report partial failure through the returned map, keyed by
// entity ID. A non-nil error means the whole batch failed and nothing
// should be considered applied.
type DurableStore interface {
	// AddProductViews atomically adds each delta to the stored view count
	// of the corresponding product.
	AddProductViews(ctx context.Context, deltas map[string]int64) (failed map[string]error, err error)

	// MarkOffersExpired transitions each offer from pending to expired.
	// An offer that already left the pending state fails individually and
	// is reported in the map.
	MarkOffersExpired(ctx context.Context, offerIDs []string) (failed map[string]error, err error)

	// GetOfferStatuses returns the current status per offer ID. Offers
	// that no longer exist are absent from the result.
	GetOfferStatuses(ctx context.Context, offerIDs []string) (map[string]string, error)
}
