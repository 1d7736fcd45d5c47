package cache

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache/keys"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/kvstore"
)

// FlushStats summarizes one write-behind flush cycle.
type FlushStats struct {
	Synced     int           `json:"synced"`
	TotalDelta int64         `json:"totalDelta"`
	Errors     int           `json:"errors"`
	Duration   time.Duration `json:"duration"`
}

// WriteBehindBuffer absorbs high-frequency view-count increments in the
// store and flushes the accumulated deltas to durable storage in batches.
// Counts are approximate by contract: a crash between increment and flush
// loses at most one interval of deltas, which is acceptable for view
// counters and keeps the hot path at a single store op.
type WriteBehindBuffer struct {
	store   kvstore.Store
	durable DurableStore
	logger  *zap.Logger
}

// NewWriteBehindBuffer builds a buffer flushing into the given store.
func NewWriteBehindBuffer(store kvstore.Store, durable DurableStore, logger *zap.Logger) *WriteBehindBuffer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WriteBehindBuffer{store: store, durable: durable, logger: logger}
}

// Increment records one view for the product and returns the pending
// delta. The durable row is untouched until the next flush.
func (b *WriteBehindBuffer) Increment(ctx context.Context, productID string) (int64, error) {
	return b.store.Increment(ctx, keys.ProductViewBuffer(productID), 1)
}

// GetBuffered returns the product's pending delta, zero when none.
func (b *WriteBehindBuffer) GetBuffered(ctx context.Context, productID string) (int64, error) {
	raw, found, err := b.store.GetRaw(ctx, keys.ProductViewBuffer(productID))
	if err != nil || !found {
		return 0, err
	}
	n, perr := strconv.ParseInt(raw, 10, 64)
	if perr != nil {
		return 0, nil
	}
	return n, nil
}

// Flush drains every pending counter into durable storage. Buffer keys
// are decremented by exactly the delta that was flushed, so increments
// landing mid-flush survive into the next cycle. Per-product durable
// failures leave that product's delta buffered for retry.
func (b *WriteBehindBuffer) Flush(ctx context.Context) (*FlushStats, error) {
	start := time.Now()
	stats := &FlushStats{}

	bufferKeys, err := b.store.Keys(ctx, keys.ProductViewBufferPattern())
	if err != nil {
		return stats, err
	}
	if len(bufferKeys) == 0 {
		stats.Duration = time.Since(start)
		return stats, nil
	}

	raws, err := b.store.MGet(ctx, bufferKeys...)
	if err != nil {
		return stats, err
	}

	deltas := make(map[string]int64, len(bufferKeys))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		productID, ok := keys.ProductIDFromViewBuffer(bufferKeys[i])
		if !ok {
			continue
		}
		n, perr := strconv.ParseInt(*raw, 10, 64)
		if perr != nil || n == 0 {
			if perr != nil {
				b.logger.Warn("discarding malformed view buffer entry",
					zap.String("key", bufferKeys[i]))
				if _, derr := b.store.Delete(ctx, bufferKeys[i]); derr != nil {
					b.logger.Warn("view buffer cleanup failed", zap.Error(derr))
				}
			}
			continue
		}
		deltas[productID] = n
	}
	if len(deltas) == 0 {
		stats.Duration = time.Since(start)
		return stats, nil
	}

	failed, err := b.durable.AddProductViews(ctx, deltas)
	if err != nil {
		// Whole batch failed; everything stays buffered for the next cycle.
		stats.Errors = len(deltas)
		stats.Duration = time.Since(start)
		return stats, err
	}

	for productID, delta := range deltas {
		if ferr := failed[productID]; ferr != nil {
			stats.Errors++
			b.logger.Warn("view count flush failed for product",
				zap.String("product_id", productID),
				zap.Error(ferr))
			continue
		}
		b.clearFlushed(ctx, productID, delta)
		stats.Synced++
		stats.TotalDelta += delta
	}

	stats.Duration = time.Since(start)
	if stats.Synced > 0 || stats.Errors > 0 {
		b.logger.Info("view buffer flushed",
			zap.Int("synced", stats.Synced),
			zap.Int64("total_delta", stats.TotalDelta),
			zap.Int("errors", stats.Errors),
			zap.Duration("duration", stats.Duration))
	}
	return stats, nil
}

// ForceFlush synchronously flushes a single product's pending delta.
func (b *WriteBehindBuffer) ForceFlush(ctx context.Context, productID string) error {
	delta, err := b.GetBuffered(ctx, productID)
	if err != nil {
		return err
	}
	if delta == 0 {
		return nil
	}
	failed, err := b.durable.AddProductViews(ctx, map[string]int64{productID: delta})
	if err != nil {
		return err
	}
	if ferr := failed[productID]; ferr != nil {
		return ferr
	}
	b.clearFlushed(ctx, productID, delta)
	return nil
}

// clearFlushed removes exactly the flushed delta from the buffer key and
// drops the key once it reaches zero.
func (b *WriteBehindBuffer) clearFlushed(ctx context.Context, productID string, delta int64) {
	key := keys.ProductViewBuffer(productID)
	remaining, err := b.store.Increment(ctx, key, -delta)
	if err != nil {
		b.logger.Warn("view buffer decrement failed",
			zap.String("product_id", productID),
			zap.Error(err))
		return
	}
	if remaining <= 0 {
		if _, err := b.store.Delete(ctx, key); err != nil {
			b.logger.Warn("view buffer delete failed",
				zap.String("product_id", productID),
				zap.Error(err))
		}
	}
}
