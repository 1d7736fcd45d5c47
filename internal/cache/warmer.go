package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache/keys"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/kvstore"
)

// FeedWarmTarget is one feed the warmer keeps hot: a query shape plus the
// loader that can produce its pages.
type FeedWarmTarget struct {
	Query  FeedQuery
	Loader FeedLoader
	Pages  int
}

// WarmerLoaders are the data sources the warmer pulls from. Nil loaders
// are skipped, so deployments can wire only the slices they serve.
type WarmerLoaders struct {
	HotFeeds          []FeedWarmTarget
	TrendingTerms     func(ctx context.Context) ([]string, error)
	PopularCategories func(ctx context.Context) ([]CategorySummary, error)
	ActiveSellers     func(ctx context.Context) ([]SellerProfile, error)
}

// WarmResult summarizes one warming run.
type WarmResult struct {
	RunID       string        `json:"runId"`
	Skipped     bool          `json:"skipped"`
	TasksRun    int           `json:"tasksRun"`
	TasksFailed int           `json:"tasksFailed"`
	KeysWarmed  int           `json:"keysWarmed"`
	Duration    time.Duration `json:"duration"`
}

// CacheWarmer proactively populates high-traffic entries so peak hours
// start from a warm cache. Runs are single-flight: a WarmAll that finds a
// run already in progress returns immediately with Skipped set.
type CacheWarmer struct {
	store   kvstore.Store
	feed    *FeedCache
	loaders WarmerLoaders
	logger  *zap.Logger

	trendingTTL time.Duration
	sellerTTL   time.Duration

	inProgress atomic.Bool
}

// NewCacheWarmer builds a warmer over the given store and feed cache.
func NewCacheWarmer(store kvstore.Store, feed *FeedCache, loaders WarmerLoaders, trendingTTL, sellerTTL time.Duration, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{
		store:       store,
		feed:        feed,
		loaders:     loaders,
		logger:      logger,
		trendingTTL: trendingTTL,
		sellerTTL:   sellerTTL,
	}
}

// InProgress reports whether a warming run is currently active.
func (w *CacheWarmer) InProgress() bool {
	return w.inProgress.Load()
}

// WarmAll runs every configured warming task concurrently. Task failures
// are counted, logged, and never abort sibling tasks.
func (w *CacheWarmer) WarmAll(ctx context.Context) (*WarmResult, error) {
	if !w.inProgress.CompareAndSwap(false, true) {
		w.logger.Info("cache warm skipped, run already in progress")
		return &WarmResult{Skipped: true}, nil
	}
	defer w.inProgress.Store(false)

	result := &WarmResult{RunID: uuid.New().String()}
	start := time.Now()
	var mu sync.Mutex

	record := func(warmed int, err error) {
		mu.Lock()
		defer mu.Unlock()
		result.TasksRun++
		if err != nil {
			result.TasksFailed++
			return
		}
		result.KeysWarmed += warmed
	}

	g, gctx := errgroup.WithContext(ctx)

	for i := range w.loaders.HotFeeds {
		target := w.loaders.HotFeeds[i]
		g.Go(func() error {
			pages := target.Pages
			if pages <= 0 {
				pages = 1
			}
			record(w.feed.WarmCache(gctx, target.Query, pages, target.Loader), nil)
			return nil
		})
	}

	if w.loaders.TrendingTerms != nil {
		g.Go(func() error {
			warmed, err := w.warmValue(gctx, keys.TrendingTerms(), w.trendingTTL, func(ctx context.Context) (any, error) {
				return w.loaders.TrendingTerms(ctx)
			})
			if err != nil {
				w.logger.Warn("trending terms warm failed", zap.String("run_id", result.RunID), zap.Error(err))
			}
			record(warmed, err)
			return nil
		})
	}

	if w.loaders.PopularCategories != nil {
		g.Go(func() error {
			warmed, err := w.warmValue(gctx, keys.PopularCategories(), w.trendingTTL, func(ctx context.Context) (any, error) {
				return w.loaders.PopularCategories(ctx)
			})
			if err != nil {
				w.logger.Warn("popular categories warm failed", zap.String("run_id", result.RunID), zap.Error(err))
			}
			record(warmed, err)
			return nil
		})
	}

	if w.loaders.ActiveSellers != nil {
		g.Go(func() error {
			sellers, err := w.loaders.ActiveSellers(gctx)
			if err != nil {
				w.logger.Warn("active sellers warm failed", zap.String("run_id", result.RunID), zap.Error(err))
				record(0, err)
				return nil
			}
			warmed := 0
			for i := range sellers {
				s := sellers[i]
				n, err := w.warmValue(gctx, keys.User(s.ID), w.sellerTTL, func(context.Context) (any, error) {
					return s, nil
				})
				if err == nil {
					warmed += n
				}
			}
			record(warmed, nil)
			return nil
		})
	}

	_ = g.Wait()
	result.Duration = time.Since(start)

	w.logger.Info("cache warm completed",
		zap.String("run_id", result.RunID),
		zap.Int("tasks_run", result.TasksRun),
		zap.Int("tasks_failed", result.TasksFailed),
		zap.Int("keys_warmed", result.KeysWarmed),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// WarmSpecificKey populates one key if it is not already cached. Returns
// whether a write happened.
func (w *CacheWarmer) WarmSpecificKey(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (any, error)) (bool, error) {
	n, err := w.warmValue(ctx, key, ttl, loader)
	return n > 0, err
}

// WarmBatch populates every entry not already cached and returns the
// number written.
func (w *CacheWarmer) WarmBatch(ctx context.Context, entries map[string]any, ttl time.Duration) int {
	warmed := 0
	for key, value := range entries {
		v := value
		n, err := w.warmValue(ctx, key, ttl, func(context.Context) (any, error) {
			return v, nil
		})
		if err != nil {
			continue
		}
		warmed += n
	}
	return warmed
}

// warmValue is the check-then-populate primitive: existing entries are
// left alone so a warm never clobbers fresher data.
func (w *CacheWarmer) warmValue(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (any, error)) (int, error) {
	exists, err := w.store.Exists(ctx, key)
	if err == nil && exists {
		return 0, nil
	}
	value, err := loader(ctx)
	if err != nil {
		return 0, err
	}
	if value == nil {
		return 0, nil
	}
	if err := w.store.Set(ctx, key, value, ttl); err != nil {
		return 0, err
	}
	return 1, nil
}
