// Package di assembles the cache service object graph with Wire. Every
// component is constructed explicitly and injected; nothing in the
// codebase reaches for a package-level instance.
package di

import (
	"context"

	"go.uber.org/zap"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache"
	cachemetrics "github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache/metrics"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache/realtime"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/config"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/concurrency"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/kvstore"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/observability"
	dynamostore "github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/persistence/dynamodb"
	opshttp "github.com/saleemjadallah/Jiran-Backend-sub000/internal/interfaces/http"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/scheduler"
)

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Environment == config.Production {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.Logging.Level); err == nil {
		zapCfg.Level = lvl
	}
	zapCfg.Encoding = cfg.Logging.Format
	return zapCfg.Build()
}

func provideSerializer(cfg *config.Config) *kvstore.Serializer {
	return kvstore.NewSerializer(cfg.Cache.CompressionThreshold)
}

func providePrometheus(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(cfg.Metrics.Namespace)
}

func provideCacheMetrics(cfg *config.Config, prom *observability.Collector) *cachemetrics.Collector {
	return cachemetrics.NewCollector(
		cachemetrics.WithRetention(cfg.Metrics.RetentionWindow),
		cachemetrics.WithPercentileWindow(cfg.Metrics.PercentileWindow),
		cachemetrics.WithExporter(prom),
	)
}

func provideStore(cfg *config.Config, serializer *kvstore.Serializer, collector *cachemetrics.Collector, logger *zap.Logger) *kvstore.RedisStore {
	return kvstore.NewRedisStore(cfg.Redis, serializer, collector, logger)
}

func provideWorkerPool(cfg *config.Config, prom *observability.Collector, logger *zap.Logger) *concurrency.WorkerPool {
	pool := concurrency.NewWorkerPool(cfg.Workers.PoolSize, cfg.Workers.QueueSize, logger)
	pool.OnDrop(func() { prom.WorkerPoolDrops.Inc() })
	return pool
}

func provideDurableStore(cfg *config.Config, logger *zap.Logger) (cache.DurableStore, error) {
	client, err := dynamostore.NewClient(context.Background(), cfg.DynamoDB)
	if err != nil {
		return nil, err
	}
	return dynamostore.NewStore(client, cfg.DynamoDB, logger), nil
}

func provideFeedCache(store *kvstore.RedisStore, pool *concurrency.WorkerPool, cfg *config.Config, logger *zap.Logger) *cache.FeedCache {
	return cache.NewFeedCache(store, pool, cfg.Cache.FeedTTL, logger)
}

func provideWarmer(store *kvstore.RedisStore, feed *cache.FeedCache, loaders cache.WarmerLoaders, cfg *config.Config, logger *zap.Logger) *cache.CacheWarmer {
	return cache.NewCacheWarmer(store, feed, loaders, cfg.Cache.TrendingTTL, cfg.Cache.DefaultTTL, logger)
}

func provideBuffer(store *kvstore.RedisStore, durable cache.DurableStore, logger *zap.Logger) *cache.WriteBehindBuffer {
	return cache.NewWriteBehindBuffer(store, durable, logger)
}

func provideExpiry(store *kvstore.RedisStore, durable cache.DurableStore, logger *zap.Logger) *cache.ExpiryScheduler {
	return cache.NewExpiryScheduler(store, durable, logger)
}

func providePolicy(store *kvstore.RedisStore, pool *concurrency.WorkerPool, logger *zap.Logger) *cache.Policy {
	return cache.NewPolicy(store, pool, logger)
}

func provideRealtime(store *kvstore.RedisStore, cfg *config.Config, logger *zap.Logger) *realtime.State {
	return realtime.NewState(store, cfg.Cache.PresenceTTL, cfg.Cache.TypingTTL, logger)
}

func provideRunner(
	buffer *cache.WriteBehindBuffer,
	expiry *cache.ExpiryScheduler,
	warmer *cache.CacheWarmer,
	prom *observability.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) *scheduler.Runner {
	return scheduler.NewRunner(buffer, expiry, warmer, prom, cfg, logger)
}

func provideHTTPHandler(
	collector *cachemetrics.Collector,
	prom *observability.Collector,
	runner *scheduler.Runner,
	store *kvstore.RedisStore,
	logger *zap.Logger,
) *opshttp.Handler {
	ping := func() error { return store.Ping(context.Background()) }
	return opshttp.NewHandler(collector, prom, runner, ping, logger)
}
