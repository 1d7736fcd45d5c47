package di

import (
	"time"

	"go.uber.org/zap"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache"
	cachemetrics "github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache/metrics"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache/realtime"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/config"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/concurrency"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/kvstore"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/observability"
	opshttp "github.com/saleemjadallah/Jiran-Backend-sub000/internal/interfaces/http"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/scheduler"
)

// poolDrainTimeout bounds how long shutdown waits for queued worker
// tasks.
const poolDrainTimeout = 10 * time.Second

// Container holds the assembled service graph.
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	Store        *kvstore.RedisStore
	Pool         *concurrency.WorkerPool
	CacheMetrics *cachemetrics.Collector
	Prometheus   *observability.Collector
	Feed         *cache.FeedCache
	Warmer       *cache.CacheWarmer
	Buffer       *cache.WriteBehindBuffer
	Expiry       *cache.ExpiryScheduler
	Policy       *cache.Policy
	Realtime     *realtime.State
	Runner       *scheduler.Runner
	HTTP         *opshttp.Handler
}

func provideContainer(
	cfg *config.Config,
	logger *zap.Logger,
	store *kvstore.RedisStore,
	pool *concurrency.WorkerPool,
	collector *cachemetrics.Collector,
	prom *observability.Collector,
	feed *cache.FeedCache,
	warmer *cache.CacheWarmer,
	buffer *cache.WriteBehindBuffer,
	expiry *cache.ExpiryScheduler,
	policy *cache.Policy,
	rt *realtime.State,
	runner *scheduler.Runner,
	handler *opshttp.Handler,
) *Container {
	pool.Start()
	return &Container{
		Config:       cfg,
		Logger:       logger,
		Store:        store,
		Pool:         pool,
		CacheMetrics: collector,
		Prometheus:   prom,
		Feed:         feed,
		Warmer:       warmer,
		Buffer:       buffer,
		Expiry:       expiry,
		Policy:       policy,
		Realtime:     rt,
		Runner:       runner,
		HTTP:         handler,
	}
}

// Shutdown stops background work and releases connections. Safe to call
// once after the schedulers have been stopped.
func (c *Container) Shutdown() {
	c.Pool.Stop(poolDrainTimeout)
	if err := c.Store.Close(); err != nil {
		c.Logger.Warn("store close failed", zap.Error(err))
	}
	_ = c.Logger.Sync()
}
