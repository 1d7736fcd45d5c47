//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/config"
)

// SuperSet is the complete provider graph for the cache service.
var SuperSet = wire.NewSet(
	provideLogger,
	provideSerializer,
	providePrometheus,
	provideCacheMetrics,
	provideStore,
	provideWorkerPool,
	provideDurableStore,
	provideFeedCache,
	provideWarmer,
	provideBuffer,
	provideExpiry,
	providePolicy,
	provideRealtime,
	provideRunner,
	provideHTTPHandler,
	provideContainer,
)

// InitializeContainer builds the service graph. Warmer loaders are
// supplied by the caller because they bind to application data sources.
func InitializeContainer(cfg *config.Config, loaders cache.WarmerLoaders) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil
}
