// Command worker runs the marketplace cache service: the Redis-backed
// cache layer, its background flush and expiry jobs, and the ops HTTP
// surface.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/config"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/di"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/observability"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Warmer loaders bind to application data sources; the standalone
	// worker starts with none and serves whatever callers register via
	// the warm endpoint.
	container, err := di.InitializeContainer(cfg, cache.WarmerLoaders{})
	if err != nil {
		log.Fatalf("failed to initialize container: %v", err)
	}
	defer container.Shutdown()

	logger := container.Logger

	var tracer *observability.TracerProvider
	if cfg.Tracing.Enabled {
		tracer, err = observability.InitTracing(cfg.Tracing)
		if err != nil {
			logger.Warn("tracing init failed, continuing without traces", zap.Error(err))
		}
	}

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config/cache.yaml"
	}
	watcher, err := config.NewWatcher(configPath, cfg, logger)
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
	} else {
		watcher.OnChange(func(oldCfg, newCfg *config.Config) {
			container.Feed.SetTTL(newCfg.Cache.FeedTTL)
		})
		watcher.Start()
		defer watcher.Stop()
	}

	container.Runner.Start(ctx)
	defer container.Runner.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      container.HTTP.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("ops server listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", string(cfg.Environment)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server failed", zap.Error(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown failed", zap.Error(err))
	}

	// Drain pending view deltas so a clean shutdown loses nothing.
	if _, err := container.Buffer.Flush(shutdownCtx); err != nil {
		logger.Warn("final buffer flush failed", zap.Error(err))
	}

	if tracer != nil {
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
