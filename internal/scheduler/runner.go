// Package scheduler drives the cache layer's periodic jobs: the
// write-behind flush, the offer expiry sweep, and the daily warming run.
// Jobs execute serially per ticker, recover from panics, and report run
// outcomes to the metrics collector.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/cache"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/config"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/observability"
)

// Runner owns the background job tickers.
type Runner struct {
	buffer  *cache.WriteBehindBuffer
	expiry  *cache.ExpiryScheduler
	warmer  *cache.CacheWarmer
	metrics *observability.Collector
	logger  *zap.Logger

	flushInterval      time.Duration
	sweepInterval      time.Duration
	warmInterval       time.Duration
	orphanCleanupEvery int

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewRunner wires the jobs to their configured intervals.
func NewRunner(
	buffer *cache.WriteBehindBuffer,
	expiry *cache.ExpiryScheduler,
	warmer *cache.CacheWarmer,
	metrics *observability.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		buffer:             buffer,
		expiry:             expiry,
		warmer:             warmer,
		metrics:            metrics,
		logger:             logger,
		flushInterval:      cfg.Buffer.FlushInterval,
		sweepInterval:      cfg.Expiry.SweepInterval,
		warmInterval:       cfg.Warmer.Interval,
		orphanCleanupEvery: cfg.Expiry.OrphanCleanupEvery,
	}
}

// Start launches the tickers. Jobs run until Stop.
func (r *Runner) Start(ctx context.Context) {
	r.once.Do(func() {
		ctx, r.cancel = context.WithCancel(ctx)

		r.wg.Add(3)
		go r.loop(ctx, "buffer-flush", r.flushInterval, r.runFlush)
		go r.sweepLoop(ctx)
		go r.loop(ctx, "cache-warm", r.warmInterval, r.runWarm)

		r.logger.Info("scheduler started",
			zap.Duration("flush_interval", r.flushInterval),
			zap.Duration("sweep_interval", r.sweepInterval),
			zap.Duration("warm_interval", r.warmInterval))
	})
}

// Stop cancels the tickers and waits for in-flight jobs to finish.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("scheduler stopped")
}

// TriggerWarm runs a warming pass outside the schedule, for the ops
// endpoint. The warmer's own single-flight guard handles overlap with a
// scheduled run.
func (r *Runner) TriggerWarm(ctx context.Context) (*cache.WarmResult, error) {
	return r.warmer.WarmAll(ctx)
}

// loop runs fn on every tick, logging and surviving failures.
func (r *Runner) loop(ctx context.Context, job string, interval time.Duration, fn func(ctx context.Context) error) {
	defer r.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runJob(ctx, job, fn)
		}
	}
}

// sweepLoop is the expiry ticker with an orphan-cleanup pass folded in
// every Nth sweep.
func (r *Runner) sweepLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	sweeps := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runJob(ctx, "expiry-sweep", r.runSweep)
			sweeps++
			if sweeps%r.orphanCleanupEvery == 0 {
				r.runJob(ctx, "orphan-cleanup", r.runOrphanCleanup)
			}
		}
	}
}

// runJob wraps one execution with panic recovery, timing, and metrics.
func (r *Runner) runJob(ctx context.Context, job string, fn func(ctx context.Context) error) {
	runID := uuid.New().String()
	start := time.Now()
	status := "ok"

	defer func() {
		if rec := recover(); rec != nil {
			status = "panic"
			r.logger.Error("job panicked",
				zap.String("job", job),
				zap.String("run_id", runID),
				zap.Any("panic", rec))
		}
		r.metrics.RecordJobRun(job, status, time.Since(start).Seconds())
	}()

	if err := fn(ctx); err != nil {
		status = "error"
		r.logger.Warn("job failed",
			zap.String("job", job),
			zap.String("run_id", runID),
			zap.Error(err))
	}
}

func (r *Runner) runFlush(ctx context.Context) error {
	stats, err := r.buffer.Flush(ctx)
	if stats != nil && stats.TotalDelta > 0 {
		r.metrics.FlushedDeltas.Add(float64(stats.TotalDelta))
	}
	return err
}

func (r *Runner) runSweep(ctx context.Context) error {
	stats, err := r.expiry.Sweep(ctx)
	if stats != nil && stats.DatabaseUpdated > 0 {
		r.metrics.ExpiredOffers.Add(float64(stats.DatabaseUpdated))
	}
	return err
}

func (r *Runner) runOrphanCleanup(ctx context.Context) error {
	_, err := r.expiry.CleanupOrphaned(ctx)
	return err
}

func (r *Runner) runWarm(ctx context.Context) error {
	_, err := r.warmer.WarmAll(ctx)
	return err
}
