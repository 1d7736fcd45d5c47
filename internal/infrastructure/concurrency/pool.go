// Package concurrency provides the bounded worker pool that background
// cache work runs on. Stale-while-revalidate refreshes and next-page
// prefetches are submitted here instead of spawning a goroutine per
// request: the pool bounds concurrency, captures errors for logging, and
// sheds load by dropping tasks when the queue is full. Everything
// submitted here is best-effort, so dropped tasks are acceptable.
package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of background work.
type Task struct {
	Name    string
	Execute func(ctx context.Context) error
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Submitted int64
	Dropped   int64
	Completed int64
	Failed    int64
}

// WorkerPool executes tasks on a fixed set of workers with a bounded
// queue.
type WorkerPool struct {
	workers   int
	taskQueue chan Task
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	submitted atomic.Int64
	dropped   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	// onDrop is invoked when a task is shed, if set.
	onDrop func()
}

// NewWorkerPool creates a pool with the given worker count and queue size.
func NewWorkerPool(workers, queueSize int, logger *zap.Logger) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		workers:   workers,
		taskQueue: make(chan Task, queueSize),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnDrop registers a callback invoked whenever a task is shed.
func (p *WorkerPool) OnDrop(fn func()) {
	p.onDrop = fn
}

// Start launches the workers. Calling Start more than once is a no-op.
func (p *WorkerPool) Start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
		p.logger.Info("Worker pool started",
			zap.Int("workers", p.workers),
			zap.Int("queue_size", cap(p.taskQueue)),
		)
	})
}

// Submit enqueues a task without blocking. Returns false when the queue is
// full or the pool is stopped; the task is dropped in both cases.
func (p *WorkerPool) Submit(task Task) bool {
	select {
	case <-p.ctx.Done():
		p.dropped.Add(1)
		return false
	default:
	}

	select {
	case p.taskQueue <- task:
		p.submitted.Add(1)
		return true
	default:
		p.dropped.Add(1)
		if p.onDrop != nil {
			p.onDrop()
		}
		p.logger.Debug("Worker queue full, task dropped", zap.String("task", task.Name))
		return false
	}
}

// Stop drains in-flight tasks and shuts the pool down, waiting up to the
// given timeout.
func (p *WorkerPool) Stop(timeout time.Duration) {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("Worker pool stopped")
	case <-time.After(timeout):
		p.logger.Warn("Worker pool stop timed out", zap.Duration("timeout", timeout))
	}
}

// Stats returns a snapshot of the pool counters.
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Submitted: p.submitted.Load(),
		Dropped:   p.dropped.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			// Drain whatever is already queued before exiting.
			for {
				select {
				case task := <-p.taskQueue:
					p.run(task)
				default:
					return
				}
			}
		case task := <-p.taskQueue:
			p.run(task)
		}
	}
}

func (p *WorkerPool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.logger.Error("Background task panicked",
				zap.String("task", task.Name),
				zap.Any("panic", r),
			)
		}
	}()

	if err := task.Execute(p.ctx); err != nil {
		p.failed.Add(1)
		p.logger.Warn("Background task failed",
			zap.String("task", task.Name),
			zap.Error(err),
		)
		return
	}
	p.completed.Add(1)
}
