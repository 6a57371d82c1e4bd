package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aryankumar/shardexec/internal/util"
)

// Task represents a unit of work to be executed by the worker pool
type Task struct {
	// Target identifies the backend this task runs against; used for logging only
	Target string

	// Run is the function executed by a worker
	// Outcomes are reported by the closure itself, the pool only runs it
	Run func()
}

// Pool is a bounded set of long-lived workers shared by every logical
// operation. Submit may be called concurrently from any goroutine.
type Pool struct {
	// workers is the number of concurrent workers
	workers int

	// tasks is the queue feeding the workers
	tasks chan Task

	// mu orders Submit against the close of tasks in Shutdown
	mu sync.RWMutex

	// logger for structured logging
	logger *slog.Logger

	// shutdown indicates if the pool is shutting down
	shutdown atomic.Bool

	// active is the number of tasks currently running
	active atomic.Int32

	// completed is the number of tasks finished since the pool started
	completed atomic.Int64

	wg sync.WaitGroup
}

// NewPool creates a worker pool with the specified number of workers and starts them.
// workers must be > 0, otherwise it defaults to 1
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}

	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		workers: workers,
		tasks:   make(chan Task, workers*4),
		logger:  logger,
	}

	p.logger.Debug("starting workers", "count", workers)
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	return p
}

// Submit queues a task. It blocks while the queue is full, and returns an
// error if the pool is shutting down or ctx is done before the task is queued.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task.Run == nil {
		return fmt.Errorf("task must have a run function")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.shutdown.Load() {
		return fmt.Errorf("cannot submit task for %q: %w", task.Target, util.ErrPoolShutdown)
	}

	select {
	case p.tasks <- task:
		p.logger.Debug("task submitted", "target", task.Target, "queued", len(p.tasks))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task for %q not submitted: %w", task.Target, ctx.Err())
	}
}

// worker is the worker goroutine that processes tasks from the task channel
func (p *Pool) worker(workerID int) {
	defer p.wg.Done()

	p.logger.Debug("worker started", "worker_id", workerID)

	for task := range p.tasks {
		p.active.Add(1)
		startTime := time.Now()

		p.runTask(workerID, task)

		p.active.Add(-1)
		completedCount := p.completed.Add(1)
		p.logger.Debug("task completed",
			"worker_id", workerID,
			"target", task.Target,
			"duration", time.Since(startTime),
			"completed", completedCount)
	}

	p.logger.Debug("worker finished (no more tasks)", "worker_id", workerID)
}

// runTask executes a single task, keeping the worker alive if it panics
func (p *Pool) runTask(workerID int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				"worker_id", workerID,
				"target", task.Target,
				"panic", r)
		}
	}()
	task.Run()
}

// Shutdown gracefully shuts down the pool
// It stops accepting new tasks, lets the workers drain the queue and waits for them
// The context timeout controls how long to wait for tasks to finish
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.shutdown.CompareAndSwap(false, true) {
		return fmt.Errorf("pool already shut down")
	}

	p.logger.Info("shutting down worker pool", "queued", len(p.tasks), "active", p.active.Load())

	p.mu.Lock()
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool shut down successfully", "completed", p.completed.Load())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// IsShutdown returns true if the pool has been shut down
func (p *Pool) IsShutdown() bool {
	return p.shutdown.Load()
}

// ActiveCount returns the number of tasks currently executing
func (p *Pool) ActiveCount() int {
	return int(p.active.Load())
}

// CompletedCount returns the number of tasks executed since the pool started
func (p *Pool) CompletedCount() int64 {
	return p.completed.Load()
}

// QueueLength returns the number of tasks waiting for a worker
func (p *Pool) QueueLength() int {
	return len(p.tasks)
}

// WorkerCount returns the number of workers in the pool
func (p *Pool) WorkerCount() int {
	return p.workers
}
