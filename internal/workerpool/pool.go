// Package workerpool provides the bounded worker pool shared by batch
// identifier generation and bulk digit extraction.
//
// Work is submitted to a fixed set of goroutines reading a job queue. A caller
// that uses Do never depends on the pool for liveness: if the queue is full,
// the pool is closed, the unit panics or it does not finish within the unit
// timeout, the unit is run inline on the caller's goroutine instead.
//
// Key features:
//   - Panic recovery in workers, converted to ErrUnitPanic
//   - Per-unit timeout with inline fallback
//   - Graceful shutdown with drain timeout
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/pidx/config"
	"github.com/xtxerr/pidx/internal/constants"
	pidxerrors "github.com/xtxerr/pidx/internal/errors"
	"github.com/xtxerr/pidx/internal/logging"
)

var log = logging.Component(constants.ComponentWorkerPool)

// Config holds worker pool configuration.
type Config struct {
	// Workers is the number of worker goroutines.
	Workers int

	// QueueSize is the job queue capacity.
	QueueSize int

	// UnitTimeout is the default wait for one unit before it runs inline.
	UnitTimeout time.Duration

	// DrainTimeout is how long Close waits for in-flight units.
	DrainTimeout time.Duration
}

// DefaultConfig returns default worker pool configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers:      config.DefaultWorkers,
		QueueSize:    config.DefaultWorkerQueueSize,
		UnitTimeout:  config.DefaultUnitTimeout,
		DrainTimeout: config.DefaultDrainTimeout,
	}
}

type job struct {
	ctx context.Context
	fn  func(context.Context)
}

// Pool is a fixed-size worker pool.
//
// Pool is safe for concurrent use.
type Pool struct {
	jobs     chan job
	shutdown chan struct{}
	closed   atomic.Bool
	wg       sync.WaitGroup

	workers      int
	unitTimeout  time.Duration
	drainTimeout time.Duration

	activeWorkers atomic.Int32

	submitted atomic.Int64
	completed atomic.Int64
	inline    atomic.Int64
	timeouts  atomic.Int64
	panics    atomic.Int64
	queueFull atomic.Int64
}

// New creates a Pool and starts its workers.
func New(cfg *Config) *Pool {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}
	unitTimeout := cfg.UnitTimeout
	if unitTimeout <= 0 {
		unitTimeout = config.DefaultUnitTimeout
	}

	p := &Pool{
		jobs:         make(chan job, queueSize),
		shutdown:     make(chan struct{}),
		workers:      workers,
		unitTimeout:  unitTimeout,
		drainTimeout: cfg.DrainTimeout,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	log.Debug("worker pool started", "workers", workers, "queue_size", queueSize)
	return p
}

// UnitTimeout returns the configured default per-unit timeout.
func (p *Pool) UnitTimeout() time.Duration {
	return p.unitTimeout
}

// Submit enqueues fn without waiting for it. It returns ErrPoolClosed after
// Close and ErrQueueFull when the queue has no room.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context)) error {
	if p.closed.Load() {
		return pidxerrors.ErrPoolClosed
	}

	select {
	case p.jobs <- job{ctx: ctx, fn: fn}:
		p.submitted.Add(1)
		return nil
	default:
		p.queueFull.Add(1)
		return pidxerrors.ErrQueueFull
	}
}

// Close stops accepting work and waits up to the drain timeout for the
// workers to finish what is queued.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.shutdown)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	if p.drainTimeout <= 0 {
		<-done
		log.Debug("worker pool stopped")
		return
	}

	select {
	case <-done:
		log.Debug("worker pool stopped")
	case <-time.After(p.drainTimeout):
		log.Warn("worker pool drain timeout", "active_workers", p.activeWorkers.Load())
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case j := <-p.jobs:
			p.execute(j)
		case <-p.shutdown:
			// Drain what was queued before shutdown, without blocking.
			for {
				select {
				case j := <-p.jobs:
					p.execute(j)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) execute(j job) {
	p.activeWorkers.Add(1)
	defer func() {
		p.activeWorkers.Add(-1)
		p.completed.Add(1)
	}()

	if j.ctx.Err() != nil {
		return
	}
	j.fn(j.ctx)
}

// =============================================================================
// Submit and await
// =============================================================================

type outcome[T any] struct {
	val T
	err error
}

// Do runs fn on the pool and waits up to timeout for its result. A zero
// timeout uses the pool default. When the pool is nil, closed or full, when fn
// panics on a worker, or when the wait times out, fn is run inline and that
// result is returned. Only context cancellation interrupts the wait.
func Do[T any](ctx context.Context, p *Pool, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if p == nil {
		return runInline(ctx, nil, fn)
	}
	if timeout <= 0 {
		timeout = p.unitTimeout
	}

	results := make(chan outcome[T], 1)
	err := p.Submit(ctx, func(jobCtx context.Context) {
		results <- recoverUnit(p, jobCtx, fn)
	})
	if err != nil {
		if !pidxerrors.IsWorkerFailure(err) {
			var zero T
			return zero, err
		}
		log.Debug("running unit inline", "reason", err)
		return runInline(ctx, p, fn)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		if pidxerrors.Is(res.err, pidxerrors.ErrUnitPanic) {
			log.Warn("unit panicked on worker, retrying inline", "error", res.err)
			return runInline(ctx, p, fn)
		}
		return res.val, res.err
	case <-timer.C:
		p.timeouts.Add(1)
		log.Warn("unit timed out on worker, retrying inline", "timeout", timeout)
		return runInline(ctx, p, fn)
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func runInline[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	if p != nil {
		p.inline.Add(1)
	}
	res := recoverUnit(p, ctx, fn)
	return res.val, res.err
}

func recoverUnit[T any](p *Pool, ctx context.Context, fn func(context.Context) (T, error)) (res outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			if p != nil {
				p.panics.Add(1)
			}
			log.Error("panic in work unit", "panic", r)
			res = outcome[T]{err: fmt.Errorf("%v: %w", r, pidxerrors.ErrUnitPanic)}
		}
	}()

	val, err := fn(ctx)
	return outcome[T]{val: val, err: err}
}

// =============================================================================
// Statistics
// =============================================================================

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Workers   int
	Active    int
	Queued    int
	Submitted int64
	Completed int64
	Inline    int64
	Timeouts  int64
	Panics    int64
	QueueFull int64
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Active:    int(p.activeWorkers.Load()),
		Queued:    len(p.jobs),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Inline:    p.inline.Load(),
		Timeouts:  p.timeouts.Load(),
		Panics:    p.panics.Load(),
		QueueFull: p.queueFull.Load(),
	}
}
