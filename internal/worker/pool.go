// Package worker runs webhook handlers in the background.
//
// Submit never waits for a free slot: every job gets its own goroutine, which
// then queues on a weighted semaphore. The request path therefore only pays for
// a goroutine start, while the number of handlers executing at once stays
// bounded. Each waiting goroutine holds its decoded payload, so the number of
// outstanding jobs (running plus waiting) is capped as well; past the cap
// Submit fails with ErrSaturated instead of queueing. Errors and panics are
// contained per job and reported through logging, metrics and the activity hub.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mattjoyce/hookgate/internal/events"
	"github.com/mattjoyce/hookgate/internal/metrics"
)

const (
	// DefaultSize is the number of concurrently executing handlers when none is configured.
	DefaultSize = 16
	// DefaultMaxPending is the outstanding job cap when none is configured.
	DefaultMaxPending = 1024
)

var (
	// ErrClosed is returned by Submit after Shutdown has been called.
	ErrClosed = errors.New("worker pool is shut down")
	// ErrSaturated is returned by Submit when the outstanding job cap is reached.
	ErrSaturated = errors.New("worker pool saturated")
)

// Job is one scheduled handler invocation.
type Job struct {
	ID       string
	Event    string
	Delivery string
	Run      func(ctx context.Context) error
}

// Pool executes jobs with bounded concurrency.
type Pool struct {
	sem        *semaphore.Weighted
	maxPending int64
	pending    atomic.Int64

	logger  *slog.Logger
	metrics *metrics.Metrics
	hub     *events.Hub

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

// WithMaxPending caps the jobs that may be running or waiting for a slot.
// n <= 0 keeps DefaultMaxPending.
func WithMaxPending(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxPending = int64(n)
		}
	}
}

// New creates a pool allowing size handlers to execute at once.
// metrics and hub may be nil.
func New(size int, logger *slog.Logger, m *metrics.Metrics, hub *events.Hub, opts ...Option) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	p := &Pool{
		sem:        semaphore.NewWeighted(int64(size)),
		maxPending: DefaultMaxPending,
		logger:     logger,
		metrics:    m,
		hub:        hub,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxPending < int64(size) {
		p.maxPending = int64(size)
	}
	return p
}

// Submit schedules job and returns immediately. ctx is handed to the job as
// is; callers that want the job to outlive a request should detach it first.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if p.pending.Add(1) > p.maxPending {
		p.pending.Add(-1)
		return ErrSaturated
	}

	p.wg.Add(1)
	go p.run(ctx, job)

	p.hub.HandlerScheduled(events.Invocation{
		ID:       job.ID,
		Event:    job.Event,
		Delivery: job.Delivery,
	})
	return nil
}

// Shutdown stops accepting jobs and waits for running ones until ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for handlers: %w", ctx.Err())
	}
}

// Pending reports the jobs accepted but not yet finished.
func (p *Pool) Pending() int {
	return int(p.pending.Load())
}

func (p *Pool) run(ctx context.Context, job Job) {
	defer p.wg.Done()
	defer p.pending.Add(-1)

	// Acquire only fails on context cancellation; a handler waiting for a slot
	// must not be dropped because the originating request went away.
	_ = p.sem.Acquire(context.Background(), 1)
	defer p.sem.Release(1)

	logger := p.logger.With("invocation_id", job.ID, "event", job.Event)
	if job.Delivery != "" {
		logger = logger.With("delivery", job.Delivery)
	}

	p.metrics.HandlerStarted()
	start := time.Now()
	err := p.execute(ctx, job)
	elapsed := time.Since(start)

	info := events.Invocation{
		ID:         job.ID,
		Event:      job.Event,
		Delivery:   job.Delivery,
		DurationMS: elapsed.Milliseconds(),
	}

	var panicErr *PanicError
	switch {
	case err == nil:
		p.metrics.HandlerFinished(job.Event, "ok", elapsed)
		p.hub.HandlerFinished(info)
		logger.Debug("handler completed", "duration_ms", elapsed.Milliseconds())
	case errors.As(err, &panicErr):
		p.metrics.HandlerFinished(job.Event, "panic", elapsed)
		info.Error = "panic"
		p.hub.HandlerFinished(info)
		logger.Error("handler panicked", "panic", fmt.Sprint(panicErr.Value), "stack", string(panicErr.Stack))
	default:
		p.metrics.HandlerFinished(job.Event, "error", elapsed)
		info.Error = err.Error()
		if info.Error == "" {
			info.Error = "error"
		}
		p.hub.HandlerFinished(info)
		logger.Error("handler failed", "error", err, "duration_ms", elapsed.Milliseconds())
	}
}

// PanicError carries a value recovered from a handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

func (p *Pool) execute(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return job.Run(ctx)
}
