package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/rentora-hq/extraction-gateway/internal/logger"
)

// Package dispatch runs extraction processing decoupled from the request that
// created the record. Delivery is at-least-once; handlers must be idempotent.

// Handler processes one queued record id.
type Handler func(ctx context.Context, id string) error

// Dispatcher schedules a record id for background processing.
type Dispatcher interface {
	Enqueue(id string) error
}

// Options controls queue capacity and retry behavior.
type Options struct {
	QueueSize int
	Workers   int
	// Attempts bounds retries per job; BaseDelay doubles on every attempt
	// (30s base gives 30/60/120).
	Attempts  int
	BaseDelay time.Duration
}

// Queue is an in-process Dispatcher draining jobs through a worker pool.
type Queue struct {
	jobs      chan string
	workers   int
	attempts  uint
	baseDelay time.Duration
	handler   Handler
	log       logger.Logger

	mu     sync.Mutex
	closed bool
}

// NewQueue builds a queue with the given handler.
func NewQueue(opts Options, handler Handler, log logger.Logger) (*Queue, error) {
	if handler == nil {
		return nil, fmt.Errorf("dispatch handler must not be nil")
	}
	if opts.QueueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive")
	}
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive")
	}
	if opts.Attempts <= 0 {
		return nil, fmt.Errorf("attempt count must be positive")
	}
	if opts.BaseDelay <= 0 {
		return nil, fmt.Errorf("base delay must be positive")
	}
	if log == nil {
		log = logger.NopLogger{}
	}

	return &Queue{
		jobs:      make(chan string, opts.QueueSize),
		workers:   opts.Workers,
		attempts:  uint(opts.Attempts),
		baseDelay: opts.BaseDelay,
		handler:   handler,
		log:       log,
	}, nil
}

// Enqueue schedules a record id without blocking. A full queue is reported to
// the caller; the record stays pending and observable in the store. Requests
// arriving after Close (in-flight handlers during shutdown) are refused, not
// panicked on.
func (q *Queue) Enqueue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("dispatch queue is closed, dropping %s", id)
	}
	select {
	case q.jobs <- id:
		return nil
	default:
		return fmt.Errorf("dispatch queue is full, dropping %s", id)
	}
}

// Run starts the worker pool and blocks until the context is cancelled and
// all in-flight jobs have finished.
func (q *Queue) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}
	wg.Wait()
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-q.jobs:
			if !ok {
				return
			}
			q.process(ctx, id)
		}
	}
}

// process runs one job through the bounded retry policy.
func (q *Queue) process(ctx context.Context, id string) {
	err := retry.Do(
		func() error { return q.handler(ctx, id) },
		retry.Context(ctx),
		retry.Attempts(q.attempts),
		retry.Delay(q.baseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		q.log.ErrorObj("dispatch job exhausted retries", "dispatch_error", map[string]any{
			"extraction_id": id,
			"error":         err.Error(),
		})
		return
	}
	q.log.DebugObj("dispatch job completed", "dispatch_result", map[string]any{
		"extraction_id": id,
	})
}

// Close stops accepting new jobs. Pending jobs still drain while a Run context
// remains active.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.jobs)
}
