// Package queue provides an in-process work queue with a fixed worker pool.
// Items are handed to a handler at least once; a failing item is scheduled
// for another attempt with exponential backoff until MaxAttempts is reached.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const (
	defaultWorkers     = 3
	defaultMaxAttempts = 3
	defaultRetryDelay  = 5 * time.Second
)

// ErrClosed is returned by Enqueue after Close has been called.
var ErrClosed = errors.New("queue closed")

// Handler processes one item. A returned error (or a panic) schedules a retry.
type Handler[T any] func(ctx context.Context, item T) error

// Config controls a Queue.
type Config struct {
	// Workers is the number of concurrent handlers. Defaults to 3.
	Workers int
	// MaxAttempts bounds how often an item is handled. Defaults to 3.
	MaxAttempts int
	// RetryDelay is the backoff before the first retry; it doubles per attempt.
	// Zero retries immediately.
	RetryDelay time.Duration
	Logger     *slog.Logger
	// OnDiscard is called when an item exhausted its attempts.
	OnDiscard func(attempts int, err error)
}

type entry[T any] struct {
	item    T
	attempt int
}

// Queue is an unbounded in-memory work queue.
type Queue[T any] struct {
	handler Handler[T]
	cfg     Config
	logger  *slog.Logger
	cron    gocron.Scheduler

	mu          sync.Mutex
	cond        *sync.Cond
	pending     []entry[T]
	outstanding int
	started     bool
	closed      bool
	stopping    bool
	drained     chan struct{}

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a queue that hands items to handler. Call Start to begin
// processing; items enqueued before Start wait until then.
func New[T any](handler Handler[T], cfg Config) (*Queue[T], error) {
	if handler == nil {
		return nil, errors.New("queue: nil handler")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating retry scheduler: %w", err)
	}

	q := &Queue[T]{
		handler: handler,
		cfg:     cfg,
		logger:  logger,
		cron:    cron,
		drained: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q, nil
}

// Start launches the worker pool. Handlers receive a context that carries the
// values of ctx but is only cancelled when Close gives up waiting.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.runCtx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	q.cron.Start()
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
}

// Enqueue adds item to the queue. It never blocks on processing.
func (q *Queue[T]) Enqueue(_ context.Context, item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.pending = append(q.pending, entry[T]{item: item})
	q.outstanding++
	q.cond.Signal()
	return nil
}

// Outstanding returns the number of items queued, running or awaiting retry.
func (q *Queue[T]) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding
}

// Close stops accepting items and waits until every outstanding item,
// including scheduled retries, has finished or ctx is done.
func (q *Queue[T]) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	if q.outstanding == 0 {
		close(q.drained)
	}
	started := q.started
	q.mu.Unlock()

	var waitErr error
	if started {
		select {
		case <-q.drained:
		case <-ctx.Done():
			waitErr = fmt.Errorf("queue: %d item(s) abandoned: %w", q.Outstanding(), ctx.Err())
		}
	}

	q.mu.Lock()
	q.stopping = true
	q.cond.Broadcast()
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()

	if err := q.cron.Shutdown(); err != nil && waitErr == nil {
		waitErr = fmt.Errorf("stopping retry scheduler: %w", err)
	}
	return waitErr
}

func (q *Queue[T]) work() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.stopping {
			q.cond.Wait()
		}
		if q.stopping {
			q.mu.Unlock()
			return
		}
		e := q.pending[0]
		q.pending[0] = entry[T]{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.run(e)
	}
}

func (q *Queue[T]) run(e entry[T]) {
	e.attempt++
	err := q.call(e.item)
	if err == nil {
		q.done()
		return
	}

	if e.attempt >= q.cfg.MaxAttempts {
		q.logger.Error("Queue item discarded", "attempts", e.attempt, "error", err)
		if q.cfg.OnDiscard != nil {
			q.cfg.OnDiscard(e.attempt, err)
		}
		q.done()
		return
	}

	delay := q.cfg.RetryDelay << (e.attempt - 1)
	q.logger.Warn("Queue item failed, retrying", "attempt", e.attempt, "delay", delay, "error", err)
	q.retry(e, delay)
}

// call runs the handler, converting a panic into an error.
func (q *Queue[T]) call(item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return q.handler(q.runCtx, item)
}

// retry re-queues e after delay using a one-time gocron job.
func (q *Queue[T]) retry(e entry[T], delay time.Duration) {
	if delay <= 0 {
		q.requeue(e)
		return
	}
	_, err := q.cron.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(delay))),
		gocron.NewTask(q.requeue, e),
		gocron.WithLimitedRuns(1),
	)
	if err != nil {
		q.logger.Error("Failed to schedule retry, requeueing now", "error", err)
		q.requeue(e)
	}
}

func (q *Queue[T]) requeue(e entry[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, e)
	q.cond.Signal()
}

func (q *Queue[T]) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.outstanding--
	if q.outstanding == 0 && q.closed {
		close(q.drained)
	}
}
