// Package queue serializes every outbound platform call: one task in
// flight at a time, failed tasks re-inserted at the front with backoff
// keyed on queue depth, and a randomized courtesy delay between tasks.
package queue

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"petrel/internal/logging"
	"petrel/internal/metrics"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// maxSleep caps any single backoff sleep so a deep queue cannot park the
// worker for hours and shutdown stays responsive.
const maxSleep = 5 * time.Minute

// Task is one outbound call. It is retried until it succeeds.
type Task func(ctx context.Context) (any, error)

type item struct {
	name string
	fn   Task
	done chan result
}

type result struct {
	value any
	err   error
}

// Queue is the serialized outbound request queue.
type Queue struct {
	mu     sync.Mutex
	items  []*item
	wake   chan struct{}
	closed bool

	rnd   *rand.Rand
	rndMu sync.Mutex
	// sleep is replaced in tests to avoid real waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Queue.
type Option func(*Queue)

// WithSleep replaces the wait between tasks. Tests use this to run the
// queue without real delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(q *Queue) { q.sleep = fn }
}

func New(opts ...Option) *Queue {
	q := &Queue{
		wake:  make(chan struct{}, 1),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: ctxSleep,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue appends a task and blocks until it eventually succeeds or the
// caller's context is done. Retrying is unbounded; a permanently failing
// task blocks the queue behind growing backoff. A task already accepted
// keeps running even if the caller stops waiting.
func (q *Queue) Enqueue(ctx context.Context, name string, fn Task) (any, error) {
	it := &item{name: name, fn: fn, done: make(chan result, 1)}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	q.items = append(q.items, it)
	metrics.QueueDepth.Set(float64(len(q.items)))
	q.mu.Unlock()
	q.signal()

	select {
	case r := <-it.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further Enqueue calls. Tasks already queued still run.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) popFront() *item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	it := q.items[0]
	q.items = q.items[1:]
	metrics.QueueDepth.Set(float64(len(q.items)))
	return it
}

// pushFront re-inserts a failed task at the head and reports the depth
// including it, which keys the retry backoff.
func (q *Queue) pushFront(it *item) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]*item{it}, q.items...)
	metrics.QueueDepth.Set(float64(len(q.items)))
	return len(q.items)
}

// Run processes tasks until ctx is done. Call it in its own goroutine.
func (q *Queue) Run(ctx context.Context) {
	for {
		it := q.popFront()
		if it == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}
		start := time.Now()
		value, err := it.fn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				it.done <- result{err: ctx.Err()}
				return
			}
			depth := q.pushFront(it)
			metrics.QueueRetries.Inc()
			logging.Warn("queue_task_retry", map[string]any{"task": it.name, "depth": depth, "error": err.Error()})
			if err := q.sleep(ctx, backoffFor(depth)); err != nil {
				return
			}
			continue
		}
		it.done <- result{value: value}
		metrics.QueueTasks.Inc()
		metrics.ObserveQueueTask(start)
		if err := q.sleep(ctx, q.courtesyDelay()); err != nil {
			return
		}
	}
}

// backoffFor sleeps 2^depth seconds, capped.
func backoffFor(depth int) time.Duration {
	if depth < 0 {
		depth = 0
	}
	if depth > 30 {
		depth = 30
	}
	d := time.Duration(1<<uint(depth)) * time.Second
	if d > maxSleep {
		d = maxSleep
	}
	return d
}

// courtesyDelay is a random 1.5-3.5s pause after each success.
func (q *Queue) courtesyDelay() time.Duration {
	q.rndMu.Lock()
	defer q.rndMu.Unlock()
	return 1500*time.Millisecond + time.Duration(q.rnd.Int63n(int64(2000*time.Millisecond)))
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
