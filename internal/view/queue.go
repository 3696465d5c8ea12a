package view

import (
	"context"
	"sync"
)

// queue is a bounded job queue drained by a fixed number of goroutines. A
// view runs it with a single worker because propagation passes must not
// overlap on one graph.
type queue[T any] struct {
	mu      sync.RWMutex
	closed  bool
	jobs    chan T
	process func(ctx context.Context, t T)
	wg      sync.WaitGroup
}

// newQueue starts n workers reading from a queue of capacity depth.
func newQueue[T any](ctx context.Context, n, depth int, fn func(context.Context, T)) *queue[T] {
	q := &queue[T]{
		jobs:    make(chan T, depth),
		process: fn,
	}
	for i := 0; i < n; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.run(ctx)
		}()
	}
	return q
}

func (q *queue[T]) run(ctx context.Context) {
	for {
		select {
		case t, ok := <-q.jobs:
			if !ok {
				return
			}
			q.process(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues without blocking. It reports false when the queue is full
// or already drained.
func (q *queue[T]) Submit(t T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- t:
		return true
	default:
		return false
	}
}

// Drain stops accepting jobs, lets the workers finish what is queued and
// waits for them. Safe to call more than once.
func (q *queue[T]) Drain() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *queue[T]) Len() int { return len(q.jobs) }
func (q *queue[T]) Cap() int { return cap(q.jobs) }
