package tasks

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process Queue for local development and tests.
// Unacknowledged tasks stay in flight and are not redelivered.
type MemoryQueue struct {
	mu       sync.Mutex
	pending  []Task
	inflight map[string]Task
	notify   chan struct{}
	closed   bool
	batch    int
}

// NewMemoryQueue creates an empty queue that hands out up to batch tasks
// per Receive.
func NewMemoryQueue(batch int) *MemoryQueue {
	if batch <= 0 {
		batch = 10
	}
	return &MemoryQueue{
		inflight: make(map[string]Task),
		notify:   make(chan struct{}, 1),
		batch:    batch,
	}
}

func (q *MemoryQueue) Publish(_ context.Context, t Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending = append(q.pending, t)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Receive blocks until at least one task is pending, the queue is closed,
// or ctx ends.
func (q *MemoryQueue) Receive(ctx context.Context) ([]Delivery, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			n := len(q.pending)
			if n > q.batch {
				n = q.batch
			}
			out := make([]Delivery, 0, n)
			for _, t := range q.pending[:n] {
				q.inflight[t.ID] = t
				out = append(out, Delivery{Task: t, Handle: t.ID})
			}
			q.pending = q.pending[n:]
			more := len(q.pending) > 0
			q.mu.Unlock()
			if more {
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return out, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) Delete(_ context.Context, handle string) error {
	q.mu.Lock()
	delete(q.inflight, handle)
	q.mu.Unlock()
	return nil
}

// Close wakes blocked receivers; further publishes fail.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns pending and in-flight counts.
func (q *MemoryQueue) Len() (pending, inflight int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), len(q.inflight)
}
