package control

import (
	"errors"
	"sync"
)

var (
	// ErrQueueClosed is returned when enqueuing into a closed queue.
	ErrQueueClosed = errors.New("queue closed")

	// ErrQueueFull is returned when a bounded queue is at capacity.
	ErrQueueFull = errors.New("queue full")
)

// Queue is a thread-safe FIFO with head insertion.
//
// Producers (the control plane, upstream stages) enqueue from any
// goroutine; the owning pipeline goroutine dequeues. The queue uses a
// channel for signaling so the consumer can wait on it together with a
// context.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	closed   bool
	signal   chan struct{} // buffered, size 1
}

// NewQueue creates an empty queue. capacity <= 0 means unbounded.
func NewQueue[T any](capacity int) *Queue[T] {
	hint := capacity
	if hint <= 0 || hint > 64 {
		hint = 64
	}
	return &Queue[T]{
		items:    make([]T, 0, hint),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds v to the back of the queue.
func (q *Queue[T]) Enqueue(v T) error {
	return q.insert(v, false)
}

// EnqueueHead adds v to the front of the queue so it is dequeued next.
func (q *Queue[T]) EnqueueHead(v T) error {
	return q.insert(v, true)
}

func (q *Queue[T]) insert(v T, head bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return ErrQueueFull
	}

	if head {
		var zero T
		q.items = append(q.items, zero)
		copy(q.items[1:], q.items)
		q.items[0] = v
	} else {
		q.items = append(q.items, v)
	}

	// Coalesce signals; the consumer drains until empty.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// TryDequeue removes the front item without blocking.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]
	// Clear the slot so the backing array does not pin the value.
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return v, true
}

// Wait returns a channel that signals when items may be available. It is
// closed by Close.
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // TryDequeue until empty
//	}
func (q *Queue[T]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further enqueues and wakes any waiter. Items already
// queued remain available to TryDequeue.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
