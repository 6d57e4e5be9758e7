// Package queue provides a single-flush callback buffer.
//
// Callers that need a value produced once (e.g. an initialized backend) Add a
// callback; the producer calls Flush exactly once. Callbacks added before the
// flush run during it in FIFO order, callbacks added after it run immediately.
package queue

import "sync"

// Queue buffers callbacks until the first Flush. The zero value is ready to use.
type Queue[T any] struct {
	mu      sync.Mutex
	pending []func(T)
	flushed bool
	value   T
}

// Add runs fn with the flushed value, or buffers it until Flush.
// When the queue is already flushed fn runs synchronously in the caller's goroutine.
func (q *Queue[T]) Add(fn func(T)) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	if q.flushed {
		v := q.value
		q.mu.Unlock()
		fn(v)
		return
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
}

// Flush stores v and runs every buffered callback once, in the order they were added.
// Only the first call has an effect.
func (q *Queue[T]) Flush(v T) {
	q.mu.Lock()
	if q.flushed {
		q.mu.Unlock()
		return
	}
	q.flushed = true
	q.value = v
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, fn := range pending {
		fn(v)
	}
}

// Flushed reports whether Flush has been called.
func (q *Queue[T]) Flushed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.flushed
}

// Len returns the number of callbacks waiting for Flush.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
