// Package queue holds the bounded FIFO windows behind the per-site history.
package queue

import "sync"

// Queue is a thread-safe FIFO. With a positive capacity it is a ring that
// overwrites its oldest item on overflow.
type Queue[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // index of the oldest item
	size     int
	capacity int
}

// New creates an empty queue holding at most capacity items.
// A capacity of zero or less means unbounded.
func New[T any](capacity int) *Queue[T] {
	q := &Queue[T]{capacity: capacity}
	if capacity > 0 {
		q.buf = make([]T, capacity)
	}
	return q
}

// Push appends items in order, overwriting the oldest when full.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity <= 0 {
		q.buf = append(q.buf, items...)
		q.size = len(q.buf)
		return
	}
	for _, it := range items {
		if q.size < q.capacity {
			q.buf[(q.head+q.size)%q.capacity] = it
			q.size++
			continue
		}
		q.buf[q.head] = it
		q.head = (q.head + 1) % q.capacity
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Items returns a copy of the queued items, oldest first.
func (q *Queue[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, q.size)
	for i := range out {
		out[i] = q.at(i)
	}
	return out
}

// at returns the i-th oldest item. Callers hold mu.
func (q *Queue[T]) at(i int) T {
	if q.capacity <= 0 {
		return q.buf[i]
	}
	return q.buf[(q.head+i)%q.capacity]
}

// Clear drops every item.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	for i := range q.buf {
		q.buf[i] = zero
	}
	if q.capacity <= 0 {
		q.buf = q.buf[:0]
	}
	q.head, q.size = 0, 0
}
