// Package history keeps the rolling chart history shown by display surfaces.
// The ring is bounded: once full, each new point drops the oldest one.
package history

import "sync"

// DefaultSize is the number of points kept when no size is configured.
const DefaultSize = 60

// Ring is a fixed-capacity FIFO safe for concurrent use.
type Ring[T any] struct {
	mu    sync.Mutex
	items []T
	start int
	count int
}

// New creates a ring holding at most size items. A non-positive size uses
// DefaultSize.
func New[T any](size int) *Ring[T] {
	if size <= 0 {
		size = DefaultSize
	}
	return &Ring[T]{items: make([]T, size)}
}

// Push appends v, dropping the oldest item when the ring is full.
// It reports whether an item was dropped.
func (r *Ring[T]) Push(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.items) {
		r.items[(r.start+r.count)%len(r.items)] = v
		r.count++
		return false
	}
	r.items[r.start] = v
	r.start = (r.start + 1) % len(r.items)
	return true
}

// Items returns the stored items, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}
