// Package buffer provides the thread-safe ring buffer that decouples the
// hourly pipeline from the metrics push interval.
package buffer

import (
	"sync"

	"go.uber.org/zap"
)

// Ring is a generic circular buffer. When full, the oldest entry is
// overwritten; losing old samples beats blocking the pipeline.
type Ring[T any] struct {
	mu       sync.RWMutex
	data     []T
	capacity int
	size     int
	head     int
	logger   *zap.Logger
}

// New creates a ring buffer with the given capacity.
func New[T any](capacity int, logger *zap.Logger) *Ring[T] {
	return &Ring[T]{
		data:     make([]T, capacity),
		capacity: capacity,
		logger:   logger,
	}
}

// Add inserts an item, overwriting the oldest when full.
func (r *Ring[T]) Add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == r.capacity {
		r.logger.Warn("ring buffer full, overwriting oldest entry",
			zap.Int("capacity", r.capacity))
	}
	r.data[r.head] = item
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Drain atomically returns every buffered item in insertion order and
// empties the buffer.
func (r *Ring[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}
	out := make([]T, r.size)
	if r.size < r.capacity {
		copy(out, r.data[:r.size])
	} else {
		tail := r.head
		for i := 0; i < r.size; i++ {
			out[i] = r.data[(tail+i)%r.capacity]
		}
	}
	r.size = 0
	r.head = 0
	return out
}

// Size returns the number of buffered items.
func (r *Ring[T]) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the buffer capacity.
func (r *Ring[T]) Capacity() int { return r.capacity }
