// Package buffer provides a generic, thread-safe circular buffer with a
// configurable overflow policy.
package buffer

import (
	"errors"
	"sync"
	"sync/atomic"
)

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// ErrInvalidCapacity is returned for a capacity below 1
var ErrInvalidCapacity = errors.New("buffer capacity must be positive")

// DropCallback is called when an item is dropped due to overflow policy.
type DropCallback[T any] func(item T)

// Option configures a CircularBuffer
type Option[T any] func(*CircularBuffer[T])

// WithOverflowPolicy sets the overflow policy. The default is DropOldest.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(b *CircularBuffer[T]) {
		b.policy = policy
	}
}

// WithDropCallback sets a callback invoked, outside the buffer lock, for
// every dropped item
func WithDropCallback[T any](fn DropCallback[T]) Option[T] {
	return func(b *CircularBuffer[T]) {
		b.onDrop = fn
	}
}

// Statistics is a snapshot of buffer counters
type Statistics struct {
	Writes int64 `json:"writes"`
	Drops  int64 `json:"drops"`
	Size   int   `json:"size"`
}

// CircularBuffer is a fixed-size FIFO
type CircularBuffer[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int // index of the oldest item
	size   int
	policy OverflowPolicy
	onDrop DropCallback[T]

	writes atomic.Int64
	drops  atomic.Int64
}

// NewCircularBuffer creates a buffer holding at most capacity items
func NewCircularBuffer[T any](capacity int, opts ...Option[T]) (*CircularBuffer[T], error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	b := &CircularBuffer[T]{items: make([]T, capacity)}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}
