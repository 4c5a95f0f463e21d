package buffer

// Write adds item. When the buffer is full the overflow policy decides
// which item is dropped; Write reports whether item was stored.
func (b *CircularBuffer[T]) Write(item T) bool {
	b.writes.Add(1)

	b.mu.Lock()
	var (
		dropped    T
		hasDropped bool
		stored     = true
	)
	capacity := len(b.items)
	switch {
	case b.size < capacity:
		b.items[(b.head+b.size)%capacity] = item
		b.size++
	case b.policy == DropNewest:
		dropped, hasDropped, stored = item, true, false
	default:
		dropped, hasDropped = b.items[b.head], true
		b.items[b.head] = item
		b.head = (b.head + 1) % capacity
	}
	b.mu.Unlock()

	if hasDropped {
		b.drops.Add(1)
		if b.onDrop != nil {
			b.onDrop(dropped)
		}
	}
	return stored
}

// Read removes and returns the oldest item
func (b *CircularBuffer[T]) Read() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if b.size == 0 {
		return zero, false
	}
	item := b.items[b.head]
	b.items[b.head] = zero
	b.head = (b.head + 1) % len(b.items)
	b.size--
	return item, true
}

// Snapshot returns the buffered items, oldest first, without removing them
func (b *CircularBuffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, b.size)
	for i := range out {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Size returns the current number of items
func (b *CircularBuffer[T]) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Capacity returns the maximum number of items
func (b *CircularBuffer[T]) Capacity() int {
	return len(b.items)
}

// Clear removes all items
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.items)
	b.head = 0
	b.size = 0
}

// Stats returns the buffer counters
func (b *CircularBuffer[T]) Stats() Statistics {
	return Statistics{Writes: b.writes.Load(), Drops: b.drops.Load(), Size: b.Size()}
}
