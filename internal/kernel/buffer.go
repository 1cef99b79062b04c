package kernel

import "sync/atomic"

// Buffer is a fixed-capacity output buffer that many goroutines may append to
// concurrently. It never grows: appends past capacity are discarded and
// counted.
type Buffer[T any] struct {
	items []T
	next  atomic.Int64
}

// NewBuffer allocates a buffer holding at most capacity items.
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Append reserves the next slot and stores v in it. It reports false when the
// buffer is full and v was dropped.
func (b *Buffer[T]) Append(v T) bool {
	slot := b.next.Add(1) - 1
	if slot >= int64(len(b.items)) {
		return false
	}
	b.items[slot] = v
	return true
}

// Cap returns the buffer capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Len returns the number of stored items.
func (b *Buffer[T]) Len() int {
	return int(min(b.next.Load(), int64(len(b.items))))
}

// Dropped returns how many appends were discarded for lack of space.
func (b *Buffer[T]) Dropped() int {
	return int(max(b.next.Load()-int64(len(b.items)), 0))
}

// Items returns the stored items. Call it only after the dispatch that fills
// the buffer has returned.
func (b *Buffer[T]) Items() []T {
	return b.items[:b.Len()]
}
