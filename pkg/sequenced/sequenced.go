package sequenced

import "sync/atomic"

// Allocator hands out sequence ids.
type Allocator interface {
	// Next returns an id that no earlier call on this allocator returned.
	Next() int64
}

// Counter is an atomic Allocator.
type Counter struct {
	last atomic.Int64
}

// NewAllocator creates a Counter whose first id is start+1.
// Negative starts are clamped to zero so ids stay positive.
func NewAllocator(start int64) *Counter {
	if start < 0 {
		start = 0
	}
	c := &Counter{}
	c.last.Store(start)
	return c
}

// Next implements Allocator.
func (c *Counter) Next() int64 {
	return c.last.Add(1)
}

// Last returns the most recently allocated id (or the start value).
func (c *Counter) Last() int64 {
	return c.last.Load()
}

type allocatorHolder struct {
	a Allocator
}

var defaultAllocator atomic.Pointer[allocatorHolder]

func init() {
	defaultAllocator.Store(&allocatorHolder{a: NewAllocator(0)})
}

// Default returns the process-wide allocator.
func Default() Allocator {
	return defaultAllocator.Load().a
}

// SetDefault replaces the process-wide allocator and returns the previous one.
func SetDefault(a Allocator) Allocator {
	if a == nil {
		a = NewAllocator(0)
	}
	return defaultAllocator.Swap(&allocatorHolder{a: a}).a
}

// NextID allocates from the process-wide allocator.
func NextID() int64 {
	return Default().Next()
}

// Sequenced is an immutable value tagged with a sequence id.
type Sequenced[T any] struct {
	Value T
	ID    int64
}

// New tags v with an id from the process-wide allocator.
func New[T any](v T) Sequenced[T] {
	return Sequenced[T]{Value: v, ID: NextID()}
}

// NewFrom tags v with an id from a.
func NewFrom[T any](a Allocator, v T) Sequenced[T] {
	return Sequenced[T]{Value: v, ID: a.Next()}
}

// NewWithID tags v with an explicit id.
func NewWithID[T any](v T, id int64) Sequenced[T] {
	return Sequenced[T]{Value: v, ID: id}
}

// SameSequence reports whether both values carry the same id.
func (s Sequenced[T]) SameSequence(other Sequenced[T]) bool {
	return s.ID == other.ID
}
