package reified

import (
	"sync/atomic"

	"github.com/yndnr/reactq/internal/core/domain"
	"github.com/yndnr/reactq/pkg/sequenced"
)

// Operation is a reified key/value command.
type Operation[V any] interface {
	// Kind returns the operation type.
	Kind() OpKind
	// Key returns the key the operation targets ("" for Enumerate).
	Key() string
	// Apply runs the operation against *s. The snapshot is replaced
	// only when the operation succeeds and mutates.
	Apply(s *Snapshot[V]) Result
}

// Option configures mutating operations.
type Option func(*options)

type options struct {
	alloc sequenced.Allocator
}

// WithAllocator sets the allocator used to assign sequence ids.
func WithAllocator(a sequenced.Allocator) Option {
	return func(o *options) {
		o.alloc = a
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.alloc == nil {
		o.alloc = sequenced.Default()
	}
	return o
}

// sequenceSlot caches the id assigned on first application.
type sequenceSlot struct {
	id    atomic.Int64
	alloc sequenced.Allocator
}

func (s *sequenceSlot) get() int64 {
	if id := s.id.Load(); id != 0 {
		return id
	}
	s.id.CompareAndSwap(0, s.alloc.Next())
	return s.id.Load()
}

// AssignedID returns the cached sequence id, or 0 if never applied.
func (s *sequenceSlot) AssignedID() int64 {
	return s.id.Load()
}

// Add inserts a value when the key is absent.
type Add[V any] struct {
	sequenceSlot
	key   string
	value V
}

// NewAdd creates an Add operation.
func NewAdd[V any](key string, value V, opts ...Option) *Add[V] {
	o := buildOptions(opts)
	op := &Add[V]{key: key, value: value}
	op.alloc = o.alloc
	return op
}

func (o *Add[V]) Kind() OpKind { return OpAdd }
func (o *Add[V]) Key() string  { return o.key }

// Apply implements Operation.
func (o *Add[V]) Apply(s *Snapshot[V]) Result {
	if _, ok := s.Lookup(o.key); ok {
		return statusResult{kind: OpAdd, failure: domain.ErrKeyAlreadyExists.WithDetails(o.key)}
	}
	*s = s.with(o.key, sequenced.NewWithID(o.value, o.get()))
	return statusResult{kind: OpAdd}
}

// Update replaces the value of an existing key.
type Update[V any] struct {
	sequenceSlot
	key   string
	value V
}

// NewUpdate creates an Update operation.
func NewUpdate[V any](key string, value V, opts ...Option) *Update[V] {
	o := buildOptions(opts)
	op := &Update[V]{key: key, value: value}
	op.alloc = o.alloc
	return op
}

func (o *Update[V]) Kind() OpKind { return OpUpdate }
func (o *Update[V]) Key() string  { return o.key }

// Apply implements Operation.
func (o *Update[V]) Apply(s *Snapshot[V]) Result {
	if _, ok := s.Lookup(o.key); !ok {
		return statusResult{kind: OpUpdate, failure: domain.ErrKeyNotFound.WithDetails(o.key)}
	}
	*s = s.with(o.key, sequenced.NewWithID(o.value, o.get()))
	return statusResult{kind: OpUpdate}
}

// Remove deletes an existing key.
type Remove[V any] struct {
	key string
}

// NewRemove creates a Remove operation.
func NewRemove[V any](key string) *Remove[V] {
	return &Remove[V]{key: key}
}

func (o *Remove[V]) Kind() OpKind { return OpRemove }
func (o *Remove[V]) Key() string  { return o.key }

// Apply implements Operation.
func (o *Remove[V]) Apply(s *Snapshot[V]) Result {
	if _, ok := s.Lookup(o.key); !ok {
		return statusResult{kind: OpRemove, failure: domain.ErrKeyNotFound.WithDetails(o.key)}
	}
	*s = s.without(o.key)
	return statusResult{kind: OpRemove}
}

// Get reads the value stored under a key.
type Get[V any] struct {
	key string
}

// NewGet creates a Get operation.
func NewGet[V any](key string) *Get[V] {
	return &Get[V]{key: key}
}

func (o *Get[V]) Kind() OpKind { return OpGet }
func (o *Get[V]) Key() string  { return o.key }

// Apply implements Operation.
func (o *Get[V]) Apply(s *Snapshot[V]) Result {
	entry, ok := s.Lookup(o.key)
	if !ok {
		return GetResult[V]{failure: domain.ErrKeyNotFound.WithDetails(o.key)}
	}
	return GetResult[V]{value: entry.Value, id: entry.ID}
}

// Contains tests key presence. It always succeeds.
type Contains[V any] struct {
	key string
}

// NewContains creates a Contains operation.
func NewContains[V any](key string) *Contains[V] {
	return &Contains[V]{key: key}
}

func (o *Contains[V]) Kind() OpKind { return OpContains }
func (o *Contains[V]) Key() string  { return o.key }

// Apply implements Operation.
func (o *Contains[V]) Apply(s *Snapshot[V]) Result {
	_, ok := s.Lookup(o.key)
	return ContainsResult{found: ok}
}

// Enumerate lists the entries whose key satisfies a predicate.
// The listing is a point-in-time view of the snapshot.
type Enumerate[V any] struct {
	pred func(key string) bool
}

// NewEnumerate creates an Enumerate operation. A nil predicate matches all keys.
func NewEnumerate[V any](pred func(key string) bool) *Enumerate[V] {
	return &Enumerate[V]{pred: pred}
}

func (o *Enumerate[V]) Kind() OpKind { return OpEnumerate }
func (o *Enumerate[V]) Key() string  { return "" }

// Apply implements Operation.
func (o *Enumerate[V]) Apply(s *Snapshot[V]) Result {
	var pairs []Pair[V]
	s.Ascend(func(key string, entry sequenced.Sequenced[V]) bool {
		if o.pred == nil || o.pred(key) {
			pairs = append(pairs, Pair[V]{Key: key, Value: entry.Value, ID: entry.ID})
		}
		return true
	})
	return EnumerateResult[V]{pairs: pairs}
}
