package reified

import (
	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/yndnr/reactq/pkg/sequenced"
)

// Snapshot is an immutable sorted map from key to Sequenced value.
// The zero value is an empty snapshot.
type Snapshot[V any] struct {
	tree *iradix.Tree
}

// Empty returns an empty snapshot.
func Empty[V any]() Snapshot[V] {
	return Snapshot[V]{tree: iradix.New()}
}

func (s Snapshot[V]) root() *iradix.Tree {
	if s.tree == nil {
		return iradix.New()
	}
	return s.tree
}

// Len returns the number of entries.
func (s Snapshot[V]) Len() int {
	if s.tree == nil {
		return 0
	}
	return s.tree.Len()
}

// Lookup returns the entry stored under key.
func (s Snapshot[V]) Lookup(key string) (sequenced.Sequenced[V], bool) {
	if s.tree == nil {
		return sequenced.Sequenced[V]{}, false
	}
	raw, ok := s.tree.Get([]byte(key))
	if !ok {
		return sequenced.Sequenced[V]{}, false
	}
	return raw.(sequenced.Sequenced[V]), true
}

// Ascend visits entries in key order until fn returns false.
func (s Snapshot[V]) Ascend(fn func(key string, entry sequenced.Sequenced[V]) bool) {
	if s.tree == nil {
		return
	}
	s.tree.Root().Walk(func(k []byte, v interface{}) bool {
		return !fn(string(k), v.(sequenced.Sequenced[V]))
	})
}

// AscendPrefix visits entries whose key starts with prefix, in key order.
func (s Snapshot[V]) AscendPrefix(prefix string, fn func(key string, entry sequenced.Sequenced[V]) bool) {
	if s.tree == nil {
		return
	}
	s.tree.Root().WalkPrefix([]byte(prefix), func(k []byte, v interface{}) bool {
		return !fn(string(k), v.(sequenced.Sequenced[V]))
	})
}

func (s Snapshot[V]) with(key string, entry sequenced.Sequenced[V]) Snapshot[V] {
	t, _, _ := s.root().Insert([]byte(key), entry)
	return Snapshot[V]{tree: t}
}

func (s Snapshot[V]) without(key string) Snapshot[V] {
	t, _, _ := s.root().Delete([]byte(key))
	return Snapshot[V]{tree: t}
}
