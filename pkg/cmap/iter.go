package cmap

import "sort"

// Range iterates over all pairs until fn returns false. Shards are locked
// one at a time, so the view is not a consistent snapshot.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Keys returns all keys in ascending order.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0, m.Count())
	m.Range(func(k string, _ V) bool {
		keys = append(keys, k)
		return true
	})
	sort.Strings(keys)
	return keys
}

// Entry is a key-value pair.
type Entry[V any] struct {
	Key   string
	Value V
}

// Sorted returns all pairs in ascending key order.
func (m *Map[V]) Sorted() []Entry[V] {
	out := make([]Entry[V], 0, m.Count())
	m.Range(func(k string, v V) bool {
		out = append(out, Entry[V]{Key: k, Value: v})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
