// Package cmap provides a concurrent map keyed by strings.
//
// Keys are spread over a power-of-two number of shards by their murmur3
// hash, each shard guarded by its own RWMutex. The engine keeps one map
// per entity kind, keyed by URI.
//
// Usage:
//
//	m := cmap.New[*entity.Subject]()
//	if !m.SetIfAbsent(uri, subj) {
//		// already defined
//	}
//	subj, ok := m.Get(uri)
package cmap
