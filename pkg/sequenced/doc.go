// Package sequenced tags values with process-unique, monotonically
// increasing sequence ids.
//
// The process-wide allocator is an explicit, replaceable service:
//
//	sequenced.SetDefault(sequenced.NewAllocator(100)) // deterministic ids in tests
//	v := sequenced.New("payload")                   // v.ID == 101
//
// Sequence ids are used by the reified key/value operations to detect
// whether a retried operation already took effect.
package sequenced
