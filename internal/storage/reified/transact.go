package reified

import "sync/atomic"

// Transact applies ops, in order, to a private copy of the snapshot held
// by ref and publishes the result with compare-and-swap. On contention the
// whole batch is re-applied to the fresh snapshot; Add and Update reuse
// their cached sequence ids across retries.
//
// Failed operations do not abort the batch; callers inspect the results.
func Transact[V any](ref *atomic.Pointer[Snapshot[V]], ops ...Operation[V]) []Result {
	for {
		old := ref.Load()
		var next Snapshot[V]
		if old != nil {
			next = *old
		}

		results := make([]Result, len(ops))
		for i, op := range ops {
			results[i] = op.Apply(&next)
		}

		if ref.CompareAndSwap(old, &next) {
			return results
		}
	}
}

// Load returns the snapshot currently held by ref.
func Load[V any](ref *atomic.Pointer[Snapshot[V]]) Snapshot[V] {
	if s := ref.Load(); s != nil {
		return *s
	}
	return Snapshot[V]{}
}
