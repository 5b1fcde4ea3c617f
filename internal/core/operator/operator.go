package operator

import (
	"sync/atomic"

	"github.com/yndnr/reactq/internal/checkpoint/framing"
	"github.com/yndnr/reactq/internal/checkpoint/serialization"
)

// StatefulOperator is implemented by operators whose state survives restarts.
type StatefulOperator interface {
	// Name identifies the operator type, e.g. "rx://operators/sum".
	Name() string
	// Version identifies the state layout.
	Version() serialization.Version
	// StateChanged reports whether state changed since the last save.
	StateChanged() bool
	// SaveState writes the operator state into its frame.
	SaveState(w *framing.Writer) error
	// LoadState restores state written by SaveState.
	LoadState(r *framing.Reader) error
	// OnStateSaved is called after the saved state was committed.
	OnStateSaved()
}

// Transitioning is implemented by operators that can load state written
// before it was framed.
type Transitioning interface {
	AllowsTransitioning() bool
}

// Stage is an operator that processes a stream of int64 values.
// ok is false once the stage stops emitting.
type Stage interface {
	StatefulOperator
	Process(v int64) (out int64, ok bool)
	Disposed() bool
}

// Base carries the mutation counter and disposal flags shared by all
// operators. Embed it and call MarkDirty on every state mutation.
//
// The operator is dirty while mutations differs from saved. SaveBase
// records the count the pending save covers, so a mutation racing with
// a checkpoint keeps the operator dirty after OnStateSaved.
type Base struct {
	name    string
	version serialization.Version

	mutations atomic.Uint64
	saved     atomic.Uint64
	// captured is the mutation count seen by the last SaveBase, -1 when
	// no save is pending.
	captured atomic.Int64

	disposed          atomic.Bool
	disposedFromState atomic.Bool
}

// NewBase creates a Base. New operators start dirty so their initial
// state is captured by the next checkpoint.
func NewBase(name string, version serialization.Version) *Base {
	b := &Base{name: name, version: version}
	b.mutations.Store(1)
	b.captured.Store(-1)
	return b
}

// Name implements StatefulOperator.
func (b *Base) Name() string { return b.name }

// Version implements StatefulOperator.
func (b *Base) Version() serialization.Version { return b.version }

// StateChanged implements StatefulOperator.
func (b *Base) StateChanged() bool { return b.mutations.Load() != b.saved.Load() }

// MarkDirty records a state mutation.
func (b *Base) MarkDirty() { b.mutations.Add(1) }

// OnStateSaved implements StatefulOperator. Only mutations seen by the
// preceding SaveBase count as saved; without one, every mutation so far
// does.
func (b *Base) OnStateSaved() {
	n := b.captured.Swap(-1)
	if n < 0 {
		b.saved.Store(b.mutations.Load())
		return
	}
	b.saved.Store(uint64(n))
}

// Dispose marks the operator disposed. Disposal is a state change unless
// the operator was already disposed when its state was loaded.
func (b *Base) Dispose() {
	if b.disposedFromState.Load() {
		return
	}
	if b.disposed.CompareAndSwap(false, true) {
		b.MarkDirty()
	}
}

// Disposed reports whether the operator is disposed, including when it
// was restored from a checkpoint taken after disposal.
func (b *Base) Disposed() bool {
	return b.disposedFromState.Load() || b.disposed.Load()
}

// DisposedFromState reports whether disposal came from loaded state.
func (b *Base) DisposedFromState() bool {
	return b.disposedFromState.Load()
}

// SaveBase writes the shared flags. Operators call it first in SaveState.
func (b *Base) SaveBase(w *framing.Writer) error {
	b.captured.Store(int64(b.mutations.Load()))
	return w.Write(b.Disposed())
}

// LoadBase reads the flags written by SaveBase. A freshly loaded operator
// is Unmodified.
func (b *Base) LoadBase(r *framing.Reader) error {
	disposed, err := framing.Get[bool](r)
	if err != nil {
		return err
	}
	b.disposedFromState.Store(disposed)
	b.captured.Store(-1)
	b.saved.Store(b.mutations.Load())
	return nil
}
