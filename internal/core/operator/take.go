package operator

import (
	"fmt"
	"sync"

	"github.com/yndnr/reactq/internal/checkpoint/framing"
	"github.com/yndnr/reactq/internal/checkpoint/serialization"
)

// TakeName identifies the take operator.
const TakeName = "rx://operators/take"

// TakeVersion is the current Take state layout.
var TakeVersion = serialization.V(1, 0, 0, 0)

// Take forwards the first n inputs and then disposes itself.
type Take struct {
	*Base

	mu        sync.Mutex
	remaining int64
}

// NewTake creates a Take forwarding n values.
func NewTake(n int64) (*Take, error) {
	if n < 0 {
		return nil, fmt.Errorf("operator: take count must not be negative, got %d", n)
	}
	t := &Take{Base: NewBase(TakeName, TakeVersion), remaining: n}
	if n == 0 {
		t.Dispose()
	}
	return t, nil
}

// Remaining returns how many values are still forwarded.
func (t *Take) Remaining() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Process implements Stage.
func (t *Take) Process(v int64) (int64, bool) {
	if t.Disposed() {
		return 0, false
	}
	t.mu.Lock()
	t.remaining--
	done := t.remaining == 0
	t.mu.Unlock()
	t.MarkDirty()
	if done {
		t.Dispose()
	}
	return v, true
}

// SaveState implements StatefulOperator.
func (t *Take) SaveState(w *framing.Writer) error {
	if err := t.SaveBase(w); err != nil {
		return err
	}
	return w.Write(t.Remaining())
}

// LoadState implements StatefulOperator.
func (t *Take) LoadState(r *framing.Reader) error {
	if err := t.LoadBase(r); err != nil {
		return err
	}
	remaining, err := framing.Get[int64](r)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.remaining = remaining
	t.mu.Unlock()
	return nil
}
