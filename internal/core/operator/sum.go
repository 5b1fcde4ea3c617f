package operator

import (
	"sync"

	"github.com/yndnr/reactq/internal/checkpoint/framing"
	"github.com/yndnr/reactq/internal/checkpoint/serialization"
)

// SumName identifies the running-sum operator.
const SumName = "rx://operators/sum"

// SumVersion is the current Sum state layout.
var SumVersion = serialization.V(1, 0, 0, 0)

// Sum emits the running total of its inputs.
type Sum struct {
	*Base

	mu    sync.Mutex
	total int64
	count int64
}

// NewSum creates a Sum.
func NewSum() *Sum {
	return &Sum{Base: NewBase(SumName, SumVersion)}
}

// Process implements Stage.
func (s *Sum) Process(v int64) (int64, bool) {
	if s.Disposed() {
		return 0, false
	}
	s.mu.Lock()
	s.total += v
	s.count++
	out := s.total
	s.mu.Unlock()
	s.MarkDirty()
	return out, true
}

// Total returns the running total and the number of inputs.
func (s *Sum) Total() (total, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, s.count
}

// AllowsTransitioning implements Transitioning: Sum state written before
// framing is treated as empty.
func (s *Sum) AllowsTransitioning() bool { return true }

// SaveState implements StatefulOperator.
func (s *Sum) SaveState(w *framing.Writer) error {
	if err := s.SaveBase(w); err != nil {
		return err
	}
	s.mu.Lock()
	total, count := s.total, s.count
	s.mu.Unlock()
	if err := w.Write(total); err != nil {
		return err
	}
	return w.Write(count)
}

// LoadState implements StatefulOperator.
func (s *Sum) LoadState(r *framing.Reader) error {
	if !r.Framed() {
		s.OnStateSaved()
		return nil
	}
	if err := s.LoadBase(r); err != nil {
		return err
	}
	total, err := framing.Get[int64](r)
	if err != nil {
		return err
	}
	count, err := framing.Get[int64](r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.total, s.count = total, count
	s.mu.Unlock()
	return nil
}
