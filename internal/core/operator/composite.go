package operator

import (
	"fmt"

	"github.com/yndnr/reactq/internal/checkpoint/framing"
	"github.com/yndnr/reactq/internal/checkpoint/serialization"
)

// PipeName identifies the composite pipeline operator.
const PipeName = "rx://operators/pipe"

// PipeVersion is the current Composite state layout.
var PipeVersion = serialization.V(1, 0, 0, 0)

// Composite chains stages. Each stage's state is saved in its own child
// frame, so a stage that reads less than it wrote does not shift the next
// stage's state.
type Composite struct {
	*Base
	stages []Stage
}

// NewComposite creates a pipeline over stages.
func NewComposite(stages ...Stage) *Composite {
	return &Composite{Base: NewBase(PipeName, PipeVersion), stages: stages}
}

// Stages returns the pipeline stages.
func (c *Composite) Stages() []Stage {
	return c.stages
}

// Process implements Stage. The pipeline stops at the first stage that
// declines the value, and disposes itself once any stage is disposed.
func (c *Composite) Process(v int64) (int64, bool) {
	if c.Disposed() {
		return 0, false
	}
	for _, s := range c.stages {
		var ok bool
		if v, ok = s.Process(v); !ok {
			c.Dispose()
			return 0, false
		}
	}
	for _, s := range c.stages {
		if s.Disposed() {
			c.Dispose()
			break
		}
	}
	return v, true
}

// StateChanged implements StatefulOperator.
func (c *Composite) StateChanged() bool {
	if c.Base.StateChanged() {
		return true
	}
	for _, s := range c.stages {
		if s.StateChanged() {
			return true
		}
	}
	return false
}

// OnStateSaved implements StatefulOperator.
func (c *Composite) OnStateSaved() {
	c.Base.OnStateSaved()
	for _, s := range c.stages {
		s.OnStateSaved()
	}
}

// SaveState implements StatefulOperator.
func (c *Composite) SaveState(w *framing.Writer) error {
	if err := c.SaveBase(w); err != nil {
		return err
	}
	if err := w.Write(int32(len(c.stages))); err != nil {
		return err
	}
	for _, s := range c.stages {
		if err := saveChild(w, s); err != nil {
			return fmt.Errorf("save %s: %w", s.Name(), err)
		}
	}
	return nil
}

func saveChild(w *framing.Writer, s Stage) error {
	child, err := w.Child()
	if err != nil {
		return err
	}
	defer child.Close()
	if err := child.Write(s.Name()); err != nil {
		return err
	}
	if err := s.SaveState(child); err != nil {
		return err
	}
	return child.Close()
}

// LoadState implements StatefulOperator. The stage list must match the
// one that saved the state.
func (c *Composite) LoadState(r *framing.Reader) error {
	if err := c.LoadBase(r); err != nil {
		return err
	}
	n, err := framing.Get[int32](r)
	if err != nil {
		return err
	}
	if int(n) != len(c.stages) {
		return fmt.Errorf("operator: pipeline has %d stages, state has %d", len(c.stages), n)
	}
	for _, s := range c.stages {
		if err := loadChild(r, s); err != nil {
			return fmt.Errorf("load %s: %w", s.Name(), err)
		}
	}
	return nil
}

func loadChild(r *framing.Reader, s Stage) error {
	child, err := r.Child()
	if err != nil {
		return err
	}
	defer child.Close()
	name, err := framing.Get[string](child)
	if err != nil {
		return err
	}
	if name != s.Name() {
		return fmt.Errorf("operator: stage mismatch: state for %s", name)
	}
	return s.LoadState(child)
}
