package engine

import (
	"context"

	"github.com/yndnr/reactq/internal/storage"
)

// Progress receives completion reports in percent.
type Progress interface {
	Report(percent float64)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(percent float64)

// Report implements Progress.
func (f ProgressFunc) Report(percent float64) { f(percent) }

// NoProgress discards reports.
var NoProgress Progress = ProgressFunc(func(float64) {})

// Checkpointable is implemented by components whose state is persisted
// through a state store.
type Checkpointable interface {
	Checkpoint(ctx context.Context, w storage.StateWriter, p Progress) error
	Recover(ctx context.Context, r storage.StateReader, p Progress) error
	Unload(ctx context.Context, p Progress) error
}

type tracker struct {
	p     Progress
	total int
	done  int
}

func newTracker(p Progress, total int) *tracker {
	if p == nil {
		p = NoProgress
	}
	return &tracker{p: p, total: total}
}

func (t *tracker) step() {
	t.done++
	if t.total > 0 {
		t.p.Report(float64(t.done) * 100 / float64(t.total))
	}
}

func (t *tracker) finish() {
	t.p.Report(100)
}
