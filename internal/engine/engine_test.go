package engine

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/reactq/internal/checkpoint"
	"github.com/yndnr/reactq/internal/checkpoint/framing"
	"github.com/yndnr/reactq/internal/checkpoint/serialization"
	"github.com/yndnr/reactq/internal/core/domain"
	"github.com/yndnr/reactq/internal/core/entity"
	"github.com/yndnr/reactq/internal/core/expr"
	"github.com/yndnr/reactq/internal/core/operator"
	"github.com/yndnr/reactq/internal/storage"
	"github.com/yndnr/reactq/internal/storage/memory"
	"github.com/yndnr/reactq/internal/storage/snapshot"
	"github.com/yndnr/reactq/internal/telemetry/metric"
)

const (
	takeTemplate = "rx://templates/take"
	sumURI       = "rx://subscriptions/sum"
	takeURI      = "rx://subscriptions/take3"
	pipeURI      = "rx://subscriptions/pipe"
	reliableURI  = "rx://reliable/acked"
	subjectURI   = "rx://subjects/s1"
	sourceURI    = "rx://observables/source"
)

func call(name string, args ...expr.Expr) expr.Expr {
	return expr.Invoke(expr.Parameter(name), args...)
}

// populate defines one entity of most kinds, including a templatized
// subscription.
func populate(t *testing.T, e *Engine) {
	t.Helper()
	defs := []struct {
		kind entity.Kind
		uri  string
		x    expr.Expr
	}{
		{entity.KindTemplate, takeTemplate, expr.Lambda(call(operator.TakeName, expr.TupleItem(expr.Parameter("args"), 0)), "args")},
		{entity.KindObservable, sourceURI, expr.Constant("source")},
		{entity.KindObserver, "rx://observers/sink", expr.Constant("sink")},
		{entity.KindSubscription, sumURI, call(operator.SumName)},
		{entity.KindSubscription, takeURI, expr.Instantiate(takeTemplate, []expr.Expr{expr.Constant(3)})},
		{entity.KindSubscription, pipeURI, call(operator.PipeName, call(operator.TakeName, expr.Constant(2)), call(operator.SumName))},
		{entity.KindReliableSubscription, reliableURI, call(operator.SumName)},
		{entity.KindStream, subjectURI, call(operator.SumName)},
	}
	for _, d := range defs {
		if _, err := e.DefineExpr(d.kind, d.uri, d.x); err != nil {
			t.Fatalf("DefineExpr(%s): %v", d.uri, err)
		}
	}
}

func opOf[T any](t *testing.T, e *Engine, kind entity.Kind, uri string) T {
	t.Helper()
	ent, ok := e.Lookup(kind, uri)
	if !ok {
		t.Fatalf("Lookup(%s) not found", uri)
	}
	op, ok := ent.(entity.Instance).Operator().(T)
	if !ok {
		t.Fatalf("operator of %s is %T", uri, ent.(entity.Instance).Operator())
	}
	return op
}

func checkpointNow(t *testing.T, e *Engine, s storage.Store, kind storage.CheckpointKind) {
	t.Helper()
	w, err := s.Writer(kind)
	if err != nil {
		t.Fatalf("Writer(%s): %v", kind, err)
	}
	if err := e.Checkpoint(context.Background(), w, nil); err != nil {
		t.Fatalf("Checkpoint(%s): %v", kind, err)
	}
}

func recoverInto(t *testing.T, s storage.Store, opts ...Option) (*Engine, error) {
	t.Helper()
	r, err := s.Reader()
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}
	defer r.Close()
	e := New(opts...)
	return e, e.Recover(context.Background(), r, nil)
}

func TestEngine_RoundTrip(t *testing.T) {
	stores := []struct {
		name string
		open func(t *testing.T) storage.Store
	}{
		{"memory", func(t *testing.T) storage.Store { return memory.New() }},
		{"badger", func(t *testing.T) storage.Store {
			s, err := storage.NewBadgerStore(storage.DefaultBadgerConfig(""), nil)
			if err != nil {
				t.Fatalf("NewBadgerStore: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		}},
		{"snapshot", func(t *testing.T) storage.Store {
			s, err := snapshot.Open(snapshot.DefaultConfig(t.TempDir()), nil)
			if err != nil {
				t.Fatalf("snapshot.Open: %v", err)
			}
			return s
		}},
	}

	for _, st := range stores {
		t.Run(st.name, func(t *testing.T) {
			s := st.open(t)
			e := New()
			populate(t, e)

			sum := opOf[*operator.Sum](t, e, entity.KindSubscription, sumURI)
			sum.Process(5)
			sum.Process(7)
			take := opOf[*operator.Take](t, e, entity.KindSubscription, takeURI)
			take.Process(1)
			pipe := opOf[*operator.Composite](t, e, entity.KindSubscription, pipeURI)
			pipe.Process(10)
			pipe.Process(20)
			pipe.Process(30)
			rel, _ := e.Lookup(entity.KindReliableSubscription, reliableURI)
			rel.(*entity.ReliableSubscription).Acknowledge(42)

			checkpointNow(t, e, s, storage.Full)

			got, err := recoverInto(t, s)
			if err != nil {
				t.Fatalf("Recover: %v", err)
			}
			if got.Len() != e.Len() {
				t.Fatalf("Len() = %d, want %d", got.Len(), e.Len())
			}

			if total, count := opOf[*operator.Sum](t, got, entity.KindSubscription, sumURI).Total(); total != 12 || count != 2 {
				t.Errorf("sum = (%d, %d), want (12, 2)", total, count)
			}
			if rem := opOf[*operator.Take](t, got, entity.KindSubscription, takeURI).Remaining(); rem != 2 {
				t.Errorf("take remaining = %d, want 2", rem)
			}
			rp := opOf[*operator.Composite](t, got, entity.KindSubscription, pipeURI)
			if _, ok := rp.Process(40); ok {
				t.Error("recovered pipe should have stopped after its take completed")
			}
			if total, _ := rp.Stages()[1].(*operator.Sum).Total(); total != 30 {
				t.Errorf("pipe sum = %d, want 30", total)
			}
			rrel, _ := got.Lookup(entity.KindReliableSubscription, reliableURI)
			if id := rrel.(*entity.ReliableSubscription).Acknowledged(); id != 42 {
				t.Errorf("Acknowledged() = %d, want 42", id)
			}

			tk, _ := got.Lookup(entity.KindSubscription, takeURI)
			if !expr.Equal(tk.Expression(), expr.Instantiate(takeTemplate, []expr.Expr{expr.Constant(3)})) {
				t.Errorf("templatized expression = %v", tk.Expression())
			}
			if !tk.Persisted() {
				t.Error("recovered entity should be marked persisted")
			}
			if opOf[*operator.Sum](t, got, entity.KindSubscription, sumURI).StateChanged() {
				t.Error("recovered operator should be unmodified")
			}
		})
	}
}

func TestEngine_DifferentialWritesOnlyChanges(t *testing.T) {
	s := memory.New()
	e := New()
	populate(t, e)
	checkpointNow(t, e, s, storage.Full)

	version := func(cat, key string) int64 {
		v, ok := s.Version(cat, key)
		if !ok {
			t.Fatalf("item %s/%s missing", cat, key)
		}
		return v
	}
	subs := entity.KindSubscription.String()
	state := StateCategory(entity.KindSubscription)
	defBefore := version(subs, sumURI)
	sumBefore := version(state, sumURI)
	takeBefore := version(state, takeURI)

	opOf[*operator.Sum](t, e, entity.KindSubscription, sumURI).Process(1)
	checkpointNow(t, e, s, storage.Differential)

	if version(subs, sumURI) != defBefore {
		t.Error("unchanged definition was rewritten")
	}
	if version(state, sumURI) == sumBefore {
		t.Error("dirty operator state was not rewritten")
	}
	if version(state, takeURI) != takeBefore {
		t.Error("clean operator state was rewritten")
	}
	if opOf[*operator.Sum](t, e, entity.KindSubscription, sumURI).StateChanged() {
		t.Error("operator should be unmodified after commit")
	}
}

func TestEngine_UndefineDeletesItems(t *testing.T) {
	s := memory.New()
	e := New()
	populate(t, e)
	checkpointNow(t, e, s, storage.Full)

	if err := e.Undefine(entity.KindSubscription, sumURI); err != nil {
		t.Fatalf("Undefine: %v", err)
	}
	if err := e.Undefine(entity.KindSubscription, sumURI); !errors.Is(err, domain.ErrEntityNotFound) {
		t.Fatalf("second Undefine error = %v, want ErrEntityNotFound", err)
	}
	checkpointNow(t, e, s, storage.Differential)

	if _, ok := s.Version(entity.KindSubscription.String(), sumURI); ok {
		t.Error("definition item should be deleted")
	}
	if _, ok := s.Version(StateCategory(entity.KindSubscription), sumURI); ok {
		t.Error("state item should be deleted")
	}

	got, err := recoverInto(t, s)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if _, ok := got.Lookup(entity.KindSubscription, sumURI); ok {
		t.Error("undefined entity was recovered")
	}
}

func TestEngine_DefineConflict(t *testing.T) {
	e := New()
	if _, err := e.DefineExpr(entity.KindSubscription, sumURI, call(operator.SumName)); err != nil {
		t.Fatal(err)
	}
	_, err := e.DefineExpr(entity.KindSubscription, sumURI, call(operator.SumName))
	if !errors.Is(err, domain.ErrEntityConflict) {
		t.Errorf("error = %v, want ErrEntityConflict", err)
	}

	if _, err := e.DefineExpr(entity.KindSubscription, "rx://bad", expr.Constant(1)); err == nil {
		t.Error("subscription whose expression is not an operator should be rejected")
	}
}

type failingWriter struct {
	storage.StateWriter
}

func (w failingWriter) Commit(context.Context) error {
	return errors.New("disk full")
}

func TestEngine_OperatorsMarkedSavedOnlyAfterCommit(t *testing.T) {
	s := memory.New()
	e := New()
	populate(t, e)
	sum := opOf[*operator.Sum](t, e, entity.KindSubscription, sumURI)

	w, _ := s.Writer(storage.Full)
	err := e.Checkpoint(context.Background(), failingWriter{w}, nil)
	if !errors.Is(err, domain.ErrCheckpointFailed) {
		t.Fatalf("Checkpoint error = %v, want ErrCheckpointFailed", err)
	}
	if !sum.StateChanged() {
		t.Error("failed commit must leave operators dirty")
	}

	checkpointNow(t, e, s, storage.Full)
	if sum.StateChanged() {
		t.Error("committed checkpoint should mark operators saved")
	}
}

func TestEngine_CheckpointCanceled(t *testing.T) {
	s := memory.New()
	e := New()
	populate(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w, _ := s.Writer(storage.Full)
	if err := e.Checkpoint(ctx, w, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Checkpoint error = %v, want context.Canceled", err)
	}
	if s.Len() != 0 {
		t.Errorf("store holds %d items after canceled checkpoint", s.Len())
	}
}

func TestEngine_RecoverRequiresEmptyEngine(t *testing.T) {
	s := memory.New()
	e := New()
	populate(t, e)
	checkpointNow(t, e, s, storage.Full)

	r, _ := s.Reader()
	if err := e.Recover(context.Background(), r, nil); !errors.Is(err, ErrNotEmpty) {
		t.Fatalf("Recover error = %v, want ErrNotEmpty", err)
	}

	var last float64
	progress := ProgressFunc(func(p float64) { last = p })
	if err := e.Unload(context.Background(), progress); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if e.Len() != 0 || last != 100 {
		t.Fatalf("after Unload Len() = %d, progress = %v", e.Len(), last)
	}

	last = 0
	if err := e.Recover(context.Background(), r, progress); err != nil {
		t.Fatalf("Recover after Unload: %v", err)
	}
	if last != 100 {
		t.Errorf("final progress = %v, want 100", last)
	}

	// Unload does not schedule deletions.
	checkpointNow(t, e, s, storage.Differential)
	if _, ok := s.Version(entity.KindSubscription.String(), sumURI); !ok {
		t.Error("unload followed by recovery must not delete items")
	}
}

func TestEngine_RecoverMissingTemplate(t *testing.T) {
	s := memory.New()
	e := New()
	populate(t, e)
	checkpointNow(t, e, s, storage.Full)

	w, _ := s.Writer(storage.Differential)
	w.DeleteItem(entity.KindTemplate.String(), takeTemplate)
	if err := w.Commit(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, err := recoverInto(t, s)
	if !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Fatalf("Recover error = %v, want ErrTemplateNotFound", err)
	}
	if !errors.Is(err, domain.ErrRecoveryFailed) {
		t.Errorf("Recover error = %v, want ErrRecoveryFailed", err)
	}
	if got.Len() != 0 {
		t.Errorf("failed recovery left %d entities", got.Len())
	}
}

func TestEngine_RecoverCorruptedItem(t *testing.T) {
	s := memory.New()
	e := New()
	populate(t, e)
	checkpointNow(t, e, s, storage.Full)

	// Drop the terminator of the sum subscription's state.
	r, _ := s.Reader()
	ir, _, _ := r.GetItemReader(StateCategory(entity.KindSubscription), sumURI)
	data, _ := io.ReadAll(ir)
	r.Close()

	w, _ := s.Writer(storage.Differential)
	iw, _ := w.GetItemWriter(StateCategory(entity.KindSubscription), sumURI)
	iw.Write(data[:len(data)-4])
	iw.Close()
	if err := w.Commit(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := recoverInto(t, s)
	var fe *domain.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("Recover error = %v, want FormatError", err)
	}
	if !errors.Is(err, domain.ErrMissingTerminator) {
		t.Errorf("Recover error = %v, want ErrMissingTerminator", err)
	}
}

func TestEngine_RecoverUnframedTransitioningState(t *testing.T) {
	s := memory.New()
	e := New()
	populate(t, e)
	opOf[*operator.Sum](t, e, entity.KindSubscription, sumURI).Process(9)
	checkpointNow(t, e, s, storage.Full)

	// State written before operator state was framed: identity only.
	w, _ := s.Writer(storage.Differential)
	iw, _ := w.GetItemWriter(StateCategory(entity.KindSubscription), sumURI)
	err := checkpoint.WriteBlob(iw, serialization.DefaultPolicy(), func(ser serialization.Serializer) error {
		fw, err := framing.NewWriter(iw, ser)
		if err != nil {
			return err
		}
		fw.Write(operator.SumName)
		fw.Write(operator.SumVersion.String())
		return fw.Close()
	})
	if err != nil {
		t.Fatal(err)
	}
	iw.Close()
	if err := w.Commit(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, err := recoverInto(t, s)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if total, count := opOf[*operator.Sum](t, got, entity.KindSubscription, sumURI).Total(); total != 0 || count != 0 {
		t.Errorf("sum = (%d, %d), want empty state", total, count)
	}
}

func TestEngine_OperatorMismatch(t *testing.T) {
	s := memory.New()
	e := New()
	populate(t, e)
	checkpointNow(t, e, s, storage.Full)

	// Redefine the sum subscription as a take: state no longer matches.
	r, _ := s.Reader()
	defer r.Close()
	other := New()
	other.DefineExpr(entity.KindSubscription, sumURI, call(operator.TakeName, expr.Constant(1)))
	sub, _ := other.Lookup(entity.KindSubscription, sumURI)
	op := sub.(entity.Instance).Operator()

	if _, _, err := other.readState(r, entity.KindSubscription, sumURI, op); err == nil {
		t.Fatal("loading sum state into a take should fail")
	}
}

func TestEngine_Metrics(t *testing.T) {
	reg := metric.NewRegistry()
	s := memory.New()
	e := New(WithMetrics(reg))
	populate(t, e)
	checkpointNow(t, e, s, storage.Full)

	if got := testutil.ToFloat64(reg.Entities.WithLabelValues(entity.KindSubscription.String())); got != 3 {
		t.Errorf("subscriptions gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(reg.ItemsWritten.WithLabelValues(StateCategory(entity.KindSubscription))); got != 3 {
		t.Errorf("subscription state items = %v, want 3", got)
	}
	if testutil.ToFloat64(reg.BytesWritten) == 0 {
		t.Error("bytes written should be recorded")
	}

	if _, err := recoverInto(t, s, WithMetrics(reg)); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(reg.ItemsRead.WithLabelValues(entity.KindTemplate.String())); got != 1 {
		t.Errorf("template items read = %v, want 1", got)
	}
}

func TestEngine_JSONPolicy(t *testing.T) {
	policy := serialization.DefaultPolicy()
	if err := policy.SetDefault(serialization.JSONName, serialization.JSONVersion); err != nil {
		t.Fatal(err)
	}

	s := memory.New()
	e := New(WithPolicy(policy))
	populate(t, e)
	opOf[*operator.Sum](t, e, entity.KindSubscription, sumURI).Process(3)
	checkpointNow(t, e, s, storage.Full)

	// The reader resolves the serializer named in each header.
	got, err := recoverInto(t, s)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if total, _ := opOf[*operator.Sum](t, got, entity.KindSubscription, sumURI).Total(); total != 3 {
		t.Errorf("sum = %d, want 3", total)
	}
}

func TestEngine_RecoverCorruptValue(t *testing.T) {
	s := memory.New()
	e := New()
	populate(t, e)
	checkpointNow(t, e, s, storage.Full)

	// A well-formed frame holding a value chunk that does not decode.
	w, _ := s.Writer(storage.Differential)
	iw, _ := w.GetItemWriter(StateCategory(entity.KindSubscription), sumURI)
	err := checkpoint.WriteBlob(iw, serialization.DefaultPolicy(), func(ser serialization.Serializer) error {
		fw, err := framing.NewWriter(iw, ser)
		if err != nil {
			return err
		}
		fw.Write(operator.SumName)
		fw.Write(operator.SumVersion.String())
		child, err := fw.Child()
		if err != nil {
			return err
		}
		child.WriteBytes([]byte{0, 0, 0, 0})
		child.Close()
		return fw.Close()
	})
	if err != nil {
		t.Fatal(err)
	}
	iw.Close()
	if err := w.Commit(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, err := recoverInto(t, s)
	var fe *domain.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("Recover error = %v, want FormatError", err)
	}
	if !errors.Is(err, domain.ErrCorruptValue) {
		t.Errorf("Recover error = %v, want ErrCorruptValue", err)
	}
	if got.Len() != 0 {
		t.Errorf("failed recovery left %d entities", got.Len())
	}
}

func TestEngine_MutationDuringCheckpoint(t *testing.T) {
	s := memory.New()
	e := New()
	if _, err := e.DefineExpr(entity.KindSubscription, sumURI, call(operator.SumName)); err != nil {
		t.Fatal(err)
	}
	sum := opOf[*operator.Sum](t, e, entity.KindSubscription, sumURI)
	sum.Process(1)

	// Reports follow the definition and then the state item; the second
	// lands after the state was saved and before the commit.
	reports := 0
	progress := ProgressFunc(func(float64) {
		reports++
		if reports == 2 {
			sum.Process(100)
		}
	})
	w, _ := s.Writer(storage.Full)
	if err := e.Checkpoint(context.Background(), w, progress); err != nil {
		t.Fatal(err)
	}
	if !sum.StateChanged() {
		t.Fatal("mutation during checkpoint was marked saved")
	}

	checkpointNow(t, e, s, storage.Differential)
	if sum.StateChanged() {
		t.Error("StateChanged() after differential checkpoint = true")
	}

	got, err := recoverInto(t, s)
	if err != nil {
		t.Fatal(err)
	}
	if total, count := opOf[*operator.Sum](t, got, entity.KindSubscription, sumURI).Total(); total != 101 || count != 2 {
		t.Errorf("recovered sum = (%d, %d), want (101, 2)", total, count)
	}
}

func TestEngine_UndefineDuringFullCheckpoint(t *testing.T) {
	s := memory.New()
	e := New()
	populate(t, e)

	undefined := false
	progress := ProgressFunc(func(float64) {
		if !undefined {
			undefined = true
			if err := e.Undefine(entity.KindSubscription, sumURI); err != nil {
				t.Errorf("Undefine: %v", err)
			}
		}
	})
	w, _ := s.Writer(storage.Full)
	if err := e.Checkpoint(context.Background(), w, progress); err != nil {
		t.Fatal(err)
	}

	checkpointNow(t, e, s, storage.Differential)

	got, err := recoverInto(t, s)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.Lookup(entity.KindSubscription, sumURI); ok {
		t.Error("entity undefined during a full checkpoint came back on recovery")
	}
	if _, ok := got.Lookup(entity.KindSubscription, takeURI); !ok {
		t.Error("untouched entity missing after recovery")
	}
}
