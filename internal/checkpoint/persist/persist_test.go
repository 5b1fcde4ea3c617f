package persist

import (
	"errors"
	"io"
	"testing"

	"github.com/yndnr/reactq/internal/checkpoint/framing"
	"github.com/yndnr/reactq/internal/checkpoint/serialization"
	"github.com/yndnr/reactq/internal/core/domain"
	"github.com/yndnr/reactq/internal/core/entity"
	"github.com/yndnr/reactq/internal/core/expr"
	"github.com/yndnr/reactq/pkg/seekbuf"
)

var (
	v1  = serialization.V(1, 0, 0, 0)
	v2  = serialization.V(2, 5, 0, 0)
	v3  = serialization.V(3, 0, 0, 0)
	ser = serialization.NewBintly(serialization.BintlyVersion)
)

const templateName = "rx://templates/window"

func templates() TemplateResolver {
	tpl := expr.Lambda(expr.TupleItem(expr.Parameter("args"), 0), "args")
	return TemplateResolverFunc(func(name string) (expr.Expr, bool) {
		if name == templateName {
			return tpl, true
		}
		return nil, false
	})
}

func nineBindings() []expr.Expr {
	args := []expr.Expr{expr.Parameter("source")}
	for i := 1; i < 9; i++ {
		args = append(args, expr.Constant(i*10))
	}
	return args
}

func roundTrip(t *testing.T, version serialization.Version, e entity.Entity, res TemplateResolver) (entity.Entity, error) {
	t.Helper()
	buf := &seekbuf.Buffer{}

	pw, err := NewWriter(version)
	if err != nil {
		t.Fatal(err)
	}
	w, _ := framing.NewWriter(buf, ser)
	if err := pw.WriteEntity(w, e); err != nil {
		t.Fatalf("WriteEntity() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	buf.Seek(0, io.SeekStart)
	pr, err := NewReader(version, res)
	if err != nil {
		t.Fatal(err)
	}
	r, err := framing.NewReader(buf, ser)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	return pr.ReadEntity(r)
}

func TestEntity_RoundTrip(t *testing.T) {
	templatized := expr.Instantiate(templateName, nineBindings())
	raw := expr.Lambda(expr.Binary(expr.OpAdd, expr.Parameter("x"), expr.Constant(1)), "x")

	tests := []struct {
		name    string
		version serialization.Version
		kind    entity.Kind
		expr    expr.Expr
		state   []byte
	}{
		{"v3 templatized with nine bindings", v3, entity.KindObservable, templatized, nil},
		{"v3 raw expression", v3, entity.KindObserver, raw, []byte("opaque")},
		{"v1 templatized written raw", v1, entity.KindSubscription, templatized, nil},
		{"v2 uses the v1 encoding", v2, entity.KindStreamFactory, raw, []byte{}},
		{"template definition", v3, entity.KindTemplate, raw, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := entity.New(tt.kind, "rx://entities/"+tt.kind.String(), tt.expr)
			if err != nil {
				t.Fatal(err)
			}
			if tt.state != nil {
				in.SetState(tt.state)
			}

			out, err := roundTrip(t, tt.version, in, templates())
			if err != nil {
				t.Fatalf("ReadEntity() error = %v", err)
			}
			if out.Kind() != in.Kind() || out.URI() != in.URI() {
				t.Errorf("read %s %s, want %s %s", out.Kind(), out.URI(), in.Kind(), in.URI())
			}
			if !expr.Equal(out.Expression(), in.Expression()) {
				t.Errorf("expression = %s, want %s", out.Expression(), in.Expression())
			}
			gotState, gotOK := out.State()
			wantState, wantOK := in.State()
			if gotOK != wantOK || string(gotState) != string(wantState) {
				t.Errorf("state = %q/%v, want %q/%v", gotState, gotOK, wantState, wantOK)
			}
			if !out.Persisted() {
				t.Error("OnPersisted() was not called")
			}
		})
	}
}

func TestEntity_TemplateNotFound(t *testing.T) {
	in, _ := entity.New(entity.KindObservable, "rx://obs", expr.Instantiate("rx://templates/missing", []expr.Expr{expr.Constant(1)}))
	_, err := roundTrip(t, v3, in, templates())
	if !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Errorf("ReadEntity() error = %v, want ErrTemplateNotFound", err)
	}
}

func TestEntity_InvalidTemplate(t *testing.T) {
	in, _ := entity.New(entity.KindObservable, "rx://obs", expr.Instantiate("rx://templates/const", []expr.Expr{expr.Constant(1)}))
	res := TemplateResolverFunc(func(string) (expr.Expr, bool) { return expr.Constant(1), true })
	_, err := roundTrip(t, v3, in, res)
	if !errors.Is(err, domain.ErrInvalidTemplateArgument) {
		t.Errorf("ReadEntity() error = %v, want ErrInvalidTemplateArgument", err)
	}
}

func TestEntity_ReliablePayload(t *testing.T) {
	in, _ := entity.New(entity.KindReliableSubscription, "rx://rsub", expr.Constant(1))
	in.(*entity.ReliableSubscription).Acknowledge(77)

	out, err := roundTrip(t, v3, in, nil)
	if err != nil {
		t.Fatalf("ReadEntity() error = %v", err)
	}
	if got := out.(*entity.ReliableSubscription).Acknowledged(); got != 77 {
		t.Errorf("Acknowledged() = %d, want 77", got)
	}
}

func TestEntity_UnknownKind(t *testing.T) {
	buf := &seekbuf.Buffer{}
	w, _ := framing.NewWriter(buf, ser)
	w.Write(int32(42))
	w.Write(false)
	data, _ := expr.Marshal(expr.Constant(1))
	w.Write(data)
	w.Write("rx://unknown")
	w.Write(false)
	w.Close()

	buf.Seek(0, io.SeekStart)
	r, _ := framing.NewReader(buf, ser)
	defer r.Close()
	pr, _ := NewReader(v3, nil)
	if _, err := pr.ReadEntity(r); !errors.Is(err, domain.ErrUnknownEntityKind) {
		t.Errorf("ReadEntity() error = %v, want ErrUnknownEntityKind", err)
	}
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		version serialization.Version
		want    expressionFormat
	}{
		{v1, rawFormat{}},
		{v2, rawFormat{}},
		{v3, templatedFormat{}},
		{serialization.V(4, 0, 0, 0), templatedFormat{}},
	}
	for _, tt := range tests {
		t.Run(tt.version.String(), func(t *testing.T) {
			got, err := formatFor(tt.version)
			if err != nil || got != tt.want {
				t.Errorf("formatFor() = %T, %v; want %T", got, err, tt.want)
			}
		})
	}
	if _, err := formatFor(serialization.V(0, 9, 0, 0)); !errors.Is(err, domain.ErrUnsupportedVersion) {
		t.Errorf("formatFor(0.9) error = %v", err)
	}
}
