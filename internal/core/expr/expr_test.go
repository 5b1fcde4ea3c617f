package expr

import (
	"errors"
	"testing"

	"github.com/yndnr/reactq/internal/core/domain"
)

func nineArgs() []Expr {
	args := make([]Expr, 0, 9)
	for i := 0; i < 8; i++ {
		args = append(args, Constant(i))
	}
	return append(args, Parameter("source"))
}

func TestNewTuple_Nesting(t *testing.T) {
	tuple := NewTuple(nineArgs()...)

	if len(tuple.Items) != MaxTupleArity {
		t.Errorf("len(Items) = %d, want %d", len(tuple.Items), MaxTupleArity)
	}
	if tuple.Rest == nil || len(tuple.Rest.Items) != 2 {
		t.Fatalf("Rest = %v, want 2 nested items", tuple.Rest)
	}
	if tuple.Arity() != 9 {
		t.Errorf("Arity() = %d, want 9", tuple.Arity())
	}

	v, err := Eval(TupleItem(tuple, 8), MapEnv{"source": "xs"})
	if err != nil || v != "xs" {
		t.Errorf("Eval(Item9) = %v, %v; want xs", v, err)
	}
}

func TestEval(t *testing.T) {
	double := Lambda(Binary(OpMul, Parameter("x"), Constant(2)), "x")

	tests := []struct {
		name string
		expr Expr
		env  Env
		want any
	}{
		{"constant", Constant(int32(7)), nil, int64(7)},
		{"parameter", Parameter("n"), MapEnv{"n": int64(3)}, int64(3)},
		{"add", Binary(OpAdd, Constant(1), Constant(2)), nil, int64(3)},
		{"string concat", Binary(OpAdd, Constant("a"), Constant("b")), nil, "ab"},
		{"less", Binary(OpLt, Constant(1.5), Constant(2.5)), nil, true},
		{"equal", Binary(OpEq, Constant("x"), Constant("x")), nil, true},
		{"lambda invoke", Invoke(double, Constant(21)), nil, int64(42)},
		{
			"host function",
			Invoke(Parameter("len"), Constant("abcd")),
			MapEnv{"len": Func(func(args ...any) (any, error) { return int64(len(args[0].(string))), nil })},
			int64(4),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.expr, tt.env)
			if err != nil {
				t.Fatalf("Eval() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Eval() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestEval_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want error
	}{
		{"unbound", Parameter("missing"), ErrUnboundParameter},
		{"not callable", Invoke(Constant(1)), ErrNotCallable},
		{"arity", Invoke(Lambda(Parameter("x"), "x")), ErrArity},
		{"type mismatch", Binary(OpAdd, Constant(1), Constant("a")), ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Eval(tt.expr, nil); !errors.Is(err, tt.want) {
				t.Errorf("Eval() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEval_TemplateInvocation(t *testing.T) {
	// A template takes one tuple argument and projects its components.
	template := Lambda(
		Binary(OpAdd, TupleItem(Parameter("args"), 0), TupleItem(Parameter("args"), 1)),
		"args",
	)
	call := Instantiate("rx://templates/add", []Expr{Constant(40), Parameter("two")})

	env := MapEnv{"two": int64(2)}
	env["rx://templates/add"] = &Closure{Lambda: template, Env: env}

	got, err := Eval(call, env)
	if err != nil || got != int64(42) {
		t.Errorf("Eval() = %v, %v; want 42", got, err)
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
	}{
		{"constant nil", Constant(nil)},
		{"constant bytes", Constant([]byte{1, 2, 3})},
		{"lambda", Lambda(Binary(OpGt, Parameter("x"), Constant(0.5)), "x")},
		{"invoke", Invoke(Parameter("f"), Constant(true), Constant("s"))},
		{"nested tuple", NewTuple(nineArgs()...)},
		{"tuple item", TupleItem(NewTuple(Constant(1), Constant(2)), 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.expr)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			got, err := Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !Equal(got, tt.expr) {
				t.Errorf("round trip = %s, want %s", got, tt.expr)
			}
		})
	}
}

func TestMarshal_Errors(t *testing.T) {
	if _, err := Marshal(Constant(struct{}{})); !errors.Is(err, ErrUnsupportedConstant) {
		t.Errorf("Marshal(struct) error = %v, want ErrUnsupportedConstant", err)
	}

	original := Invoke(Parameter("f"), Constant("long argument"))
	data, err := Marshal(original)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := Unmarshal(data[:len(data)-4]); err == nil && Equal(got, original) {
		t.Error("Unmarshal(truncated) should not reproduce the original")
	}
}

func TestTemplatized(t *testing.T) {
	tests := []struct {
		name     string
		expr     Expr
		wantName string
		wantArgs int
		wantOK   bool
	}{
		{"template call", Instantiate("rx://t", []Expr{Constant(1), Parameter("p")}), "rx://t", 2, true},
		{"nine args", Instantiate("rx://t9", nineArgs()), "rx://t9", 9, true},
		{"non tuple argument", Invoke(Parameter("rx://t"), Constant(1)), "", 0, false},
		{"computed component", Instantiate("rx://t", []Expr{Binary(OpAdd, Constant(1), Constant(2))}), "", 0, false},
		{"lambda callee", Invoke(Lambda(Parameter("x"), "x"), NewTuple(Constant(1))), "", 0, false},
		{"not invoke", Constant(1), "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args, ok := Templatized(tt.expr)
			if ok != tt.wantOK || name != tt.wantName || len(args) != tt.wantArgs {
				t.Errorf("Templatized() = %q, %d args, %v; want %q, %d, %v",
					name, len(args), ok, tt.wantName, tt.wantArgs, tt.wantOK)
			}
		})
	}
}

func TestBindings_NineComponents(t *testing.T) {
	call := Instantiate("rx://templates/nine", nineArgs())
	name, args, ok := Templatized(call)
	if !ok {
		t.Fatal("Templatized() = false")
	}

	data, err := MarshalBindings(args)
	if err != nil {
		t.Fatalf("MarshalBindings() error = %v", err)
	}
	decoded, err := UnmarshalBindings(data)
	if err != nil {
		t.Fatalf("UnmarshalBindings() error = %v", err)
	}
	rebuilt := Instantiate(name, decoded)
	if !Equal(rebuilt, call) {
		t.Errorf("rebuilt = %s, want %s", rebuilt, call)
	}
	tuple := rebuilt.Args[0].(*NewTupleExpr)
	if tuple.Rest == nil {
		t.Error("rebuilt tuple should nest components beyond seven")
	}
}

func TestBindings_Unsupported(t *testing.T) {
	_, err := MarshalBindings([]Expr{Lambda(Constant(1))})
	if !errors.Is(err, domain.ErrUnsupportedBinding) {
		t.Errorf("MarshalBindings() error = %v, want ErrUnsupportedBinding", err)
	}
}

func TestUnmarshal_CorruptData(t *testing.T) {
	for _, data := range [][]byte{nil, {0x01}, {0x07, 0x01}} {
		if _, err := Unmarshal(data); !errors.Is(err, domain.ErrCorruptValue) {
			t.Errorf("Unmarshal(%v) error = %v, want ErrCorruptValue", data, err)
		}
		if _, err := UnmarshalBindings(data); !errors.Is(err, domain.ErrCorruptValue) {
			t.Errorf("UnmarshalBindings(%v) error = %v, want ErrCorruptValue", data, err)
		}
	}
}
