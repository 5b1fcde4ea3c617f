package expr

import (
	"fmt"

	"github.com/viant/bintly"

	"github.com/yndnr/reactq/internal/core/domain"
)

// Binding tags.
const (
	bindConstant int16 = iota
	bindParameter
)

// Templatized reports whether e is an invocation of a named template with
// a tuple of constant and parameter bindings, and if so returns the
// template name and the flattened bindings.
func Templatized(e Expr) (name string, args []Expr, ok bool) {
	inv, isInvoke := e.(*InvokeExpr)
	if !isInvoke || len(inv.Args) != 1 {
		return "", nil, false
	}
	fn, isParam := inv.Fn.(*ParameterExpr)
	if !isParam {
		return "", nil, false
	}
	tuple, isTuple := inv.Args[0].(*NewTupleExpr)
	if !isTuple {
		return "", nil, false
	}
	args = tuple.Flatten()
	for _, a := range args {
		switch a.(type) {
		case *ConstantExpr, *ParameterExpr:
		default:
			return "", nil, false
		}
	}
	return fn.Name, args, true
}

// Instantiate rebuilds the templatized invocation of name with args.
func Instantiate(name string, args []Expr) *InvokeExpr {
	return Invoke(Parameter(name), NewTuple(args...))
}

// MarshalBindings encodes template arguments as one tag and payload per
// component. Components must be constants or parameters.
func MarshalBindings(args []Expr) ([]byte, error) {
	w := writers.Get()
	defer writers.Put(w)

	w.Int32(int32(len(args)))
	for i, a := range args {
		switch x := a.(type) {
		case *ConstantExpr:
			w.Int16(bindConstant)
			if err := encodeConstant(w, x.Value); err != nil {
				return nil, domain.ErrUnsupportedBinding.WithDetailsf("component %d", i).WithCause(err)
			}
		case *ParameterExpr:
			w.Int16(bindParameter)
			w.String(x.Name)
		default:
			return nil, domain.ErrUnsupportedBinding.WithDetailsf("component %d is %s", i, kindOf(a))
		}
	}
	return append([]byte(nil), w.Bytes()...), nil
}

// UnmarshalBindings decodes arguments written by MarshalBindings.
func UnmarshalBindings(data []byte) (args []Expr, err error) {
	r := readers.Get()
	defer readers.Put(r)
	defer func() {
		if p := recover(); p != nil {
			args, err = nil, domain.ErrCorruptValue.WithDetailsf("expr: truncated bindings: %v", p)
		}
	}()
	if len(data) == 0 {
		return nil, domain.ErrCorruptValue.WithDetails("expr: empty bindings")
	}
	if err := r.FromBytes(data); err != nil {
		return nil, domain.ErrCorruptValue.WithDetails("expr: bindings").WithCause(err)
	}
	return decodeBindings(r)
}

func decodeBindings(r *bintly.Reader) ([]Expr, error) {
	var n int32
	r.Int32(&n)
	if n < 0 {
		return nil, fmt.Errorf("expr: negative binding count %d", n)
	}
	args := make([]Expr, 0, min(int(n), 64))
	for i := int32(0); i < n; i++ {
		var tag int16
		r.Int16(&tag)
		switch tag {
		case bindConstant:
			v, err := decodeConstant(r)
			if err != nil {
				return nil, domain.ErrUnsupportedBinding.WithDetailsf("component %d", i).WithCause(err)
			}
			args = append(args, &ConstantExpr{Value: v})
		case bindParameter:
			var name string
			r.String(&name)
			args = append(args, Parameter(name))
		default:
			return nil, domain.ErrUnsupportedBinding.WithDetailsf("component %d has tag %d", i, tag)
		}
	}
	return args, nil
}

func kindOf(e Expr) string {
	if e == nil {
		return "nil"
	}
	return e.Kind().String()
}
