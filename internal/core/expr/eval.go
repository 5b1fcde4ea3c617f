package expr

import (
	"errors"
	"fmt"
)

// Evaluation errors.
var (
	ErrUnboundParameter = errors.New("expr: unbound parameter")
	ErrNotCallable      = errors.New("expr: value is not callable")
	ErrArity            = errors.New("expr: wrong number of arguments")
	ErrTypeMismatch     = errors.New("expr: operand type mismatch")
)

// Env resolves parameters during evaluation.
type Env interface {
	Lookup(name string) (any, bool)
}

// MapEnv is an Env over a map.
type MapEnv map[string]any

// Lookup implements Env.
func (m MapEnv) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// EnvFunc adapts a function to Env.
type EnvFunc func(name string) (any, bool)

// Lookup implements Env.
func (f EnvFunc) Lookup(name string) (any, bool) { return f(name) }

type scope struct {
	vars   map[string]any
	parent Env
}

func (s *scope) Lookup(name string) (any, bool) {
	if v, ok := s.vars[name]; ok {
		return v, true
	}
	if s.parent == nil {
		return nil, false
	}
	return s.parent.Lookup(name)
}

// Closure is the runtime value of a lambda.
type Closure struct {
	Lambda *LambdaExpr
	Env    Env
}

// Call applies the closure to args.
func (c *Closure) Call(args ...any) (any, error) {
	if len(args) != len(c.Lambda.Params) {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrArity, len(c.Lambda.Params), len(args))
	}
	vars := make(map[string]any, len(args))
	for i, p := range c.Lambda.Params {
		vars[p] = args[i]
	}
	return Eval(c.Lambda.Body, &scope{vars: vars, parent: c.Env})
}

// Func is a host function callable from expressions.
type Func func(args ...any) (any, error)

// Eval evaluates e in env. env may be nil.
func Eval(e Expr, env Env) (any, error) {
	switch x := e.(type) {
	case *ConstantExpr:
		return x.Value, nil
	case *ParameterExpr:
		if env != nil {
			if v, ok := env.Lookup(x.Name); ok {
				return v, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrUnboundParameter, x.Name)
	case *LambdaExpr:
		return &Closure{Lambda: x, Env: env}, nil
	case *InvokeExpr:
		return evalInvoke(x, env)
	case *NewTupleExpr:
		items := x.Flatten()
		out := make(Tuple, len(items))
		for i, item := range items {
			v, err := Eval(item, env)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *TupleItemExpr:
		v, err := Eval(x.Tuple, env)
		if err != nil {
			return nil, err
		}
		t, ok := v.(Tuple)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not a tuple", ErrTypeMismatch, v)
		}
		item, ok := t.Item(x.Index)
		if !ok {
			return nil, fmt.Errorf("expr: tuple index %d out of range [0,%d)", x.Index, len(t))
		}
		return item, nil
	case *BinaryExpr:
		l, err := Eval(x.Left, env)
		if err != nil {
			return nil, err
		}
		r, err := Eval(x.Right, env)
		if err != nil {
			return nil, err
		}
		return x.Op.apply(l, r)
	case nil:
		return nil, errors.New("expr: nil expression")
	}
	return nil, fmt.Errorf("expr: cannot evaluate %T", e)
}

func evalInvoke(x *InvokeExpr, env Env) (any, error) {
	fn, err := Eval(x.Fn, env)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(x.Args))
	for i, a := range x.Args {
		if args[i], err = Eval(a, env); err != nil {
			return nil, err
		}
	}
	switch f := fn.(type) {
	case *Closure:
		return f.Call(args...)
	case Func:
		return f(args...)
	case func(args ...any) (any, error):
		return f(args...)
	}
	return nil, fmt.Errorf("%w: %T", ErrNotCallable, fn)
}

// BinaryOp is a binary operator. Values are part of the wire format.
type BinaryOp int16

const (
	OpAdd BinaryOp = iota + 1
	OpSub
	OpMul
	OpEq
	OpNe
	OpLt
	OpGt
)

var opSymbols = map[BinaryOp]string{
	OpAdd: "+", OpSub: "-", OpMul: "*",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpGt: ">",
}

func (op BinaryOp) String() string {
	if s, ok := opSymbols[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int16(op))
}

func (op BinaryOp) apply(l, r any) (any, error) {
	switch op {
	case OpEq:
		return constantEqual(l, r), nil
	case OpNe:
		return !constantEqual(l, r), nil
	}

	switch a := l.(type) {
	case int64:
		b, ok := r.(int64)
		if !ok {
			break
		}
		switch op {
		case OpAdd:
			return a + b, nil
		case OpSub:
			return a - b, nil
		case OpMul:
			return a * b, nil
		case OpLt:
			return a < b, nil
		case OpGt:
			return a > b, nil
		}
	case float64:
		b, ok := r.(float64)
		if !ok {
			break
		}
		switch op {
		case OpAdd:
			return a + b, nil
		case OpSub:
			return a - b, nil
		case OpMul:
			return a * b, nil
		case OpLt:
			return a < b, nil
		case OpGt:
			return a > b, nil
		}
	case string:
		b, ok := r.(string)
		if !ok {
			break
		}
		switch op {
		case OpAdd:
			return a + b, nil
		case OpLt:
			return a < b, nil
		case OpGt:
			return a > b, nil
		}
	}
	return nil, fmt.Errorf("%w: %T %s %T", ErrTypeMismatch, l, op, r)
}
