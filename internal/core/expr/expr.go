package expr

import (
	"fmt"
	"reflect"
	"strings"
)

// Kind discriminates expression nodes. Values are part of the wire format.
type Kind int16

const (
	KindConstant Kind = iota + 1
	KindParameter
	KindLambda
	KindInvoke
	KindNewTuple
	KindTupleItem
	KindBinary
)

var kindNames = map[Kind]string{
	KindConstant:  "Constant",
	KindParameter: "Parameter",
	KindLambda:    "Lambda",
	KindInvoke:    "Invoke",
	KindNewTuple:  "NewTuple",
	KindTupleItem: "TupleItem",
	KindBinary:    "Binary",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int16(k))
}

// Expr is an expression node.
type Expr interface {
	Kind() Kind
	String() string
}

// ConstantExpr is a literal value. Values are normalized by Constant.
type ConstantExpr struct {
	Value any
}

// ParameterExpr is a free variable resolved by the evaluation environment.
type ParameterExpr struct {
	Name string
}

// LambdaExpr is a function of named parameters.
type LambdaExpr struct {
	Params []string
	Body   Expr
}

// InvokeExpr applies Fn to Args.
type InvokeExpr struct {
	Fn   Expr
	Args []Expr
}

// NewTupleExpr builds a tuple. At most MaxTupleArity items are held
// directly; longer tuples nest the remainder in Rest.
type NewTupleExpr struct {
	Items []Expr
	Rest  *NewTupleExpr
}

// TupleItemExpr selects a component of a tuple by flattened index.
type TupleItemExpr struct {
	Tuple Expr
	Index int
}

// BinaryExpr applies an arithmetic or comparison operator.
type BinaryExpr struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (*ConstantExpr) Kind() Kind  { return KindConstant }
func (*ParameterExpr) Kind() Kind { return KindParameter }
func (*LambdaExpr) Kind() Kind    { return KindLambda }
func (*InvokeExpr) Kind() Kind    { return KindInvoke }
func (*NewTupleExpr) Kind() Kind  { return KindNewTuple }
func (*TupleItemExpr) Kind() Kind { return KindTupleItem }
func (*BinaryExpr) Kind() Kind    { return KindBinary }

// Constant creates a constant node. Integer types widen to int64 and
// float32 widens to float64.
func Constant(v any) *ConstantExpr {
	return &ConstantExpr{Value: normalize(v)}
}

// Parameter creates a parameter reference.
func Parameter(name string) *ParameterExpr {
	return &ParameterExpr{Name: name}
}

// Lambda creates a lambda.
func Lambda(body Expr, params ...string) *LambdaExpr {
	return &LambdaExpr{Params: params, Body: body}
}

// Invoke creates an invocation.
func Invoke(fn Expr, args ...Expr) *InvokeExpr {
	return &InvokeExpr{Fn: fn, Args: args}
}

// TupleItem creates a tuple component selector.
func TupleItem(tuple Expr, index int) *TupleItemExpr {
	return &TupleItemExpr{Tuple: tuple, Index: index}
}

// Binary creates a binary operator node.
func Binary(op BinaryOp, left, right Expr) *BinaryExpr {
	return &BinaryExpr{Op: op, Left: left, Right: right}
}

func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	}
	return v
}

func (e *ConstantExpr) String() string {
	if s, ok := e.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", e.Value)
}

func (e *ParameterExpr) String() string { return e.Name }

func (e *LambdaExpr) String() string {
	return fmt.Sprintf("(%s) => %s", strings.Join(e.Params, ", "), e.Body)
}

func (e *InvokeExpr) String() string {
	return fmt.Sprintf("%s(%s)", e.Fn, join(e.Args))
}

func (e *NewTupleExpr) String() string {
	return fmt.Sprintf("(%s)", join(e.Flatten()))
}

func (e *TupleItemExpr) String() string {
	return fmt.Sprintf("%s.Item%d", e.Tuple, e.Index+1)
}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

func join(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case *ConstantExpr:
		return constantEqual(x.Value, b.(*ConstantExpr).Value)
	case *ParameterExpr:
		return x.Name == b.(*ParameterExpr).Name
	case *LambdaExpr:
		y := b.(*LambdaExpr)
		if len(x.Params) != len(y.Params) {
			return false
		}
		for i := range x.Params {
			if x.Params[i] != y.Params[i] {
				return false
			}
		}
		return Equal(x.Body, y.Body)
	case *InvokeExpr:
		y := b.(*InvokeExpr)
		return Equal(x.Fn, y.Fn) && equalAll(x.Args, y.Args)
	case *NewTupleExpr:
		return equalAll(x.Flatten(), b.(*NewTupleExpr).Flatten())
	case *TupleItemExpr:
		y := b.(*TupleItemExpr)
		return x.Index == y.Index && Equal(x.Tuple, y.Tuple)
	case *BinaryExpr:
		y := b.(*BinaryExpr)
		return x.Op == y.Op && Equal(x.Left, y.Left) && Equal(x.Right, y.Right)
	}
	return false
}

func equalAll(a, b []Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func constantEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
