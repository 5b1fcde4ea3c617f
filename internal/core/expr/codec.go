package expr

import (
	"errors"
	"fmt"

	"github.com/viant/bintly"

	"github.com/yndnr/reactq/internal/core/domain"
)

// ErrUnsupportedConstant is returned when a constant holds a type the
// codec cannot encode.
var ErrUnsupportedConstant = errors.New("expr: unsupported constant type")

// Constant type tags.
const (
	constNil int16 = iota
	constBool
	constInt64
	constFloat64
	constString
	constBytes
)

var (
	writers = bintly.NewWriters()
	readers = bintly.NewReaders()
)

// Marshal encodes e as a self-describing tree.
func Marshal(e Expr) ([]byte, error) {
	w := writers.Get()
	defer writers.Put(w)
	if err := encode(w, e); err != nil {
		return nil, err
	}
	return append([]byte(nil), w.Bytes()...), nil
}

// Unmarshal decodes a tree produced by Marshal.
func Unmarshal(data []byte) (e Expr, err error) {
	r := readers.Get()
	defer readers.Put(r)
	defer func() {
		if p := recover(); p != nil {
			e, err = nil, domain.ErrCorruptValue.WithDetailsf("expr: truncated expression: %v", p)
		}
	}()
	if len(data) == 0 {
		return nil, domain.ErrCorruptValue.WithDetails("expr: empty expression")
	}
	if err := r.FromBytes(data); err != nil {
		return nil, domain.ErrCorruptValue.WithDetails("expr: expression").WithCause(err)
	}
	return decode(r)
}

func encode(w *bintly.Writer, e Expr) error {
	if e == nil {
		return errors.New("expr: cannot encode nil expression")
	}
	w.Int16(int16(e.Kind()))
	switch x := e.(type) {
	case *ConstantExpr:
		return encodeConstant(w, x.Value)
	case *ParameterExpr:
		w.String(x.Name)
	case *LambdaExpr:
		w.Strings(x.Params)
		return encode(w, x.Body)
	case *InvokeExpr:
		if err := encode(w, x.Fn); err != nil {
			return err
		}
		return encodeList(w, x.Args)
	case *NewTupleExpr:
		if err := encodeList(w, x.Items); err != nil {
			return err
		}
		w.Bool(x.Rest != nil)
		if x.Rest != nil {
			return encode(w, x.Rest)
		}
	case *TupleItemExpr:
		w.Int32(int32(x.Index))
		return encode(w, x.Tuple)
	case *BinaryExpr:
		w.Int16(int16(x.Op))
		if err := encode(w, x.Left); err != nil {
			return err
		}
		return encode(w, x.Right)
	default:
		return fmt.Errorf("expr: cannot encode %T", e)
	}
	return nil
}

func encodeList(w *bintly.Writer, es []Expr) error {
	w.Int32(int32(len(es)))
	for _, e := range es {
		if err := encode(w, e); err != nil {
			return err
		}
	}
	return nil
}

func encodeConstant(w *bintly.Writer, v any) error {
	switch x := v.(type) {
	case nil:
		w.Int16(constNil)
	case bool:
		w.Int16(constBool)
		w.Bool(x)
	case int64:
		w.Int16(constInt64)
		w.Int64(x)
	case float64:
		w.Int16(constFloat64)
		w.Float64(x)
	case string:
		w.Int16(constString)
		w.String(x)
	case []byte:
		w.Int16(constBytes)
		w.Uint8s(x)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedConstant, v)
	}
	return nil
}

func decode(r *bintly.Reader) (Expr, error) {
	var k int16
	r.Int16(&k)
	switch Kind(k) {
	case KindConstant:
		v, err := decodeConstant(r)
		if err != nil {
			return nil, err
		}
		return &ConstantExpr{Value: v}, nil
	case KindParameter:
		var name string
		r.String(&name)
		return Parameter(name), nil
	case KindLambda:
		var params []string
		r.Strings(&params)
		body, err := decode(r)
		if err != nil {
			return nil, err
		}
		return Lambda(body, params...), nil
	case KindInvoke:
		fn, err := decode(r)
		if err != nil {
			return nil, err
		}
		args, err := decodeList(r)
		if err != nil {
			return nil, err
		}
		return Invoke(fn, args...), nil
	case KindNewTuple:
		items, err := decodeList(r)
		if err != nil {
			return nil, err
		}
		t := &NewTupleExpr{Items: items}
		var hasRest bool
		r.Bool(&hasRest)
		if hasRest {
			rest, err := decode(r)
			if err != nil {
				return nil, err
			}
			nested, ok := rest.(*NewTupleExpr)
			if !ok {
				return nil, fmt.Errorf("expr: tuple rest is %s", rest.Kind())
			}
			t.Rest = nested
		}
		return t, nil
	case KindTupleItem:
		var index int32
		r.Int32(&index)
		tuple, err := decode(r)
		if err != nil {
			return nil, err
		}
		return TupleItem(tuple, int(index)), nil
	case KindBinary:
		var op int16
		r.Int16(&op)
		left, err := decode(r)
		if err != nil {
			return nil, err
		}
		right, err := decode(r)
		if err != nil {
			return nil, err
		}
		return Binary(BinaryOp(op), left, right), nil
	}
	return nil, fmt.Errorf("expr: unknown node kind %d", k)
}

func decodeList(r *bintly.Reader) ([]Expr, error) {
	var n int32
	r.Int32(&n)
	if n < 0 {
		return nil, fmt.Errorf("expr: negative list length %d", n)
	}
	out := make([]Expr, 0, min(int(n), 64))
	for i := int32(0); i < n; i++ {
		e, err := decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeConstant(r *bintly.Reader) (any, error) {
	var tag int16
	r.Int16(&tag)
	switch tag {
	case constNil:
		return nil, nil
	case constBool:
		var v bool
		r.Bool(&v)
		return v, nil
	case constInt64:
		var v int64
		r.Int64(&v)
		return v, nil
	case constFloat64:
		var v float64
		r.Float64(&v)
		return v, nil
	case constString:
		var v string
		r.String(&v)
		return v, nil
	case constBytes:
		var v []byte
		r.Uint8s(&v)
		return v, nil
	}
	return nil, fmt.Errorf("%w: tag %d", ErrUnsupportedConstant, tag)
}
