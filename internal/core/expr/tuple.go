package expr

// MaxTupleArity is the number of components a tuple node holds before
// nesting the remainder in Rest.
const MaxTupleArity = 7

// NewTuple creates a tuple of items, nesting beyond MaxTupleArity.
func NewTuple(items ...Expr) *NewTupleExpr {
	if len(items) <= MaxTupleArity {
		return &NewTupleExpr{Items: items}
	}
	return &NewTupleExpr{
		Items: items[:MaxTupleArity],
		Rest:  NewTuple(items[MaxTupleArity:]...),
	}
}

// Flatten returns the tuple's components in order, following Rest.
func (e *NewTupleExpr) Flatten() []Expr {
	out := make([]Expr, 0, len(e.Items))
	for t := e; t != nil; t = t.Rest {
		out = append(out, t.Items...)
	}
	return out
}

// Arity is the flattened component count.
func (e *NewTupleExpr) Arity() int {
	n := 0
	for t := e; t != nil; t = t.Rest {
		n += len(t.Items)
	}
	return n
}

// Tuple is the runtime value of a tuple expression.
type Tuple []any

// Item returns component i.
func (t Tuple) Item(i int) (any, bool) {
	if i < 0 || i >= len(t) {
		return nil, false
	}
	return t[i], true
}
