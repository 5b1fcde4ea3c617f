// Package expr is the small expression tree entities are defined by.
//
// An entity's definition is an Expr: constants, parameters bound by an
// environment, lambdas, invocations, tuples and binary operators. Trees
// are compared structurally with Equal, evaluated with Eval and encoded
// with Marshal/Unmarshal.
//
// A templatized expression is an invocation of a named template with a
// single tuple argument whose components are constants or parameters:
//
//	Invoke(Parameter("rx://templates/take"), NewTuple(Constant(5), Parameter("src")))
//
// Such trees are persisted compactly as the template name plus the
// argument bindings (see Templatized and MarshalBindings).
package expr
