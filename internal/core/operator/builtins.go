package operator

import (
	"fmt"

	"github.com/yndnr/reactq/internal/core/expr"
)

// Builtins returns expression functions constructing the reference
// operators, keyed by operator name. Subscription expressions invoke them
// to build their operator instances.
func Builtins() map[string]expr.Func {
	return map[string]expr.Func{
		SumName: func(args ...any) (any, error) {
			if len(args) != 0 {
				return nil, fmt.Errorf("%s: takes no arguments", SumName)
			}
			return NewSum(), nil
		},
		TakeName: func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("%s: want 1 argument, got %d", TakeName, len(args))
			}
			n, ok := args[0].(int64)
			if !ok {
				return nil, fmt.Errorf("%s: count must be an integer, got %T", TakeName, args[0])
			}
			return NewTake(n)
		},
		PipeName: func(args ...any) (any, error) {
			stages := make([]Stage, 0, len(args))
			for i, a := range args {
				s, ok := a.(Stage)
				if !ok {
					return nil, fmt.Errorf("%s: argument %d is %T, not an operator", PipeName, i, a)
				}
				stages = append(stages, s)
			}
			return NewComposite(stages...), nil
		},
	}
}
