package persist

import (
	"fmt"
	"sort"

	"github.com/yndnr/reactq/internal/checkpoint/framing"
	"github.com/yndnr/reactq/internal/checkpoint/serialization"
	"github.com/yndnr/reactq/internal/core/domain"
	"github.com/yndnr/reactq/internal/core/expr"
)

// TemplateResolver looks up template definitions by name during recovery.
type TemplateResolver interface {
	Template(name string) (expr.Expr, bool)
}

// TemplateResolverFunc adapts a function to TemplateResolver.
type TemplateResolverFunc func(name string) (expr.Expr, bool)

// Template implements TemplateResolver.
func (f TemplateResolverFunc) Template(name string) (expr.Expr, bool) { return f(name) }

// expressionFormat encodes entity expressions for one range of format
// versions.
type expressionFormat interface {
	write(w *framing.Writer, e expr.Expr) error
	read(r *framing.Reader, templates TemplateResolver) (expr.Expr, error)
}

// formats maps the first format major version using an encoding to that
// encoding. A version uses the entry with the largest key not above it.
var formats = map[int32]expressionFormat{
	1: rawFormat{},
	3: templatedFormat{},
}

var formatKeys = func() []int32 {
	keys := make([]int32, 0, len(formats))
	for k := range formats {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	return keys
}()

func formatFor(v serialization.Version) (expressionFormat, error) {
	for _, k := range formatKeys {
		if v.Major >= k {
			return formats[k], nil
		}
	}
	return nil, domain.ErrUnsupportedVersion.WithDetailsf("no expression format for %s", v)
}

// rawFormat always writes the full expression tree.
type rawFormat struct{}

func (rawFormat) write(w *framing.Writer, e expr.Expr) error {
	data, err := expr.Marshal(e)
	if err != nil {
		return err
	}
	return w.Write(data)
}

func (rawFormat) read(r *framing.Reader, _ TemplateResolver) (expr.Expr, error) {
	data, err := framing.Get[[]byte](r)
	if err != nil {
		return nil, err
	}
	return expr.Unmarshal(data)
}

// templatedFormat writes templatized invocations as the template name and
// argument bindings, anything else as a raw tree behind a false flag.
type templatedFormat struct{}

func (templatedFormat) write(w *framing.Writer, e expr.Expr) error {
	name, args, ok := expr.Templatized(e)
	if !ok {
		if err := w.Write(false); err != nil {
			return err
		}
		return rawFormat{}.write(w, e)
	}
	bindings, err := expr.MarshalBindings(args)
	if err != nil {
		return err
	}
	if err := w.Write(true); err != nil {
		return err
	}
	if err := w.Write(name); err != nil {
		return err
	}
	return w.Write(bindings)
}

func (templatedFormat) read(r *framing.Reader, templates TemplateResolver) (expr.Expr, error) {
	templatized, err := framing.Get[bool](r)
	if err != nil {
		return nil, err
	}
	if !templatized {
		return rawFormat{}.read(r, templates)
	}

	name, err := framing.Get[string](r)
	if err != nil {
		return nil, err
	}
	bindings, err := framing.Get[[]byte](r)
	if err != nil {
		return nil, err
	}

	if templates == nil {
		return nil, domain.ErrTemplateNotFound.WithDetailsf("%s (no template registry)", name)
	}
	template, ok := templates.Template(name)
	if !ok {
		return nil, domain.ErrTemplateNotFound.WithDetails(name)
	}
	if l, isLambda := template.(*expr.LambdaExpr); !isLambda || len(l.Params) != 1 {
		return nil, domain.ErrInvalidTemplateArgument.WithDetailsf("template %s is not a function of one tuple", name)
	}

	args, err := expr.UnmarshalBindings(bindings)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	return expr.Instantiate(name, args), nil
}
