package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/yndnr/reactq/internal/checkpoint/persist"
	"github.com/yndnr/reactq/internal/checkpoint/serialization"
	"github.com/yndnr/reactq/internal/core/domain"
	"github.com/yndnr/reactq/internal/core/entity"
	"github.com/yndnr/reactq/internal/core/expr"
	"github.com/yndnr/reactq/internal/core/operator"
	"github.com/yndnr/reactq/internal/telemetry/metric"
	"github.com/yndnr/reactq/pkg/cmap"
)

// StateSuffix is appended to a runtime kind's category to name the
// category holding operator state.
const StateSuffix = ".state"

// StateCategory returns the category holding operator state of kind k.
func StateCategory(k entity.Kind) string {
	return k.String() + StateSuffix
}

// record tracks an entity and what of it the last committed checkpoint
// holds.
type record struct {
	entity entity.Entity

	// committed is set once the definition is part of a committed
	// checkpoint.
	committed atomic.Bool
	// stateCommitted is set once the operator state is part of a
	// committed checkpoint.
	stateCommitted atomic.Bool
}

// Engine holds reactive entities and persists them.
type Engine struct {
	policy    serialization.Policy
	logger    *slog.Logger
	metrics   *metric.Registry
	functions map[string]expr.Func
	shards    int

	registries map[entity.Kind]*cmap.Map[*record]
	// removed holds URIs undefined since the last commit, per kind, whose
	// items the next differential checkpoint deletes.
	removed map[entity.Kind]*cmap.Map[struct{}]

	// session serializes checkpoint, recovery and unload.
	session sync.Mutex
}

// Option configures the Engine.
type Option func(*Engine)

// WithPolicy sets the serialization policy.
func WithPolicy(p serialization.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics enables metrics.
func WithMetrics(r *metric.Registry) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithFunctions adds host functions visible to entity expressions. They
// take precedence over the built-in operators.
func WithFunctions(fns map[string]expr.Func) Option {
	return func(e *Engine) {
		for name, fn := range fns {
			e.functions[name] = fn
		}
	}
}

// WithShardCount sets the shard count of each registry.
func WithShardCount(n int) Option {
	return func(e *Engine) { e.shards = n }
}

// New creates an empty engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		policy:     serialization.DefaultPolicy(),
		logger:     slog.Default(),
		functions:  operator.Builtins(),
		shards:     cmap.DefaultShardCount,
		registries: make(map[entity.Kind]*cmap.Map[*record], len(entity.Kinds)),
		removed:    make(map[entity.Kind]*cmap.Map[struct{}], len(entity.Kinds)),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, k := range entity.Kinds {
		e.registries[k] = cmap.NewWithShards[*record](e.shards)
		e.removed[k] = cmap.NewWithShards[struct{}](e.shards)
	}
	return e
}

// Policy returns the serialization policy.
func (e *Engine) Policy() serialization.Policy { return e.policy }

// Define registers ent. Runtime entities get their operator built from
// their expression unless one is already attached.
func (e *Engine) Define(ent entity.Entity) error {
	reg, ok := e.registries[ent.Kind()]
	if !ok {
		return domain.ErrUnknownEntityKind.WithDetailsf("%d", int32(ent.Kind()))
	}
	if inst, ok := ent.(entity.Instance); ok && inst.Operator() == nil {
		op, err := e.instantiate(ent)
		if err != nil {
			return err
		}
		inst.Attach(op)
	}
	if !reg.SetIfAbsent(ent.URI(), &record{entity: ent}) {
		return domain.ErrEntityConflict.WithDetailsf("%s %s", ent.Kind(), ent.URI())
	}
	e.removed[ent.Kind()].Delete(ent.URI())
	e.updateGauge(ent.Kind())
	return nil
}

// DefineExpr builds an entity of kind from e and registers it.
func (e *Engine) DefineExpr(kind entity.Kind, uri string, x expr.Expr) (entity.Entity, error) {
	ent, err := entity.New(kind, uri, x)
	if err != nil {
		return nil, err
	}
	if err := e.Define(ent); err != nil {
		return nil, err
	}
	return ent, nil
}

// Undefine removes the entity. The next differential checkpoint deletes
// its items.
func (e *Engine) Undefine(kind entity.Kind, uri string) error {
	reg, ok := e.registries[kind]
	if !ok {
		return domain.ErrUnknownEntityKind.WithDetailsf("%d", int32(kind))
	}
	if _, ok := reg.Pop(uri); !ok {
		return domain.ErrEntityNotFound.WithDetailsf("%s %s", kind, uri)
	}
	// Marked even when never committed: a checkpoint in flight may be
	// writing it.
	e.removed[kind].Set(uri, struct{}{})
	e.updateGauge(kind)
	return nil
}

// Lookup returns the entity of kind with uri.
func (e *Engine) Lookup(kind entity.Kind, uri string) (entity.Entity, bool) {
	reg, ok := e.registries[kind]
	if !ok {
		return nil, false
	}
	rec, ok := reg.Get(uri)
	if !ok {
		return nil, false
	}
	return rec.entity, true
}

// Entities returns the entities of kind ordered by URI.
func (e *Engine) Entities(kind entity.Kind) []entity.Entity {
	reg, ok := e.registries[kind]
	if !ok {
		return nil
	}
	sorted := reg.Sorted()
	out := make([]entity.Entity, len(sorted))
	for i, s := range sorted {
		out[i] = s.Value.entity
	}
	return out
}

// Len returns the number of entities across all kinds.
func (e *Engine) Len() int {
	n := 0
	for _, reg := range e.registries {
		n += reg.Count()
	}
	return n
}

// Templates resolves template names against the template registry.
func (e *Engine) Templates() persist.TemplateResolver {
	return persist.TemplateResolverFunc(func(name string) (expr.Expr, bool) {
		ent, ok := e.Lookup(entity.KindTemplate, name)
		if !ok {
			return nil, false
		}
		return ent.Expression(), true
	})
}

// env resolves host functions first, then templates as closures.
func (e *Engine) env() expr.Env {
	var env expr.EnvFunc
	env = func(name string) (any, bool) {
		if fn, ok := e.functions[name]; ok {
			return fn, true
		}
		if tpl, ok := e.Lookup(entity.KindTemplate, name); ok {
			v, err := expr.Eval(tpl.Expression(), env)
			if err != nil {
				return nil, false
			}
			return v, true
		}
		return nil, false
	}
	return env
}

func (e *Engine) instantiate(ent entity.Entity) (operator.StatefulOperator, error) {
	v, err := expr.Eval(ent.Expression(), e.env())
	if err != nil {
		return nil, fmt.Errorf("engine: %s %s: %w", ent.Kind(), ent.URI(), err)
	}
	op, ok := v.(operator.StatefulOperator)
	if !ok {
		return nil, fmt.Errorf("engine: %s %s: expression yields %T, not an operator", ent.Kind(), ent.URI(), v)
	}
	return op, nil
}

func (e *Engine) updateGauge(kind entity.Kind) {
	if e.metrics != nil {
		e.metrics.Entities.WithLabelValues(kind.String()).Set(float64(e.registries[kind].Count()))
	}
}
