package entity

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/yndnr/reactq/internal/checkpoint/framing"
	"github.com/yndnr/reactq/internal/core/domain"
	"github.com/yndnr/reactq/internal/core/expr"
	"github.com/yndnr/reactq/internal/core/operator"
)

// Kind discriminates entities. Values are part of the wire format.
type Kind int32

const (
	KindObservable Kind = iota + 1
	KindObserver
	KindStream
	KindStreamFactory
	KindSubscriptionFactory
	KindSubscription
	KindReliableSubscription
	// KindTemplate is the "other" kind holding expression templates.
	KindTemplate
)

// Kinds lists every entity kind in checkpoint order. Templates come first
// so templatized definitions can be resolved on recovery.
var Kinds = []Kind{
	KindTemplate,
	KindObservable,
	KindObserver,
	KindStreamFactory,
	KindSubscriptionFactory,
	KindStream,
	KindSubscription,
	KindReliableSubscription,
}

var kindNames = map[Kind]string{
	KindObservable:           "observables",
	KindObserver:             "observers",
	KindStream:               "subjects",
	KindStreamFactory:        "streamfactories",
	KindSubscriptionFactory:  "subscriptionfactories",
	KindSubscription:         "subscriptions",
	KindReliableSubscription: "reliablesubscriptions",
	KindTemplate:             "templates",
}

// String returns the kind's checkpoint category name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int32(k))
}

// Runtime reports whether entities of kind k own a live operator.
func (k Kind) Runtime() bool {
	switch k {
	case KindStream, KindSubscription, KindReliableSubscription:
		return true
	}
	return false
}

// Entity is a persisted reactive artifact.
type Entity interface {
	Kind() Kind
	URI() string
	Expression() expr.Expr
	State() ([]byte, bool)
	SetState(state []byte)
	// OnPersisted is called once the entity was read from a checkpoint,
	// before it is handed to the engine.
	OnPersisted()
	Persisted() bool
}

// Payloader is implemented by entities with kind-specific payload written
// after the common fields.
type Payloader interface {
	WritePayload(w *framing.Writer) error
	ReadPayload(r *framing.Reader) error
}

// Instance is implemented by runtime entities.
type Instance interface {
	Entity
	Operator() operator.StatefulOperator
	Attach(op operator.StatefulOperator)
}

// Definition holds the fields common to all entities.
type Definition struct {
	kind       Kind
	uri        string
	expression expr.Expr

	mu        sync.RWMutex
	state     []byte
	hasState  bool
	persisted atomic.Bool
}

func newDefinition(kind Kind, uri string, e expr.Expr) *Definition {
	return &Definition{kind: kind, uri: uri, expression: e}
}

// Kind implements Entity.
func (d *Definition) Kind() Kind { return d.kind }

// URI implements Entity.
func (d *Definition) URI() string { return d.uri }

// Expression implements Entity.
func (d *Definition) Expression() expr.Expr { return d.expression }

// State implements Entity. ok is false when no state was ever set.
func (d *Definition) State() ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state, d.hasState
}

// SetState implements Entity. A nil state clears it.
func (d *Definition) SetState(state []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = state
	d.hasState = state != nil
}

// OnPersisted implements Entity.
func (d *Definition) OnPersisted() { d.persisted.Store(true) }

// Persisted implements Entity.
func (d *Definition) Persisted() bool { return d.persisted.Load() }

// ObservableDefinition defines an observable.
type ObservableDefinition struct{ *Definition }

// ObserverDefinition defines an observer.
type ObserverDefinition struct{ *Definition }

// StreamFactoryDefinition defines a factory of streams.
type StreamFactoryDefinition struct{ *Definition }

// SubscriptionFactoryDefinition defines a factory of subscriptions.
type SubscriptionFactoryDefinition struct{ *Definition }

// TemplateDefinition holds an expression template, normally a lambda of
// one tuple parameter.
type TemplateDefinition struct{ *Definition }

// runtime holds the operator of a runtime entity.
type runtime struct {
	mu sync.RWMutex
	op operator.StatefulOperator
}

// Operator implements Instance.
func (r *runtime) Operator() operator.StatefulOperator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.op
}

// Attach implements Instance.
func (r *runtime) Attach(op operator.StatefulOperator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.op = op
}

// Subject is a stream instance.
type Subject struct {
	*Definition
	runtime
}

// Subscription is a subscription instance.
type Subscription struct {
	*Definition
	runtime
}

// ReliableSubscription is a subscription that tracks the last
// acknowledged sequence id of its source.
type ReliableSubscription struct {
	*Definition
	runtime

	acked atomic.Int64
}

// Acknowledged returns the last acknowledged sequence id.
func (s *ReliableSubscription) Acknowledged() int64 { return s.acked.Load() }

// Acknowledge records id as processed. Ids never move backwards.
func (s *ReliableSubscription) Acknowledge(id int64) {
	for {
		cur := s.acked.Load()
		if id <= cur || s.acked.CompareAndSwap(cur, id) {
			return
		}
	}
}

// WritePayload implements Payloader.
func (s *ReliableSubscription) WritePayload(w *framing.Writer) error {
	return w.Write(s.acked.Load())
}

// ReadPayload implements Payloader.
func (s *ReliableSubscription) ReadPayload(r *framing.Reader) error {
	id, err := framing.Get[int64](r)
	if err != nil {
		return err
	}
	s.acked.Store(id)
	return nil
}

var constructors = map[Kind]func(d *Definition) Entity{
	KindObservable:           func(d *Definition) Entity { return &ObservableDefinition{d} },
	KindObserver:             func(d *Definition) Entity { return &ObserverDefinition{d} },
	KindStreamFactory:        func(d *Definition) Entity { return &StreamFactoryDefinition{d} },
	KindSubscriptionFactory:  func(d *Definition) Entity { return &SubscriptionFactoryDefinition{d} },
	KindTemplate:             func(d *Definition) Entity { return &TemplateDefinition{d} },
	KindStream:               func(d *Definition) Entity { return &Subject{Definition: d} },
	KindSubscription:         func(d *Definition) Entity { return &Subscription{Definition: d} },
	KindReliableSubscription: func(d *Definition) Entity { return &ReliableSubscription{Definition: d} },
}

// New constructs the concrete entity for kind.
func New(kind Kind, uri string, e expr.Expr) (Entity, error) {
	ctor, ok := constructors[kind]
	if !ok {
		return nil, domain.ErrUnknownEntityKind.WithDetailsf("%d", int32(kind))
	}
	if uri == "" {
		return nil, fmt.Errorf("entity: empty uri")
	}
	if e == nil {
		return nil, fmt.Errorf("entity %s: nil expression", uri)
	}
	return ctor(newDefinition(kind, uri, e)), nil
}
