package reified

import (
	"errors"
	"fmt"
)

// OpKind identifies the operation type.
type OpKind uint8

const (
	OpAdd OpKind = iota + 1
	OpRemove
	OpGet
	OpUpdate
	OpContains
	OpEnumerate
)

var opKindStrings = map[OpKind]string{
	OpAdd:       "Add",
	OpRemove:    "Remove",
	OpGet:       "Get",
	OpUpdate:    "Update",
	OpContains:  "Contains",
	OpEnumerate: "Enumerate",
}

// String returns the operation name.
func (k OpKind) String() string {
	if s, ok := opKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("OpKind(%d)", uint8(k))
}

// Result is the outcome of applying an operation.
type Result interface {
	// Kind returns the kind of the operation that produced the result.
	Kind() OpKind
	// Failure returns the logical failure, or nil on success.
	Failure() error
	// Value returns the weakly typed payload (nil when none).
	Value() any
	// Equal reports whether two results describe the same outcome.
	Equal(other Result) bool
}

// Succeeded reports whether r carries no failure.
func Succeeded(r Result) bool {
	return r != nil && r.Failure() == nil
}

func sameFailure(a, b error) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return errors.Is(a, b) && errors.Is(b, a)
}

// statusResult is the payload-free result of Add, Remove and Update.
type statusResult struct {
	kind    OpKind
	failure error
}

func (r statusResult) Kind() OpKind   { return r.kind }
func (r statusResult) Failure() error { return r.failure }
func (r statusResult) Value() any     { return nil }

func (r statusResult) Equal(other Result) bool {
	o, ok := other.(statusResult)
	return ok && o.kind == r.kind && sameFailure(r.failure, o.failure)
}

// GetResult is the outcome of Get.
type GetResult[V any] struct {
	failure error
	value   V
	id      int64
}

func (r GetResult[V]) Kind() OpKind   { return OpGet }
func (r GetResult[V]) Failure() error { return r.failure }

// Value returns the stored value (not the sequenced wrapper).
func (r GetResult[V]) Value() any {
	if r.failure != nil {
		return nil
	}
	return r.value
}

// Typed returns the stored value with its static type.
func (r GetResult[V]) Typed() (V, bool) {
	return r.value, r.failure == nil
}

// SequenceID returns the sequence id of the retrieved entry.
func (r GetResult[V]) SequenceID() int64 { return r.id }

// Equal compares sequence ids as a proxy for value equality.
func (r GetResult[V]) Equal(other Result) bool {
	o, ok := other.(GetResult[V])
	if !ok || !sameFailure(r.failure, o.failure) {
		return false
	}
	return r.failure != nil || r.id == o.id
}

// ContainsResult is the outcome of Contains.
type ContainsResult struct {
	found bool
}

func (r ContainsResult) Kind() OpKind   { return OpContains }
func (r ContainsResult) Failure() error { return nil }
func (r ContainsResult) Value() any     { return r.found }

// Found reports key presence.
func (r ContainsResult) Found() bool { return r.found }

func (r ContainsResult) Equal(other Result) bool {
	o, ok := other.(ContainsResult)
	return ok && o.found == r.found
}

// Pair is one enumerated entry.
type Pair[V any] struct {
	Key   string
	Value V
	ID    int64
}

// EnumerateResult is the outcome of Enumerate.
type EnumerateResult[V any] struct {
	pairs []Pair[V]
}

func (r EnumerateResult[V]) Kind() OpKind   { return OpEnumerate }
func (r EnumerateResult[V]) Failure() error { return nil }
func (r EnumerateResult[V]) Value() any     { return r.pairs }

// Pairs returns the matching entries in key order.
func (r EnumerateResult[V]) Pairs() []Pair[V] { return r.pairs }

// Equal compares keys and sequence ids pairwise.
func (r EnumerateResult[V]) Equal(other Result) bool {
	o, ok := other.(EnumerateResult[V])
	if !ok || len(o.pairs) != len(r.pairs) {
		return false
	}
	for i := range r.pairs {
		if r.pairs[i].Key != o.pairs[i].Key || r.pairs[i].ID != o.pairs[i].ID {
			return false
		}
	}
	return true
}
