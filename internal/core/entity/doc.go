// Package entity defines the reactive artifacts an engine persists:
// definitions (observables, observers, stream and subscription factories,
// templates) and runtime instances (streams, subscriptions).
//
// Every entity is identified by a URI, defined by an expression and may
// carry an opaque state blob. Runtime entities additionally own the
// operator whose state is checkpointed separately.
package entity
