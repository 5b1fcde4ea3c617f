// Package reified implements key/value operations as first-class values.
//
// Operations (Add, Remove, Get, Update, Contains, Enumerate) are applied
// against a persistent, structurally shared sorted map. Applying an
// operation never raises on logical misses: the returned Result carries
// a typed failure (domain.ErrKeyAlreadyExists, domain.ErrKeyNotFound)
// and an optional payload.
//
// Apply only replaces the caller's snapshot handle on success, so a
// store can apply a batch of operations to a private copy and publish
// it with a compare-and-swap (see Transact).
//
// Add and Update cache the sequence id they assign on first application.
// Re-applying the same instance to another copy of the same initial
// snapshot yields identical entries, ids included.
package reified
