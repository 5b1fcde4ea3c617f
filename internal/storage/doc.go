// Package storage defines the state store contract checkpoints are
// written to and recovered from, and the Badger-backed durable store.
//
// A store exposes transactions of item streams addressed by category and
// key:
//
//   - StateWriter stages item writes and deletions and applies them all at
//     once on Commit. A Full checkpoint replaces every item; a
//     Differential checkpoint only changes the items it touches.
//   - StateReader is a consistent view of the last committed state.
//
// Providers:
//
//   - memory: in-process, built on persistent reified snapshots
//   - snapshot: checkpoint files on local disk
//   - BadgerStore: embedded Badger v3 database
package storage
