// Package memory provides the in-process state store.
//
// Committed state is a persistent sorted map from item key to item bytes
// (see package reified). Every commit derives a new map from the current
// one and publishes it with compare-and-swap, so readers always observe a
// complete checkpoint and never block writers.
package memory
