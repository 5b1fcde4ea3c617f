// Package persist writes and reads entities inside item frames.
//
// Entity layout, in order: kind, expression, URI, state presence flag and
// bytes, then any kind-specific payload. The expression encoding depends
// on the checkpoint format version and is selected from a single dispatch
// table (see formats.go); no other code branches on the format version.
package persist
