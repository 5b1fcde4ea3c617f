// Package output renders command results as tables, JSON or YAML, and
// draws recovery progress on a terminal.
//
// Structs become tables by field: the json tag names the column and a
// table:"-" tag hides it. Slices render one row per element; a single
// struct renders as FIELD/VALUE pairs.
package output
