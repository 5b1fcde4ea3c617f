// Package domain defines the error catalog shared by the checkpoint,
// storage and engine layers.
//
// Errors fall into four families:
//
//   - Format errors (RQ-FMT): fatal, reported through FormatError with the
//     stream position and a bounded base64 dump of the surrounding bytes
//   - Template errors (RQ-TPL): fatal for the entity being loaded
//   - Entity errors (RQ-ENT): unknown kinds and registry conflicts
//   - Key/value errors (RQ-KV): logical failures carried on reified
//     operation results, never returned from Apply
package domain
