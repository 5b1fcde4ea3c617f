// Package framing delimits per-item state inside a shared checkpoint
// stream with length-prefixed frames.
//
// Frame layout:
//
//	[int64 little-endian length][length bytes of serializer payload]
//
// A Writer emits a zero placeholder, lets the caller write the payload,
// and back-patches the true length on Close. A Reader bounds all reads to
// the frame and, on Close, seeks the underlying stream to the frame end no
// matter how much of the payload was consumed, so the next sibling frame
// always starts at the right offset.
//
// Frames nest: Child opens a frame inside the current one. Frames form a
// stack; only the innermost open frame may be used, and closing a frame
// first closes any child still open.
package framing
