// Package checkpoint implements the checkpoint blob envelope.
//
// Every item stream starts with a header and ends with a terminator:
//
//	'B' 'D'                      magic
//	4 x int32 LE                 format version
//	int32 LE                     flags (reserved, 0)
//	7-bit length + UTF-8         serializer name
//	4 x int32 LE                 serializer version
//	...                          framed item payloads
//	0xDE 0xAD 0xDE 0xAD          terminator
//
// The header fixes the serializer for the rest of the stream. Writers use
// the policy default; readers resolve the exact (name, version) pair that
// wrote the data.
package checkpoint
