// Package serialization provides the pluggable value serializers used by
// checkpoint frames, and the policy that selects them.
//
// A checkpoint records the name and version of the serializer that wrote
// it. New checkpoints are written with Policy.Default(); recovery asks
// Policy.Resolve(name, version) for the serializer that produced the blob,
// so older checkpoints stay readable after the default moves on.
//
// Values are dispatched through an explicit codec table (Register) keyed
// by type identity, or through the bintly.Encoder/bintly.Decoder
// interfaces for composite types.
//
// Every serialized value is written as [int32 little-endian length][payload].
package serialization
