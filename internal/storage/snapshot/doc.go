// Package snapshot provides a file-backed state store.
//
// Every committed checkpoint is one file:
//
//	ckpt-<ulid>.full | ckpt-<ulid>.diff
//	[magic:8 "RQCKPT01"]
//	[HeaderLen:4][HeaderJSON:HeaderLen]
//	records...   [op:1][CatLen:4][Cat][KeyLen:4][Key] then, for puts, [DataLen:8][Data]
//	[checksum:32 SHA-256 of all bytes above]
//
// A differential file names the full checkpoint it extends. Recovery
// folds the newest valid full checkpoint with its differentials in order.
// A corrupted full checkpoint falls back to the previous chain; a
// corrupted differential ends its chain.
package snapshot
