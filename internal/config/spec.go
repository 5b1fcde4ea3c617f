package config

import (
	"github.com/yndnr/reactq/internal/storage"
	"github.com/yndnr/reactq/internal/storage/snapshot"
	"github.com/yndnr/reactq/internal/telemetry/logger"
)

// Config is the root configuration.
type Config struct {
	Store      StoreSection      `koanf:"store"`
	Checkpoint CheckpointSection `koanf:"checkpoint"`
	Log        logger.Config     `koanf:"log"`
}

// StoreSection selects and configures the state store.
type StoreSection struct {
	// Backend is one of memory, badger, snapshot.
	Backend string `koanf:"backend"`

	// Dir is the data directory shared by the durable backends. A
	// backend-specific dir takes precedence.
	Dir string `koanf:"dir"`

	Badger   storage.BadgerConfig `koanf:"badger"`
	Snapshot snapshot.Config      `koanf:"snapshot"`
}

// CheckpointSection configures checkpoint serialization and the engine.
type CheckpointSection struct {
	// Serializer names the serializer for new checkpoints (bintly, json).
	Serializer string `koanf:"serializer"`

	// Shards is the registry shard count per entity kind, a power of
	// two. Zero selects the default.
	Shards int `koanf:"shards"`
}
