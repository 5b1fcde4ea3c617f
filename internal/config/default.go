package config

import (
	"github.com/yndnr/reactq/internal/checkpoint/serialization"
	"github.com/yndnr/reactq/internal/storage"
	"github.com/yndnr/reactq/internal/storage/snapshot"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendSnapshot = "snapshot"
)

// Default configuration values.
const (
	DefaultBackend    = BackendSnapshot
	DefaultDataDir    = "/var/lib/reactq"
	DefaultSerializer = serialization.BintlyName
	DefaultShards     = 32

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Default returns the default configuration.
func Default() *Config {
	badgerCfg := storage.DefaultBadgerConfig("")
	snapCfg := snapshot.DefaultConfig("")

	cfg := &Config{
		Store: StoreSection{
			Backend:  DefaultBackend,
			Dir:      DefaultDataDir,
			Badger:   badgerCfg,
			Snapshot: snapCfg,
		},
		Checkpoint: CheckpointSection{
			Serializer: DefaultSerializer,
			Shards:     DefaultShards,
		},
	}
	cfg.Log.Level = DefaultLogLevel
	cfg.Log.Format = DefaultLogFormat
	return cfg
}
