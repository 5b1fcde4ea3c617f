package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := verifyStore(&cfg.Store); err != nil {
		return err
	}
	if err := verifyCheckpoint(&cfg.Checkpoint); err != nil {
		return err
	}
	return verifyLog(cfg)
}

func verifyStore(s *StoreSection) error {
	switch s.Backend {
	case BackendMemory:
	case BackendBadger:
		if s.Badger.GCInterval != "" {
			if _, err := time.ParseDuration(s.Badger.GCInterval); err != nil {
				return fmt.Errorf("store.badger.gc_interval: %w", err)
			}
		}
		if s.Badger.GCThreshold < 0 || s.Badger.GCThreshold >= 1 {
			return errors.New("store.badger.gc_threshold must be in [0, 1)")
		}
	case BackendSnapshot:
		if s.Dir == "" && s.Snapshot.Dir == "" {
			return errors.New("store.dir is required for the snapshot backend")
		}
		if s.Snapshot.RetentionCount < 1 {
			return errors.New("store.snapshot.retention_count must be at least 1")
		}
		if s.Snapshot.RetentionDays < 0 {
			return errors.New("store.snapshot.retention_days must not be negative")
		}
		if s.Snapshot.WriteRate < 0 {
			return errors.New("store.snapshot.write_rate must not be negative")
		}
	default:
		return fmt.Errorf("store.backend %q: want memory, badger or snapshot", s.Backend)
	}
	return nil
}

func verifyCheckpoint(c *CheckpointSection) error {
	if _, err := Policy(c.Serializer); err != nil {
		return fmt.Errorf("checkpoint.serializer: %w", err)
	}
	if c.Shards < 0 || c.Shards&(c.Shards-1) != 0 {
		return errors.New("checkpoint.shards must be zero or a power of two")
	}
	return nil
}

// VerifyLogLevel checks that level names a log level.
func VerifyLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("log.level %q is not a level", level)
}

func verifyLog(cfg *Config) error {
	if err := VerifyLogLevel(cfg.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "json", "text", "console":
	default:
		return fmt.Errorf("log.format %q: want json or text", cfg.Log.Format)
	}
	return nil
}
