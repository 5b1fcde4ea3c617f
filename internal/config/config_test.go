package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/reactq/internal/checkpoint/serialization"
	"github.com/yndnr/reactq/internal/storage"
	"github.com/yndnr/reactq/internal/storage/memory"
	"github.com/yndnr/reactq/internal/storage/snapshot"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Store.Backend != DefaultBackend {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, DefaultBackend)
	}
	if cfg.Store.Dir != DefaultDataDir {
		t.Errorf("Store.Dir = %q, want %q", cfg.Store.Dir, DefaultDataDir)
	}
	if cfg.Store.Snapshot.RetentionCount != snapshot.DefaultRetentionCount {
		t.Errorf("RetentionCount = %d", cfg.Store.Snapshot.RetentionCount)
	}
	if cfg.Checkpoint.Serializer != DefaultSerializer {
		t.Errorf("Serializer = %q, want %q", cfg.Checkpoint.Serializer, DefaultSerializer)
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if err := Verify(cfg); err != nil {
		t.Errorf("Verify(Default()) = %v", err)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"memory backend", func(c *Config) { c.Store.Backend = BackendMemory; c.Store.Dir = "" }, ""},
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"snapshot without dir", func(c *Config) { c.Store.Dir = "" }, "store.dir"},
		{"zero retention", func(c *Config) { c.Store.Snapshot.RetentionCount = 0 }, "retention_count"},
		{"negative write rate", func(c *Config) { c.Store.Snapshot.WriteRate = -1 }, "write_rate"},
		{"bad gc interval", func(c *Config) {
			c.Store.Backend = BackendBadger
			c.Store.Badger.GCInterval = "soon"
		}, "gc_interval"},
		{"bad gc threshold", func(c *Config) {
			c.Store.Backend = BackendBadger
			c.Store.Badger.GCThreshold = 1.5
		}, "gc_threshold"},
		{"unknown serializer", func(c *Config) { c.Checkpoint.Serializer = "xml" }, "checkpoint.serializer"},
		{"negative shards", func(c *Config) { c.Checkpoint.Shards = -1 }, "checkpoint.shards"},
		{"shards not power of two", func(c *Config) { c.Checkpoint.Shards = 12 }, "checkpoint.shards"},
		{"default shards", func(c *Config) { c.Checkpoint.Shards = 0 }, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Verify(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Verify() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Verify() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
	if err := Verify(nil); err == nil {
		t.Error("Verify(nil) should fail")
	}
}

func TestPolicy(t *testing.T) {
	tests := []struct {
		serializer string
		want       string
		wantErr    bool
	}{
		{"", serialization.BintlyName, false},
		{serialization.BintlyName, serialization.BintlyName, false},
		{serialization.JSONName, serialization.JSONName, false},
		{"gob", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.serializer, func(t *testing.T) {
			p, err := Policy(tt.serializer)
			if tt.wantErr {
				if err == nil {
					t.Error("Policy() should fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("Policy() = %v", err)
			}
			if got := p.Default().Name(); got != tt.want {
				t.Errorf("Default().Name() = %q, want %q", got, tt.want)
			}
			if _, err := p.Resolve(serialization.BintlyName, serialization.BintlyVersion); err != nil {
				t.Errorf("bintly not resolvable: %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reactq.yaml")
	content := "store:\n  backend: badger\n  badger:\n    gc_interval: 5m\ncheckpoint:\n  serializer: json\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REACTQ_STORE__SNAPSHOT__RETENTION_COUNT", "9")

	cfg, err := Load(path, map[string]any{"store.dir": dir, "log.level": ""})
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Store.Backend != BackendBadger {
		t.Errorf("Backend = %q", cfg.Store.Backend)
	}
	if cfg.Store.Badger.GCInterval != "5m" {
		t.Errorf("GCInterval = %q", cfg.Store.Badger.GCInterval)
	}
	if cfg.Store.Badger.CacheSize != storage.DefaultBadgerConfig("").CacheSize {
		t.Errorf("CacheSize default lost: %d", cfg.Store.Badger.CacheSize)
	}
	if cfg.Store.Snapshot.RetentionCount != 9 {
		t.Errorf("RetentionCount = %d, want 9", cfg.Store.Snapshot.RetentionCount)
	}
	if cfg.Store.Dir != dir {
		t.Errorf("Dir = %q, want %q", cfg.Store.Dir, dir)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, empty override must not win", cfg.Log.Level)
	}
	if cfg.Checkpoint.Serializer != serialization.JSONName {
		t.Errorf("Serializer = %q", cfg.Checkpoint.Serializer)
	}
}

func TestLoad_Invalid(t *testing.T) {
	if _, err := Load("", map[string]any{"store.backend": "tape"}); err == nil {
		t.Error("Load() should reject an unknown backend")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestOpenStore(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		st, c, err := OpenStore(StoreSection{Backend: BackendMemory}, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
		if _, ok := st.(*memory.Store); !ok {
			t.Errorf("store = %T, want *memory.Store", st)
		}
	})

	t.Run("snapshot uses shared dir", func(t *testing.T) {
		dir := t.TempDir()
		s := Default().Store
		s.Dir = dir
		st, c, err := OpenStore(s, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
		snap, ok := st.(*snapshot.Store)
		if !ok {
			t.Fatalf("store = %T, want *snapshot.Store", st)
		}
		if snap.Dir() != dir {
			t.Errorf("Dir() = %q, want %q", snap.Dir(), dir)
		}
	})

	t.Run("badger registers metrics", func(t *testing.T) {
		s := Default().Store
		s.Backend = BackendBadger
		s.Dir = t.TempDir()
		reg := prometheus.NewRegistry()
		st, c, err := OpenStore(s, reg, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
		if _, ok := st.(*storage.BadgerStore); !ok {
			t.Fatalf("store = %T", st)
		}
		mfs, err := reg.Gather()
		if err != nil {
			t.Fatal(err)
		}
		if len(mfs) == 0 {
			t.Error("no badger metrics registered")
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, _, err := OpenStore(StoreSection{Backend: "tape"}, nil, nil); err == nil {
			t.Error("OpenStore() should fail")
		}
	})
}
