package config

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/reactq/internal/checkpoint/serialization"
	"github.com/yndnr/reactq/internal/storage"
	"github.com/yndnr/reactq/internal/storage/memory"
	"github.com/yndnr/reactq/internal/storage/snapshot"
)

// Policy returns the default serialization policy with the named
// serializer selected for writing. Every known serializer stays
// resolvable for recovery.
func Policy(serializer string) (*serialization.Registry, error) {
	p := serialization.DefaultPolicy()
	switch serializer {
	case "", serialization.BintlyName:
		return p, nil
	case serialization.JSONName:
		if err := p.SetDefault(serialization.JSONName, serialization.JSONVersion); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown serializer %q", serializer)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenStore opens the backend described by s. The returned closer
// releases it. When reg is non-nil the badger backend registers its
// metrics there.
func OpenStore(s StoreSection, reg prometheus.Registerer, logger *slog.Logger) (storage.Store, io.Closer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch s.Backend {
	case BackendMemory:
		return memory.New(memory.WithLogger(logger)), nopCloser{}, nil
	case BackendBadger:
		cfg := s.Badger
		if cfg.Dir == "" {
			cfg.Dir = s.Dir
		}
		st, err := storage.NewBadgerStore(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if reg != nil {
			st.RegisterMetrics(reg)
		}
		return st, st, nil
	case BackendSnapshot:
		cfg := s.Snapshot
		if cfg.Dir == "" {
			cfg.Dir = s.Dir
		}
		st, err := snapshot.Open(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", s.Backend)
	}
}
