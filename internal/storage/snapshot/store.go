package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/reactq/internal/core/domain"
	"github.com/yndnr/reactq/internal/storage"
	"github.com/yndnr/reactq/internal/telemetry/logger"
)

const (
	DefaultRetentionCount = 3
	DefaultRetentionDays  = 7
)

// Config configures the file store.
type Config struct {
	Dir string `koanf:"dir"`

	// RetentionCount is the number of full checkpoint chains kept.
	RetentionCount int `koanf:"retention_count"`
	// RetentionDays keeps chains younger than this many days.
	RetentionDays int `koanf:"retention_days"`

	// WriteRate limits checkpoint writes in bytes per second. Zero
	// disables throttling.
	WriteRate int `koanf:"write_rate"`
}

// DefaultConfig returns the default configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		RetentionCount: DefaultRetentionCount,
		RetentionDays:  DefaultRetentionDays,
	}
}

// Store is a storage.Store persisting each checkpoint as a file.
type Store struct {
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger

	commitMu sync.Mutex

	mu     sync.RWMutex
	state  map[storage.ItemKey][]byte
	fullID string
	chain  []*Info
}

// Open opens the store in cfg.Dir and recovers the newest valid chain.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	if cfg.RetentionCount <= 0 {
		cfg.RetentionCount = DefaultRetentionCount
	}
	if cfg.RetentionDays < 0 {
		cfg.RetentionDays = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		cfg:    cfg,
		logger: logger,
		state:  map[storage.ItemKey][]byte{},
	}
	if cfg.WriteRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.WriteRate), max(cfg.WriteRate, 64<<10))
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load folds the newest readable full checkpoint with its differentials.
func (s *Store) load() error {
	infos, err := List(s.cfg.Dir)
	if err != nil {
		return fmt.Errorf("snapshot: list: %w", err)
	}

	for i := len(infos) - 1; i >= 0; i-- {
		if infos[i].Kind != storage.Full {
			continue
		}
		state := map[storage.ItemKey][]byte{}
		full, err := ReadFile(infos[i].Path, func(op byte, key storage.ItemKey, data []byte) {
			state[key] = data
		})
		if err != nil {
			s.logger.Warn("skipping unreadable full checkpoint",
				"path", infos[i].Path,
				"error", err)
			continue
		}

		chain := []*Info{full}
		for _, d := range infos[i+1:] {
			if d.Kind != storage.Differential {
				continue
			}
			var recs []record
			diff, err := ReadFile(d.Path, func(op byte, key storage.ItemKey, data []byte) {
				recs = append(recs, record{op: op, key: key, data: data})
			})
			if err != nil {
				if hdr, herr := ReadHeader(d.Path); herr == nil && hdr.Parent != full.ID {
					s.logger.Warn("skipping unreadable differential of another chain",
						"path", d.Path,
						"parent", hdr.Parent,
						"error", err)
					continue
				}
				s.logger.Warn("differential checkpoint unreadable, chain truncated",
					"path", d.Path,
					"error", err)
				break
			}
			if diff.Parent != full.ID {
				continue
			}
			applyRecords(state, recs)
			chain = append(chain, diff)
		}

		s.state, s.fullID, s.chain = state, full.ID, chain
		s.logger.Info("checkpoint chain recovered",
			"full", full.ID,
			"differentials", len(chain)-1,
			"items", len(state))
		return nil
	}

	if len(infos) > 0 {
		s.logger.Warn("no readable full checkpoint found", "files", len(infos))
	}
	return nil
}

func applyRecords(state map[storage.ItemKey][]byte, recs []record) {
	for _, r := range recs {
		if r.op == opDelete {
			delete(state, r.key)
		} else {
			state[r.key] = r.data
		}
	}
}

// Writer implements storage.Store.
func (s *Store) Writer(kind storage.CheckpointKind) (storage.StateWriter, error) {
	if kind == storage.Differential && s.FullID() == "" {
		return nil, domain.ErrNoFullCheckpoint
	}
	return &writer{Staging: storage.NewStaging(kind), store: s}, nil
}

// Reader implements storage.Store.
func (s *Store) Reader() (storage.StateReader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &reader{state: s.state}, nil
}

// FullID returns the id of the full checkpoint heading the current chain.
func (s *Store) FullID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fullID
}

// Chain returns the files making up the current state, oldest first.
func (s *Store) Chain() []*Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Info(nil), s.chain...)
}

// Dir returns the checkpoint directory.
func (s *Store) Dir() string { return s.cfg.Dir }

func (s *Store) commit(ctx context.Context, c *storage.Changes) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.RLock()
	parent, current := s.fullID, s.state
	s.mu.RUnlock()

	if c.Kind == storage.Differential && parent == "" {
		return domain.ErrNoFullCheckpoint
	}
	if c.Kind == storage.Full {
		parent = ""
	}

	id := ulid.Make().String()
	start := time.Now()
	info, err := writeFile(ctx, s.cfg.Dir, newHeader(id, c.Kind, parent, c), c, s.limiter)
	if err != nil {
		return err
	}

	next := make(map[storage.ItemKey][]byte, len(current)+len(c.Puts))
	if c.Kind == storage.Differential {
		for k, v := range current {
			next[k] = v
		}
		for _, k := range c.Deletes {
			delete(next, k)
		}
	}
	for k, v := range c.Puts {
		next[k] = v
	}

	s.mu.Lock()
	s.state = next
	if c.Kind == storage.Full {
		s.fullID = id
		s.chain = []*Info{info}
	} else {
		s.chain = append(append([]*Info(nil), s.chain...), info)
	}
	s.mu.Unlock()

	s.logger.Debug("checkpoint file written",
		"file_id", id,
		"checkpoint_id", logger.CheckpointIDFromContext(ctx),
		"kind", c.Kind.String(),
		"size", info.Size,
		"duration", time.Since(start))

	if c.Kind == storage.Full {
		if err := s.Prune(); err != nil {
			s.logger.Warn("checkpoint pruning failed", "error", err)
		}
	}
	return nil
}

// Prune applies the retention policy. Files belonging to the current
// chain are never removed.
func (s *Store) Prune() error {
	infos, err := List(s.cfg.Dir)
	if err != nil {
		return err
	}

	var fulls []*Info
	for _, info := range infos {
		if info.Kind == storage.Full {
			fulls = append(fulls, info)
		}
	}
	if len(fulls) <= 1 {
		return nil
	}

	keep := make(map[string]struct{}, len(fulls))
	for _, info := range fulls[max(0, len(fulls)-s.cfg.RetentionCount):] {
		keep[info.ID] = struct{}{}
	}
	if s.cfg.RetentionDays > 0 {
		cutoff := time.Now().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		for _, info := range fulls {
			if time.UnixMilli(info.CreatedAt).After(cutoff) {
				keep[info.ID] = struct{}{}
			}
		}
	}
	if id := s.FullID(); id != "" {
		keep[id] = struct{}{}
	}

	ids := make([]string, 0, len(keep))
	for id := range keep {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	oldest := ids[0]

	removed := 0
	for _, info := range infos {
		if _, ok := keep[info.ID]; ok {
			continue
		}
		if info.Kind == storage.Differential && info.ID > oldest {
			continue
		}
		if err := os.Remove(info.Path); err == nil {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("pruned checkpoint files", "removed", removed, "kept_chains", len(keep))
	}
	return nil
}

type writer struct {
	*storage.Staging
	store *Store
}

func (w *writer) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		w.Rollback()
		return err
	}
	if n := w.Pending(); n > 0 {
		return fmt.Errorf("snapshot: %d item writers still open", n)
	}
	changes, err := w.Drain()
	if err != nil {
		return err
	}
	return w.store.commit(ctx, changes)
}

type reader struct {
	state map[storage.ItemKey][]byte

	once sync.Once
	keys []storage.ItemKey
}

func (r *reader) sorted() []storage.ItemKey {
	r.once.Do(func() {
		r.keys = make([]storage.ItemKey, 0, len(r.state))
		for k := range r.state {
			r.keys = append(r.keys, k)
		}
		storage.SortKeys(r.keys)
	})
	return r.keys
}

func (r *reader) Categories() ([]string, error) {
	var out []string
	for _, k := range r.sorted() {
		if len(out) == 0 || out[len(out)-1] != k.Category {
			out = append(out, k.Category)
		}
	}
	return out, nil
}

func (r *reader) ItemKeys(category string) ([]string, bool, error) {
	var keys []string
	for _, k := range r.sorted() {
		if k.Category == category {
			keys = append(keys, k.Key)
		}
	}
	return keys, len(keys) > 0, nil
}

func (r *reader) GetItemReader(category, key string) (storage.ItemReader, bool, error) {
	data, ok := r.state[storage.ItemKey{Category: category, Key: key}]
	if !ok {
		return nil, false, nil
	}
	return storage.NewItemReader(data), true, nil
}

func (r *reader) Close() error { return nil }
