package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/yndnr/reactq/internal/core/domain"
	"github.com/yndnr/reactq/internal/storage"
	"github.com/yndnr/reactq/internal/storage/reified"
	"github.com/yndnr/reactq/pkg/sequenced"
)

// sep separates category and key in the map key. Categories never
// contain it.
const sep = "\x00"

func encodeKey(k storage.ItemKey) string {
	return k.Category + sep + k.Key
}

func decodeKey(s string) storage.ItemKey {
	category, key, _ := strings.Cut(s, sep)
	return storage.ItemKey{Category: category, Key: key}
}

// Store is an in-memory storage.Store.
type Store struct {
	state     atomic.Pointer[reified.Snapshot[[]byte]]
	hasFull   atomic.Bool
	commitMu  sync.Mutex
	allocator sequenced.Allocator
	logger    *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithAllocator sets the allocator stamping item versions.
func WithAllocator(a sequenced.Allocator) Option {
	return func(s *Store) {
		s.allocator = a
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		allocator: sequenced.Default(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	empty := reified.Empty[[]byte]()
	s.state.Store(&empty)
	return s
}

// Writer implements storage.Store.
func (s *Store) Writer(kind storage.CheckpointKind) (storage.StateWriter, error) {
	if kind == storage.Differential && !s.hasFull.Load() {
		return nil, domain.ErrNoFullCheckpoint
	}
	return &writer{Staging: storage.NewStaging(kind), store: s}, nil
}

// Reader implements storage.Store. The reader is a stable view of the
// state committed at the time of the call.
func (s *Store) Reader() (storage.StateReader, error) {
	return &reader{snap: reified.Load(&s.state)}, nil
}

// Version returns the sequence id of the committed item, or false when
// absent. Ids change every time an item is rewritten.
func (s *Store) Version(category, key string) (int64, bool) {
	snap := reified.Load(&s.state)
	entry, ok := snap.Lookup(encodeKey(storage.ItemKey{Category: category, Key: key}))
	return entry.ID, ok
}

// Len returns the number of committed items.
func (s *Store) Len() int {
	return reified.Load(&s.state).Len()
}

func (s *Store) commit(c *storage.Changes) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if c.Kind == storage.Differential && !s.hasFull.Load() {
		return domain.ErrNoFullCheckpoint
	}

	base := reified.Load(&s.state)
	ops := make([]reified.Operation[[]byte], 0, len(c.Puts)+len(c.Deletes))

	if c.Kind == storage.Full {
		base.Ascend(func(k string, _ sequenced.Sequenced[[]byte]) bool {
			if _, keep := c.Puts[decodeKey(k)]; !keep {
				ops = append(ops, reified.NewRemove[[]byte](k))
			}
			return true
		})
	} else {
		for _, k := range c.Deletes {
			if _, ok := base.Lookup(encodeKey(k)); ok {
				ops = append(ops, reified.NewRemove[[]byte](encodeKey(k)))
			}
		}
	}

	alloc := reified.WithAllocator(s.allocator)
	for _, k := range c.SortedPuts() {
		key := encodeKey(k)
		if _, exists := base.Lookup(key); exists {
			ops = append(ops, reified.NewUpdate(key, c.Puts[k], alloc))
		} else {
			ops = append(ops, reified.NewAdd(key, c.Puts[k], alloc))
		}
	}

	for i, r := range reified.Transact(&s.state, ops...) {
		if !reified.Succeeded(r) {
			return fmt.Errorf("memory: %s %q: %w", ops[i].Kind(), decodeKey(ops[i].Key()), r.Failure())
		}
	}

	if c.Kind == storage.Full {
		s.hasFull.Store(true)
	}
	s.logger.Debug("memory checkpoint committed",
		"kind", c.Kind.String(),
		"puts", len(c.Puts),
		"deletes", len(c.Deletes),
		"items", s.Len())
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
		return fmt.Errorf("memory: %d item writers still open", n)
	}
	changes, err := w.Drain()
	if err != nil {
		return err
	}
	return w.store.commit(changes)
}

type reader struct {
	snap reified.Snapshot[[]byte]
}

func (r *reader) Categories() ([]string, error) {
	var out []string
	r.snap.Ascend(func(k string, _ sequenced.Sequenced[[]byte]) bool {
		c := decodeKey(k).Category
		if len(out) == 0 || out[len(out)-1] != c {
			out = append(out, c)
		}
		return true
	})
	return out, nil
}

func (r *reader) ItemKeys(category string) ([]string, bool, error) {
	res := reified.NewEnumerate[[]byte](func(k string) bool {
		return strings.HasPrefix(k, category+sep)
	}).Apply(&r.snap).(reified.EnumerateResult[[]byte])

	pairs := res.Pairs()
	if len(pairs) == 0 {
		return nil, false, nil
	}
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = decodeKey(p.Key).Key
	}
	return keys, true, nil
}

func (r *reader) GetItemReader(category, key string) (storage.ItemReader, bool, error) {
	res := reified.NewGet[[]byte](encodeKey(storage.ItemKey{Category: category, Key: key})).Apply(&r.snap)
	if !reified.Succeeded(res) {
		return nil, false, nil
	}
	data, _ := res.(reified.GetResult[[]byte]).Typed()
	return storage.NewItemReader(data), true, nil
}

func (r *reader) Close() error { return nil }
