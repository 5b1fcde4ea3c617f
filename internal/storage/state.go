package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/yndnr/reactq/internal/core/domain"
	"github.com/yndnr/reactq/pkg/seekbuf"
)

// CheckpointKind selects full or differential checkpoints.
type CheckpointKind int

const (
	// Full rewrites every item; items not written are removed.
	Full CheckpointKind = iota
	// Differential writes changed items and deletes removed ones.
	Differential
)

func (k CheckpointKind) String() string {
	switch k {
	case Full:
		return "full"
	case Differential:
		return "differential"
	}
	return fmt.Sprintf("CheckpointKind(%d)", int(k))
}

// ParseCheckpointKind parses "full" or "differential".
func ParseCheckpointKind(s string) (CheckpointKind, error) {
	switch s {
	case "full":
		return Full, nil
	case "differential", "diff":
		return Differential, nil
	}
	return Full, fmt.Errorf("storage: unknown checkpoint kind %q", s)
}

// ItemKey addresses one item stream.
type ItemKey struct {
	Category string
	Key      string
}

func (k ItemKey) String() string {
	return k.Category + "/" + k.Key
}

// ItemWriter is the sink of one item. Close hands the bytes to the
// transaction.
type ItemWriter interface {
	io.WriteSeeker
	io.Closer
}

// ItemReader reads one item.
type ItemReader interface {
	io.ReadSeeker
	io.Closer
}

// StateWriter is a checkpoint transaction.
type StateWriter interface {
	CheckpointKind() CheckpointKind
	// GetItemWriter opens the stream for (category, key). The item is
	// staged when the stream is closed.
	GetItemWriter(category, key string) (ItemWriter, error)
	// DeleteItem removes (category, key) on commit.
	DeleteItem(category, key string) error
	// Commit applies all staged changes atomically.
	Commit(ctx context.Context) error
	// Rollback discards all staged changes.
	Rollback() error
}

// StateReader is a read-only view of committed state.
type StateReader interface {
	// Categories lists categories holding at least one item, sorted.
	Categories() ([]string, error)
	// ItemKeys lists the keys of category, sorted. ok is false when the
	// category is empty.
	ItemKeys(category string) (keys []string, ok bool, err error)
	// GetItemReader opens (category, key). ok is false when absent.
	GetItemReader(category, key string) (r ItemReader, ok bool, err error)
	Close() error
}

// Store creates transactions and views.
type Store interface {
	Writer(kind CheckpointKind) (StateWriter, error)
	Reader() (StateReader, error)
}

// Changes are the staged effects of a checkpoint transaction.
type Changes struct {
	Kind    CheckpointKind
	Puts    map[ItemKey][]byte
	Deletes []ItemKey
}

// SortedPuts returns the staged item keys in category/key order.
func (c *Changes) SortedPuts() []ItemKey {
	keys := make([]ItemKey, 0, len(c.Puts))
	for k := range c.Puts {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// SortKeys orders keys by category then key.
func SortKeys(keys []ItemKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Category != keys[j].Category {
			return keys[i].Category < keys[j].Category
		}
		return keys[i].Key < keys[j].Key
	})
}

// Staging buffers the item streams of one transaction in memory. Store
// writers embed it and implement Commit on top of Drain.
type Staging struct {
	kind CheckpointKind

	mu      sync.Mutex
	puts    map[ItemKey][]byte
	deletes map[ItemKey]struct{}
	open    int
	closed  bool
}

// NewStaging creates an empty staging area.
func NewStaging(kind CheckpointKind) *Staging {
	return &Staging{
		kind:    kind,
		puts:    make(map[ItemKey][]byte),
		deletes: make(map[ItemKey]struct{}),
	}
}

// CheckpointKind implements StateWriter.
func (s *Staging) CheckpointKind() CheckpointKind { return s.kind }

// GetItemWriter implements StateWriter.
func (s *Staging) GetItemWriter(category, key string) (ItemWriter, error) {
	if category == "" || key == "" {
		return nil, fmt.Errorf("storage: empty category or key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrWriterClosed
	}
	s.open++
	return &stagedItem{Buffer: &seekbuf.Buffer{}, key: ItemKey{category, key}, staging: s}, nil
}

// DeleteItem implements StateWriter.
func (s *Staging) DeleteItem(category, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrWriterClosed
	}
	k := ItemKey{category, key}
	delete(s.puts, k)
	s.deletes[k] = struct{}{}
	return nil
}

// Rollback implements StateWriter.
func (s *Staging) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.puts = nil
	s.deletes = nil
	return nil
}

// Drain closes the staging area and returns its changes. Item streams
// still open are not included.
func (s *Staging) Drain() (*Changes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrWriterClosed
	}
	s.closed = true

	c := &Changes{Kind: s.kind, Puts: s.puts}
	for k := range s.deletes {
		c.Deletes = append(c.Deletes, k)
	}
	SortKeys(c.Deletes)
	return c, nil
}

// Pending reports the number of item streams not yet closed.
func (s *Staging) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Staging) stage(k ItemKey, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open--
	if s.closed {
		return domain.ErrWriterClosed
	}
	delete(s.deletes, k)
	s.puts[k] = data
	return nil
}

type stagedItem struct {
	*seekbuf.Buffer
	key     ItemKey
	staging *Staging
	done    bool
}

func (w *stagedItem) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.staging.stage(w.key, w.Bytes())
}

// NewItemReader wraps committed item bytes.
func NewItemReader(data []byte) ItemReader {
	return seekbuf.New(data)
}
