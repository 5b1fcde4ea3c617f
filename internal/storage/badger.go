package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/reactq/internal/core/domain"
)

// Key layout:
//
//	c/<category>/<key>  item bytes
//	m/full              id of the last full checkpoint
//	m/last              id of the last checkpoint of any kind
const (
	itemPrefix = "c/"
	metaFull   = "m/full"
	metaLast   = "m/last"
)

// ErrClosed is returned by a closed store.
var ErrClosed = errors.New("storage: badger store closed")

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// Dir is the database directory. Empty means in-memory.
	Dir string `koanf:"dir"`

	// GCInterval is the interval between value log GC runs.
	// Default: 10m
	GCInterval string `koanf:"gc_interval"`

	// GCThreshold is the discard ratio passed to RunValueLogGC.
	// Default: 0.5
	GCThreshold float64 `koanf:"gc_threshold"`

	// CacheSize is the block cache size in bytes.
	// Default: 64MB
	CacheSize int64 `koanf:"cache_size"`

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 256MB
	ValueLogFileSize int64 `koanf:"value_log_file_size"`

	// NumMemtables is the number of memtables.
	// Default: 2
	NumMemtables int `koanf:"num_memtables"`

	// SyncWrites fsyncs every commit.
	// Default: true
	SyncWrites bool `koanf:"sync_writes"`
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:              dir,
		GCInterval:       "10m",
		GCThreshold:      0.5,
		CacheSize:        64 << 20,  // 64MB
		ValueLogFileSize: 256 << 20, // 256MB
		NumMemtables:     2,
		SyncWrites:       true,
	}
}

// BadgerStats contains storage statistics.
type BadgerStats struct {
	LSMSize          int64
	ValueLogSize     int64
	LastCheckpoint   string
	LastFull         string
	LastGCTime       int64 // Unix milliseconds
	GCBytesReclaimed uint64
}

// BadgerStore is a durable Store on Badger v3. Each checkpoint commits in
// one Badger transaction.
type BadgerStore struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger

	commitMu sync.Mutex
	closed   atomic.Bool

	lastGCTime       atomic.Int64
	gcBytesReclaimed atomic.Uint64

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsGCReclaimed  prometheus.Counter
	metricsCommits      *prometheus.CounterVec

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewBadgerStore opens a Badger-backed store.
func NewBadgerStore(cfg BadgerConfig, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.Dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.NumMemtables > 0 {
		opts.NumMemtables = cfg.NumMemtables
	}
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go s.gcLoop()

	logger.Info("badger store opened",
		"dir", cfg.Dir,
		"cache_size", cfg.CacheSize,
		"gc_interval", cfg.GCInterval)

	return s, nil
}

func itemKey(k ItemKey) []byte {
	return []byte(itemPrefix + k.Category + "/" + k.Key)
}

func parseItemKey(raw []byte) (ItemKey, bool) {
	rest, ok := strings.CutPrefix(string(raw), itemPrefix)
	if !ok {
		return ItemKey{}, false
	}
	category, key, ok := strings.Cut(rest, "/")
	return ItemKey{Category: category, Key: key}, ok
}

// Writer implements Store.
func (s *BadgerStore) Writer(kind CheckpointKind) (StateWriter, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if kind == Differential {
		ok, err := s.hasFull()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrNoFullCheckpoint
		}
	}
	return &badgerWriter{Staging: NewStaging(kind), store: s}, nil
}

// Reader implements Store. The reader holds a read transaction until closed.
func (s *BadgerStore) Reader() (StateReader, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return &badgerReader{txn: s.db.NewTransaction(false)}, nil
}

func (s *BadgerStore) hasFull() (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(metaFull))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *BadgerStore) commit(c *Changes) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	id := ulid.Make().String()
	start := time.Now()

	err := s.db.Update(func(txn *badger.Txn) error {
		if c.Kind == Full {
			if err := deletePrefix(txn, []byte(itemPrefix)); err != nil {
				return err
			}
			if err := txn.Set([]byte(metaFull), []byte(id)); err != nil {
				return err
			}
		} else {
			if _, err := txn.Get([]byte(metaFull)); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return domain.ErrNoFullCheckpoint
				}
				return err
			}
			for _, k := range c.Deletes {
				if err := txn.Delete(itemKey(k)); err != nil {
					return err
				}
			}
		}
		for _, k := range c.SortedPuts() {
			if err := txn.Set(itemKey(k), c.Puts[k]); err != nil {
				return err
			}
		}
		return txn.Set([]byte(metaLast), []byte(id))
	})

	result := "ok"
	if err != nil {
		result = "error"
	}
	if s.metricsCommits != nil {
		s.metricsCommits.WithLabelValues(c.Kind.String(), result).Inc()
	}
	if err != nil {
		if errors.Is(err, badger.ErrTxnTooBig) {
			return fmt.Errorf("badger: checkpoint %s too large for one transaction: %w", id, err)
		}
		return fmt.Errorf("badger: commit %s: %w", id, err)
	}

	s.logger.Info("badger checkpoint committed",
		"checkpoint_id", id,
		"kind", c.Kind.String(),
		"puts", len(c.Puts),
		"deletes", len(c.Deletes),
		"elapsed", time.Since(start))
	return nil
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// GC runs value log garbage collection until nothing is rewritten.
// Returns bytes reclaimed (approximate).
func (s *BadgerStore) GC(ctx context.Context) (uint64, error) {
	if s.cfg.Dir == "" {
		return 0, nil
	}
	startTime := time.Now()

	var total uint64
	for ctx.Err() == nil {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return total, fmt.Errorf("gc: %w", err)
		}
		// Badger does not report reclaimed bytes; count ~1MB per cycle.
		total += 1 << 20
	}

	s.lastGCTime.Store(time.Now().UnixMilli())
	s.gcBytesReclaimed.Add(total)
	if s.metricsGCReclaimed != nil {
		s.metricsGCReclaimed.Add(float64(total))
	}

	s.logger.Info("gc completed",
		"bytes_reclaimed", total,
		"elapsed", time.Since(startTime))

	return total, nil
}

// Stats returns storage statistics.
func (s *BadgerStore) Stats() (*BadgerStats, error) {
	lsm, vlog := s.db.Size()
	stats := &BadgerStats{
		LSMSize:          lsm,
		ValueLogSize:     vlog,
		LastGCTime:       s.lastGCTime.Load(),
		GCBytesReclaimed: s.gcBytesReclaimed.Load(),
	}
	err := s.db.View(func(txn *badger.Txn) error {
		for key, dst := range map[string]*string{metaFull: &stats.LastFull, metaLast: &stats.LastCheckpoint} {
			item, err := txn.Get([]byte(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			*dst = string(v)
		}
		return nil
	})
	return stats, err
}

// Close stops background work and closes the database.
func (s *BadgerStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Info("shutting down badger store")
		s.closed.Store(true)
		close(s.stopCh)
		<-s.doneCh
		if cerr := s.db.Close(); cerr != nil {
			err = fmt.Errorf("close db: %w", cerr)
		}
	})
	return err
}

// RegisterMetrics registers Badger metrics with Prometheus.
func (s *BadgerStore) RegisterMetrics(registry prometheus.Registerer) *BadgerStore {
	s.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reactq",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	s.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reactq",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	s.metricsGCReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reactq",
		Subsystem: "badger",
		Name:      "gc_bytes_reclaimed_total",
		Help:      "Total bytes reclaimed by Badger garbage collection",
	})
	s.metricsCommits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reactq",
		Subsystem: "badger",
		Name:      "commits_total",
		Help:      "Checkpoint commits by kind and result",
	}, []string{"kind", "result"})

	registry.MustRegister(
		s.metricsLSMSize,
		s.metricsValueLogSize,
		s.metricsGCReclaimed,
		s.metricsCommits,
	)

	go s.metricsUpdateLoop()
	return s
}

func (s *BadgerStore) metricsUpdateLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lsm, vlog := s.db.Size()
			s.metricsLSMSize.Set(float64(lsm))
			s.metricsValueLogSize.Set(float64(vlog))
		case <-s.stopCh:
			return
		}
	}
}

func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)

	interval, err := time.ParseDuration(s.cfg.GCInterval)
	if err != nil || interval <= 0 {
		s.logger.Error("invalid gc_interval, using default 10m", "value", s.cfg.GCInterval)
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := s.GC(ctx); err != nil {
				s.logger.Error("auto gc failed", "error", err)
			}
			cancel()
		case <-s.stopCh:
			return
		}
	}
}

type badgerWriter struct {
	*Staging
	store *BadgerStore
}

func (w *badgerWriter) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		w.Rollback()
		return err
	}
	if w.store.closed.Load() {
		return ErrClosed
	}
	if n := w.Pending(); n > 0 {
		return fmt.Errorf("badger: %d item writers still open", n)
	}
	changes, err := w.Drain()
	if err != nil {
		return err
	}
	return w.store.commit(changes)
}

type badgerReader struct {
	txn *badger.Txn
}

func (r *badgerReader) scan(prefix string, fn func(k ItemKey)) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	it := r.txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if k, ok := parseItemKey(it.Item().Key()); ok {
			fn(k)
		}
	}
}

func (r *badgerReader) Categories() ([]string, error) {
	var out []string
	r.scan(itemPrefix, func(k ItemKey) {
		if len(out) == 0 || out[len(out)-1] != k.Category {
			out = append(out, k.Category)
		}
	})
	sort.Strings(out)
	return out, nil
}

func (r *badgerReader) ItemKeys(category string) ([]string, bool, error) {
	var keys []string
	r.scan(itemPrefix+category+"/", func(k ItemKey) {
		keys = append(keys, k.Key)
	})
	return keys, len(keys) > 0, nil
}

func (r *badgerReader) GetItemReader(category, key string) (ItemReader, bool, error) {
	item, err := r.txn.Get(itemKey(ItemKey{Category: category, Key: key}))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return NewItemReader(data), true, nil
}

func (r *badgerReader) Close() error {
	r.txn.Discard()
	return nil
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
