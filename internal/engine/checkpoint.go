package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/reactq/internal/checkpoint"
	"github.com/yndnr/reactq/internal/checkpoint/persist"
	"github.com/yndnr/reactq/internal/core/domain"
	"github.com/yndnr/reactq/internal/core/entity"
	"github.com/yndnr/reactq/internal/core/operator"
	"github.com/yndnr/reactq/internal/storage"
	"github.com/yndnr/reactq/internal/telemetry/logger"
)

// pendingItem is one unit of checkpoint work.
type pendingItem struct {
	kind  entity.Kind
	uri   string
	rec   *record
	op    operator.StatefulOperator
	state bool
}

type pendingDelete struct {
	kind entity.Kind
	uri  string
}

// plan selects the items a checkpoint of the given kind writes and the
// undefined URIs it settles. A full checkpoint replaces the stored set,
// so its settled URIs need no delete.
func (e *Engine) plan(kind storage.CheckpointKind) ([]pendingItem, []pendingDelete) {
	full := kind == storage.Full
	var items []pendingItem
	var deletes []pendingDelete

	for _, k := range entity.Kinds {
		for _, entry := range e.registries[k].Sorted() {
			rec := entry.Value
			if full || !rec.committed.Load() {
				items = append(items, pendingItem{kind: k, uri: entry.Key, rec: rec})
			}
			inst, ok := rec.entity.(entity.Instance)
			if !ok {
				continue
			}
			op := inst.Operator()
			if op == nil {
				continue
			}
			if full || op.StateChanged() || !rec.stateCommitted.Load() {
				items = append(items, pendingItem{kind: k, uri: entry.Key, rec: rec, op: op, state: true})
			}
		}
		for _, uri := range e.removed[k].Keys() {
			deletes = append(deletes, pendingDelete{kind: k, uri: uri})
		}
	}
	return items, deletes
}

// Checkpoint writes the engine state into w and commits it. On failure
// the transaction is rolled back and no entity or operator is marked
// saved.
func (e *Engine) Checkpoint(ctx context.Context, w storage.StateWriter, p Progress) (err error) {
	e.session.Lock()
	defer e.session.Unlock()

	id := ulid.Make().String()
	ctx = logger.WithCheckpointID(logger.WithLogger(ctx, logger.FromSlog(e.logger)), id)
	log := logger.L(ctx).With("kind", w.CheckpointKind().String())
	start := time.Now()

	defer func() {
		if e.metrics != nil {
			e.metrics.ObserveCheckpoint(w.CheckpointKind().String(), start, err)
		}
		if err != nil {
			w.Rollback()
			log.Error("checkpoint failed", "error", err, "duration", time.Since(start))
		}
	}()

	pw, err := persist.NewWriter(checkpoint.CurrentFormatVersion)
	if err != nil {
		return err
	}

	items, settled := e.plan(w.CheckpointKind())
	deletes := settled
	if w.CheckpointKind() == storage.Full {
		deletes = nil
	}
	t := newTracker(p, len(items)+len(deletes))
	log.Debug("checkpoint started", "items", len(items), "deletes", len(deletes))

	var bytes int64
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		var n int64
		category := it.kind.String()
		if it.state {
			category = StateCategory(it.kind)
			n, err = e.writeState(w, it.kind, it.uri, it.op)
		} else {
			n, err = e.writeDefinition(w, pw, it.rec.entity)
		}
		if err != nil {
			return domain.ErrCheckpointFailed.WithCause(err)
		}
		bytes += n
		if e.metrics != nil {
			e.metrics.ItemsWritten.WithLabelValues(category).Inc()
		}
		t.step()
	}

	for _, d := range deletes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.DeleteItem(d.kind.String(), d.uri); err != nil {
			return domain.ErrCheckpointFailed.WithCause(err)
		}
		if d.kind.Runtime() {
			if err := w.DeleteItem(StateCategory(d.kind), d.uri); err != nil {
				return domain.ErrCheckpointFailed.WithCause(err)
			}
		}
		if e.metrics != nil {
			e.metrics.ItemsDeleted.WithLabelValues(d.kind.String()).Inc()
		}
		t.step()
	}

	if err := w.Commit(ctx); err != nil {
		return domain.ErrCheckpointFailed.WithCause(fmt.Errorf("commit: %w", err))
	}

	for _, it := range items {
		if it.state {
			it.rec.stateCommitted.Store(true)
			it.op.OnStateSaved()
		} else {
			it.rec.committed.Store(true)
		}
	}
	// URIs undefined after plan stay pending for the next checkpoint.
	for _, d := range settled {
		e.removed[d.kind].Delete(d.uri)
	}
	if e.metrics != nil {
		e.metrics.BytesWritten.Add(float64(bytes))
	}
	t.finish()

	log.Info("checkpoint committed",
		"items", len(items),
		"deletes", len(deletes),
		"bytes", bytes,
		"duration", time.Since(start))
	return nil
}
