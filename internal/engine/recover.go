package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/reactq/internal/core/domain"
	"github.com/yndnr/reactq/internal/core/entity"
	"github.com/yndnr/reactq/internal/storage"
	"github.com/yndnr/reactq/internal/telemetry/logger"
)

// ErrNotEmpty is returned when recovering into an engine holding entities.
var ErrNotEmpty = errors.New("engine: recover requires an empty engine; unload first")

// Recover loads every entity and operator state from r. Templates are
// read first. On failure the engine is left empty.
func (e *Engine) Recover(ctx context.Context, r storage.StateReader, p Progress) (err error) {
	e.session.Lock()
	defer e.session.Unlock()

	if e.Len() > 0 {
		return ErrNotEmpty
	}

	id := ulid.Make().String()
	ctx = logger.WithCheckpointID(logger.WithLogger(ctx, logger.FromSlog(e.logger)), id)
	log := logger.L(ctx)
	start := time.Now()

	defer func() {
		if e.metrics != nil {
			e.metrics.ObserveRecovery(start, err)
		}
		if err != nil {
			e.clear()
			log.Error("recovery failed", "error", err, "duration", time.Since(start))
		}
	}()

	keys := make(map[entity.Kind][]string, len(entity.Kinds))
	total := 0
	for _, k := range entity.Kinds {
		ks, _, err := r.ItemKeys(k.String())
		if err != nil {
			return domain.ErrRecoveryFailed.WithCause(err)
		}
		keys[k] = ks
		total += len(ks)
	}
	e.logUnknownCategories(r, log)

	t := newTracker(p, total)
	var bytes int64
	for _, k := range entity.Kinds {
		for _, key := range keys[k] {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := e.recoverOne(r, k, key)
			if err != nil {
				return domain.ErrRecoveryFailed.WithCause(err)
			}
			bytes += n
			t.step()
		}
	}

	if e.metrics != nil {
		e.metrics.BytesRead.Add(float64(bytes))
	}
	t.finish()
	log.Info("recovery completed",
		"entities", e.Len(),
		"bytes", bytes,
		"duration", time.Since(start))
	return nil
}

func (e *Engine) recoverOne(r storage.StateReader, kind entity.Kind, key string) (int64, error) {
	ent, n, err := e.readDefinition(r, kind, key)
	if err != nil {
		return 0, err
	}
	if ent.URI() != key {
		return 0, fmt.Errorf("read %s/%s: item holds entity %s", kind, key, ent.URI())
	}

	rec := &record{entity: ent}
	rec.committed.Store(true)

	if inst, ok := ent.(entity.Instance); ok {
		op, err := e.instantiate(ent)
		if err != nil {
			return 0, err
		}
		sn, found, err := e.readState(r, kind, key, op)
		if err != nil {
			return 0, err
		}
		if found {
			rec.stateCommitted.Store(true)
			n += sn
			if e.metrics != nil {
				e.metrics.ItemsRead.WithLabelValues(StateCategory(kind)).Inc()
			}
		}
		inst.Attach(op)
	}

	if !e.registries[kind].SetIfAbsent(key, rec) {
		return 0, domain.ErrEntityConflict.WithDetailsf("%s %s", kind, key)
	}
	e.updateGauge(kind)
	if e.metrics != nil {
		e.metrics.ItemsRead.WithLabelValues(kind.String()).Inc()
	}
	return n, nil
}

// logUnknownCategories reports categories this engine does not own.
func (e *Engine) logUnknownCategories(r storage.StateReader, log logger.Logger) {
	cats, err := r.Categories()
	if err != nil {
		return
	}
	known := make(map[string]bool, 2*len(entity.Kinds))
	for _, k := range entity.Kinds {
		known[k.String()] = true
		known[StateCategory(k)] = true
	}
	for _, c := range cats {
		if !known[c] {
			log.Debug("ignoring unknown category", "category", c)
		}
	}
}

// Unload drops every entity from memory. Persisted state is untouched:
// nothing is marked for deletion.
func (e *Engine) Unload(ctx context.Context, p Progress) error {
	e.session.Lock()
	defer e.session.Unlock()

	t := newTracker(p, e.Len())
	for _, k := range entity.Kinds {
		for _, uri := range e.registries[k].Keys() {
			if err := ctx.Err(); err != nil {
				if e.metrics != nil {
					e.metrics.Failures.WithLabelValues("unload").Inc()
				}
				return err
			}
			if rec, ok := e.registries[k].Pop(uri); ok {
				if inst, ok := rec.entity.(entity.Instance); ok {
					inst.Attach(nil)
				}
			}
			t.step()
		}
		e.removed[k].Clear()
		e.updateGauge(k)
	}
	t.finish()
	e.logger.Info("engine unloaded")
	return nil
}

func (e *Engine) clear() {
	for _, k := range entity.Kinds {
		e.registries[k].Clear()
		e.removed[k].Clear()
		e.updateGauge(k)
	}
}
