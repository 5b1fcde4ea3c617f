// Package storagetest provides a conformance suite for storage.Store
// implementations.
package storagetest

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/yndnr/reactq/internal/core/domain"
	"github.com/yndnr/reactq/internal/storage"
)

// Factory creates an empty store for one subtest.
type Factory func(t *testing.T) storage.Store

// Run exercises the storage.Store contract against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("DifferentialWithoutFull", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Writer(storage.Differential); !errors.Is(err, domain.ErrNoFullCheckpoint) {
			t.Fatalf("Writer(Differential) error = %v, want ErrNoFullCheckpoint", err)
		}
	})

	t.Run("EmptyStore", func(t *testing.T) {
		s := newStore(t)
		r := mustReader(t, s)
		defer r.Close()
		cats, err := r.Categories()
		if err != nil || len(cats) != 0 {
			t.Errorf("Categories() = %v, %v; want empty", cats, err)
		}
		if _, ok, err := r.ItemKeys("ops"); ok || err != nil {
			t.Errorf("ItemKeys() ok = %v, err = %v", ok, err)
		}
	})

	t.Run("FullThenDifferential", func(t *testing.T) {
		s := newStore(t)
		Commit(t, s, storage.Full, map[storage.ItemKey]string{
			{Category: "ops", Key: "op1"}:             "one",
			{Category: "ops", Key: "op2"}:             "two",
			{Category: "templates", Key: "rx://t/a"}: "tpl",
		}, nil)

		Expect(t, s, map[storage.ItemKey]string{
			{Category: "ops", Key: "op1"}:             "one",
			{Category: "ops", Key: "op2"}:             "two",
			{Category: "templates", Key: "rx://t/a"}: "tpl",
		})

		Commit(t, s, storage.Differential, map[storage.ItemKey]string{
			{Category: "ops", Key: "op2"}: "two-v2",
			{Category: "ops", Key: "op3"}: "three",
		}, []storage.ItemKey{{Category: "templates", Key: "rx://t/a"}})

		Expect(t, s, map[storage.ItemKey]string{
			{Category: "ops", Key: "op1"}: "one",
			{Category: "ops", Key: "op2"}: "two-v2",
			{Category: "ops", Key: "op3"}: "three",
		})
	})

	t.Run("FullReplacesEverything", func(t *testing.T) {
		s := newStore(t)
		Commit(t, s, storage.Full, map[storage.ItemKey]string{
			{Category: "ops", Key: "a"}: "1",
			{Category: "ops", Key: "b"}: "2",
		}, nil)
		Commit(t, s, storage.Full, map[storage.ItemKey]string{
			{Category: "subjects", Key: "c"}: "3",
		}, nil)
		Expect(t, s, map[storage.ItemKey]string{
			{Category: "subjects", Key: "c"}: "3",
		})
	})

	t.Run("Rollback", func(t *testing.T) {
		s := newStore(t)
		w, err := s.Writer(storage.Full)
		if err != nil {
			t.Fatal(err)
		}
		writeItem(t, w, storage.ItemKey{Category: "ops", Key: "a"}, "1")
		if err := w.Rollback(); err != nil {
			t.Fatal(err)
		}
		if err := w.Commit(context.Background()); !errors.Is(err, domain.ErrWriterClosed) {
			t.Errorf("Commit() after Rollback() error = %v, want ErrWriterClosed", err)
		}
		Expect(t, s, map[storage.ItemKey]string{})
	})

	t.Run("ReaderIsStable", func(t *testing.T) {
		s := newStore(t)
		Commit(t, s, storage.Full, map[storage.ItemKey]string{{Category: "ops", Key: "a"}: "old"}, nil)
		r := mustReader(t, s)
		defer r.Close()
		Commit(t, s, storage.Full, map[storage.ItemKey]string{{Category: "ops", Key: "a"}: "new"}, nil)

		if got := readItem(t, r, storage.ItemKey{Category: "ops", Key: "a"}); got != "old" {
			t.Errorf("reader opened before commit sees %q, want old", got)
		}
	})

	t.Run("CanceledCommit", func(t *testing.T) {
		s := newStore(t)
		w, err := s.Writer(storage.Full)
		if err != nil {
			t.Fatal(err)
		}
		writeItem(t, w, storage.ItemKey{Category: "ops", Key: "a"}, "1")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := w.Commit(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Commit() error = %v, want context.Canceled", err)
		}
		Expect(t, s, map[storage.ItemKey]string{})
	})
}

// Commit writes items and deletions in one transaction.
func Commit(t *testing.T, s storage.Store, kind storage.CheckpointKind, items map[storage.ItemKey]string, deletes []storage.ItemKey) {
	t.Helper()
	w, err := s.Writer(kind)
	if err != nil {
		t.Fatalf("Writer(%s) error = %v", kind, err)
	}
	for k, v := range items {
		writeItem(t, w, k, v)
	}
	for _, k := range deletes {
		if err := w.DeleteItem(k.Category, k.Key); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Commit(context.Background()); err != nil {
		t.Fatalf("Commit(%s) error = %v", kind, err)
	}
}

// Expect asserts the committed state equals want.
func Expect(t *testing.T, s storage.Store, want map[storage.ItemKey]string) {
	t.Helper()
	r := mustReader(t, s)
	defer r.Close()

	got := map[storage.ItemKey]string{}
	cats, err := r.Categories()
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cats {
		keys, ok, err := r.ItemKeys(c)
		if err != nil || !ok {
			t.Fatalf("ItemKeys(%s) = %v, %v", c, ok, err)
		}
		for _, k := range keys {
			key := storage.ItemKey{Category: c, Key: k}
			got[key] = readItem(t, r, key)
		}
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("committed state = %v, want %v", got, want)
	}
}

func mustReader(t *testing.T, s storage.Store) storage.StateReader {
	t.Helper()
	r, err := s.Reader()
	if err != nil {
		t.Fatalf("Reader() error = %v", err)
	}
	return r
}

func writeItem(t *testing.T, w storage.StateWriter, k storage.ItemKey, v string) {
	t.Helper()
	iw, err := w.GetItemWriter(k.Category, k.Key)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(iw, v); err != nil {
		t.Fatal(err)
	}
	if err := iw.Close(); err != nil {
		t.Fatal(err)
	}
}

func readItem(t *testing.T, r storage.StateReader, k storage.ItemKey) string {
	t.Helper()
	ir, ok, err := r.GetItemReader(k.Category, k.Key)
	if err != nil || !ok {
		t.Fatalf("GetItemReader(%s) = %v, %v", k, ok, err)
	}
	defer ir.Close()
	data, err := io.ReadAll(ir)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
