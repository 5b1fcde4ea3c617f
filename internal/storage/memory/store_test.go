package memory

import (
	"context"
	"io"
	"testing"

	"github.com/yndnr/reactq/internal/storage"
	"github.com/yndnr/reactq/internal/storage/storagetest"
	"github.com/yndnr/reactq/pkg/sequenced"
)

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return New() })
}

func TestStore_ItemVersions(t *testing.T) {
	s := New(WithAllocator(sequenced.NewAllocator(100)))
	key := storage.ItemKey{Category: "ops", Key: "op1"}

	storagetest.Commit(t, s, storage.Full, map[storage.ItemKey]string{key: "v1"}, nil)
	first, ok := s.Version(key.Category, key.Key)
	if !ok || first != 101 {
		t.Fatalf("Version() = %d, %v; want 101", first, ok)
	}

	storagetest.Commit(t, s, storage.Differential, map[storage.ItemKey]string{key: "v2"}, nil)
	second, _ := s.Version(key.Category, key.Key)
	if second <= first {
		t.Errorf("Version() after rewrite = %d, want > %d", second, first)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStore_OpenItemWriterBlocksCommit(t *testing.T) {
	s := New()
	w, err := s.Writer(storage.Full)
	if err != nil {
		t.Fatal(err)
	}
	iw, _ := w.GetItemWriter("ops", "op1")
	io.WriteString(iw, "x")
	if err := w.Commit(context.Background()); err == nil {
		t.Error("Commit() with an open item writer should fail")
	}
	iw.Close()
	if err := w.Commit(context.Background()); err != nil {
		t.Errorf("Commit() after closing item writer error = %v", err)
	}
}
