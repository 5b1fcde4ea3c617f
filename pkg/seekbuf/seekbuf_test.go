package seekbuf

import (
	"bytes"
	"io"
	"testing"
)

func TestBuffer_WriteSeekPatch(t *testing.T) {
	b := &Buffer{}
	if _, err := b.Write([]byte("xxxxhello")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Write([]byte("abcd")); err != nil {
		t.Fatal(err)
	}
	if pos, _ := b.Seek(0, io.SeekEnd); pos != 9 {
		t.Errorf("end = %d, want 9", pos)
	}
	if got := string(b.Bytes()); got != "abcdhello" {
		t.Errorf("Bytes() = %q", got)
	}
}

func TestBuffer_ReadAfterSeek(t *testing.T) {
	b := New([]byte("0123456789"))
	if _, err := b.Seek(-3, io.SeekEnd); err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "789" {
		t.Errorf("ReadAll = %q, want 789", got)
	}
	if _, err := b.Seek(-1, io.SeekStart); err != ErrNegativePosition {
		t.Errorf("Seek(-1) err = %v", err)
	}
}

func TestBuffer_WritePastEnd(t *testing.T) {
	b := &Buffer{}
	if _, err := b.Seek(4, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Write([]byte{0xFF}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b.Bytes(), []byte{0, 0, 0, 0, 0xFF}) {
		t.Errorf("Bytes() = % x", b.Bytes())
	}
}
