package framing

import (
	"errors"
	"fmt"
	"io"

	"github.com/yndnr/reactq/internal/checkpoint/serialization"
)

// PrefixSize is the size of the frame length prefix.
const PrefixSize = 8

// Frame errors that do not carry stream diagnostics.
var (
	ErrClosed    = errors.New("framing: frame closed")
	ErrChildOpen = errors.New("framing: child frame still open")
)

// Writer writes one frame.
type Writer struct {
	ws     io.WriteSeeker
	ser    serialization.Serializer
	begin  int64
	parent *Writer
	child  *Writer
	length int64
	closed bool
}

// NewWriter opens a frame at the current position of ws.
func NewWriter(ws io.WriteSeeker, ser serialization.Serializer) (*Writer, error) {
	pos, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("framing: locate frame start: %w", err)
	}
	if err := serialization.WriteInt64(ws, 0); err != nil {
		return nil, fmt.Errorf("framing: write length placeholder: %w", err)
	}
	return &Writer{
		ws:    ws,
		ser:   ser,
		begin: pos + PrefixSize,
	}, nil
}

func (w *Writer) usable() error {
	if w.closed {
		return ErrClosed
	}
	if w.child != nil {
		return ErrChildOpen
	}
	return nil
}

// Serializer returns the serializer values are written with.
func (w *Writer) Serializer() serialization.Serializer {
	return w.ser
}

// Write serializes v into the frame.
func (w *Writer) Write(v any) error {
	if err := w.usable(); err != nil {
		return err
	}
	return w.ser.Serialize(w.ws, v)
}

// WriteBytes appends p to the frame without going through the serializer.
func (w *Writer) WriteBytes(p []byte) error {
	if err := w.usable(); err != nil {
		return err
	}
	_, err := w.ws.Write(p)
	return err
}

// Child opens a nested frame at the current position.
func (w *Writer) Child() (*Writer, error) {
	if err := w.usable(); err != nil {
		return nil, err
	}
	c, err := NewWriter(w.ws, w.ser)
	if err != nil {
		return nil, err
	}
	c.parent = w
	w.child = c
	return c, nil
}

// Len returns the number of payload bytes written so far, or the final
// length once closed.
func (w *Writer) Len() int64 {
	if w.closed {
		return w.length
	}
	pos, err := w.ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	return pos - w.begin
}

// Close back-patches the length prefix and leaves the stream positioned
// at the end of the frame. Closing twice is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if w.child != nil {
		if err := w.child.Close(); err != nil {
			return err
		}
	}

	end, err := w.ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("framing: locate frame end: %w", err)
	}
	w.length = end - w.begin

	if _, err := w.ws.Seek(w.begin-PrefixSize, io.SeekStart); err != nil {
		return fmt.Errorf("framing: seek to length prefix: %w", err)
	}
	if err := serialization.WriteInt64(w.ws, w.length); err != nil {
		return fmt.Errorf("framing: patch length prefix: %w", err)
	}
	if _, err := w.ws.Seek(end, io.SeekStart); err != nil {
		return fmt.Errorf("framing: seek to frame end: %w", err)
	}

	w.closed = true
	if w.parent != nil {
		w.parent.child = nil
	}
	return nil
}

// Put writes v into w.
func Put[T any](w *Writer, v T) error {
	return w.Write(v)
}
