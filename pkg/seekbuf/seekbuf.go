// Package seekbuf provides an in-memory io.ReadWriteSeeker.
//
// Checkpoint frames back-patch their length prefix, so item writers need
// a seekable sink; bytes.Buffer cannot seek and bytes.Reader cannot write.
package seekbuf

import (
	"errors"
	"io"
)

// ErrNegativePosition is returned when a seek lands before the start.
var ErrNegativePosition = errors.New("seekbuf: negative position")

// Buffer is a growable byte slice with a read/write cursor.
// Writing past the end extends the buffer; seeking past the end and then
// writing zero-fills the gap. The zero value is an empty buffer.
type Buffer struct {
	buf []byte
	pos int64
}

// New creates a buffer over data. The buffer takes ownership of data.
func New(data []byte) *Buffer {
	return &Buffer{buf: data}
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.buf)) {
		if end > int64(cap(b.buf)) {
			grown := make([]byte, end, max(end, 2*int64(cap(b.buf))))
			copy(grown, b.buf)
			b.buf = grown
		} else {
			b.buf = b.buf[:end]
		}
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

// Read implements io.Reader.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.pos >= int64(len(b.buf)) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[b.pos:])
	b.pos += int64(n)
	return n, nil
}

// Seek implements io.Seeker.
func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = b.pos + offset
	case io.SeekEnd:
		next = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("seekbuf: invalid whence")
	}
	if next < 0 {
		return 0, ErrNegativePosition
	}
	b.pos = next
	return next, nil
}

// Bytes returns the buffer contents. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Len returns the total number of bytes held.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Close implements io.Closer. It is a no-op so Buffer can stand in for files.
func (b *Buffer) Close() error {
	return nil
}
