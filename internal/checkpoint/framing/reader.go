package framing

import (
	"errors"
	"fmt"
	"io"

	"github.com/yndnr/reactq/internal/checkpoint/serialization"
	"github.com/yndnr/reactq/internal/core/domain"
)

// dumpWindow is how many trailing stream bytes a format error captures.
const dumpWindow = 256

// ReaderOption configures a Reader.
type ReaderOption func(*readerOptions)

type readerOptions struct {
	transitioning   bool
	operator        string
	operatorVersion string
}

// AllowTransitioning tolerates a missing length prefix. The reader then
// falls back to unframed (legacy) mode: TryRead reports false and Read
// consumes the underlying stream directly.
func AllowTransitioning() ReaderOption {
	return func(o *readerOptions) {
		o.transitioning = true
	}
}

// WithOperator attaches the operator identity to format errors.
func WithOperator(name, version string) ReaderOption {
	return func(o *readerOptions) {
		o.operator = name
		o.operatorVersion = version
	}
}

// Reader reads one frame.
type Reader struct {
	rs     io.ReadSeeker
	ser    serialization.Serializer
	opts   readerOptions
	origin int64
	start  int64
	end    int64
	pos    int64
	legacy bool
	parent *Reader
	child  *Reader
	closed bool
}

// NewReader opens the frame starting at the current position of rs.
func NewReader(rs io.ReadSeeker, ser serialization.Serializer, opts ...ReaderOption) (*Reader, error) {
	o := readerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	return openReader(rs, ser, o, -1)
}

func openReader(rs io.ReadSeeker, ser serialization.Serializer, o readerOptions, limit int64) (*Reader, error) {
	origin, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("framing: locate frame start: %w", err)
	}
	size, err := streamSize(rs, origin)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		limit = size
	}

	r := &Reader{rs: rs, ser: ser, opts: o, origin: origin}

	if limit-origin < PrefixSize {
		if o.transitioning {
			r.legacy = true
			r.start, r.pos, r.end = origin, origin, limit
			return r, nil
		}
		return nil, r.formatError(domain.ErrMissingLengthPrefix, origin, size)
	}

	length, err := serialization.ReadInt64(rs)
	if err != nil {
		return nil, fmt.Errorf("framing: read length prefix: %w", err)
	}

	r.start = origin + PrefixSize
	r.pos = r.start
	if length < 0 || length > limit-r.start {
		return nil, r.formatError(domain.ErrFrameOverrun.WithDetailsf("length %d", length), origin, size)
	}
	r.end = r.start + length
	return r, nil
}

func streamSize(rs io.ReadSeeker, restore int64) (int64, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("framing: locate stream end: %w", err)
	}
	if _, err := rs.Seek(restore, io.SeekStart); err != nil {
		return 0, fmt.Errorf("framing: restore position: %w", err)
	}
	return size, nil
}

// formatError builds a FormatError with the tail of the stream attached.
func (r *Reader) formatError(err *domain.DomainError, position, size int64) error {
	from := size - dumpWindow
	if from < 0 {
		from = 0
	}
	blob := make([]byte, size-from)
	if _, serr := r.rs.Seek(from, io.SeekStart); serr == nil {
		n, _ := io.ReadFull(r.rs, blob)
		blob = blob[:n]
	}
	_, _ = r.rs.Seek(position, io.SeekStart)

	fe := domain.NewFormatError(err, position, blob)
	if r.opts.operator != "" {
		fe = fe.WithOperator(r.opts.operator, r.opts.operatorVersion)
	}
	return fe
}

func (r *Reader) usable() error {
	if r.closed {
		return ErrClosed
	}
	if r.child != nil {
		return ErrChildOpen
	}
	return nil
}

// Serializer returns the serializer values are read with.
func (r *Reader) Serializer() serialization.Serializer {
	return r.ser
}

// Framed reports whether a frame was established (false in legacy mode).
func (r *Reader) Framed() bool {
	return !r.legacy
}

// Len returns the declared payload length (0 in legacy mode).
func (r *Reader) Len() int64 {
	if r.legacy {
		return 0
	}
	return r.end - r.start
}

// Remaining returns the number of unread payload bytes.
func (r *Reader) Remaining() int64 {
	return r.end - r.pos
}

// Read deserializes one value into the pointer v.
func (r *Reader) Read(v any) error {
	if err := r.usable(); err != nil {
		return err
	}
	at := r.pos
	if err := r.ser.Deserialize(&bounded{r: r}, v); err != nil {
		if errors.Is(err, domain.ErrCorruptValue) {
			return r.corrupt(err, at)
		}
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("framing: read %T at %d: %w", v, at, err)
	}
	return nil
}

// corrupt reports an undecodable value at position at and skips the
// reader to the end of the value.
func (r *Reader) corrupt(err error, at int64) error {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		de = domain.ErrCorruptValue.WithCause(err)
	}
	size, serr := streamSize(r.rs, r.pos)
	if serr != nil {
		return err
	}
	fe := r.formatError(de, at, size)
	_, _ = r.rs.Seek(r.pos, io.SeekStart)
	return fe
}

// TryRead reads into v when a frame is present. It reports false, with no
// error, in legacy mode.
func (r *Reader) TryRead(v any) (bool, error) {
	if r.legacy {
		return false, nil
	}
	if err := r.Read(v); err != nil {
		return false, err
	}
	return true, nil
}

// ReadBytes reads len(p) bytes of payload without the serializer.
func (r *Reader) ReadBytes(p []byte) error {
	if err := r.usable(); err != nil {
		return err
	}
	_, err := io.ReadFull(&bounded{r: r}, p)
	return err
}

// Child opens the nested frame at the current position.
func (r *Reader) Child() (*Reader, error) {
	if err := r.usable(); err != nil {
		return nil, err
	}
	if _, err := r.rs.Seek(r.pos, io.SeekStart); err != nil {
		return nil, fmt.Errorf("framing: seek to child frame: %w", err)
	}
	c, err := openReader(r.rs, r.ser, r.opts, r.end)
	if err != nil {
		return nil, err
	}
	c.parent = r
	r.child = c
	return c, nil
}

// Reset rewinds consumption to the start of the frame payload.
func (r *Reader) Reset() error {
	if r.closed {
		return ErrClosed
	}
	if r.child != nil {
		if err := r.child.Close(); err != nil {
			return err
		}
	}
	if _, err := r.rs.Seek(r.start, io.SeekStart); err != nil {
		return fmt.Errorf("framing: reset: %w", err)
	}
	r.pos = r.start
	return nil
}

// Close positions the underlying stream at the end of the frame.
// In legacy mode the stream is left where reading stopped.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	if r.child != nil {
		if err := r.child.Close(); err != nil {
			return err
		}
	}

	next := r.end
	if r.legacy {
		next = r.pos
	}
	if _, err := r.rs.Seek(next, io.SeekStart); err != nil {
		return fmt.Errorf("framing: seek past frame: %w", err)
	}

	r.closed = true
	if r.parent != nil {
		r.parent.pos = next
		r.parent.child = nil
	}
	return nil
}

// Get reads a T from r.
func Get[T any](r *Reader) (T, error) {
	var v T
	err := r.Read(&v)
	return v, err
}

// TryGet reads a T when r is framed.
func TryGet[T any](r *Reader) (T, bool, error) {
	var v T
	ok, err := r.TryRead(&v)
	return v, ok, err
}

// bounded is the frame's view of the underlying stream.
type bounded struct {
	r *Reader
}

func (b *bounded) Read(p []byte) (int, error) {
	remaining := b.r.end - b.r.pos
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := b.r.rs.Read(p)
	b.r.pos += int64(n)
	return n, err
}
