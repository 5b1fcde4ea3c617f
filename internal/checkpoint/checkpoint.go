package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/yndnr/reactq/internal/checkpoint/serialization"
	"github.com/yndnr/reactq/internal/core/domain"
)

// Envelope constants.
var (
	Magic                = [2]byte{'B', 'D'}
	Terminator           = [4]byte{0xDE, 0xAD, 0xDE, 0xAD}
	CurrentFormatVersion = serialization.V(3, 0, 0, 0)
	MinimumFormatVersion = serialization.V(1, 0, 0, 0)
)

// Header is the decoded checkpoint header.
type Header struct {
	FormatVersion     serialization.Version
	Flags             int32
	SerializerName    string
	SerializerVersion serialization.Version
}

// WriteHeader writes a header naming the policy's default serializer and
// returns that serializer.
func WriteHeader(w io.Writer, policy serialization.Policy) (serialization.Serializer, error) {
	ser := policy.Default()
	if ser == nil {
		return nil, errors.New("checkpoint: policy has no default serializer")
	}
	if err := writeHeader(w, Header{
		FormatVersion:     CurrentFormatVersion,
		SerializerName:    ser.Name(),
		SerializerVersion: ser.Version(),
	}); err != nil {
		return nil, err
	}
	return ser, nil
}

func writeHeader(w io.Writer, h Header) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return fmt.Errorf("checkpoint: write magic: %w", err)
	}
	if err := serialization.WriteVersion(w, h.FormatVersion); err != nil {
		return fmt.Errorf("checkpoint: write format version: %w", err)
	}
	if err := serialization.WriteInt32(w, h.Flags); err != nil {
		return fmt.Errorf("checkpoint: write flags: %w", err)
	}
	if err := serialization.WriteString(w, h.SerializerName); err != nil {
		return fmt.Errorf("checkpoint: write serializer name: %w", err)
	}
	if err := serialization.WriteVersion(w, h.SerializerVersion); err != nil {
		return fmt.Errorf("checkpoint: write serializer version: %w", err)
	}
	return nil
}

// ReadHeader parses a header and resolves the serializer that wrote the
// stream. Structural failures are *domain.FormatError values.
func ReadHeader(r io.Reader, policy serialization.Policy) (Header, serialization.Serializer, error) {
	var h Header
	t := track(r)

	var magic [2]byte
	if _, err := io.ReadFull(t, magic[:]); err != nil || magic != Magic {
		return h, nil, t.fail(domain.ErrMissingHeader.WithDetailsf("got % x", t.window(2)))
	}

	v, err := serialization.ReadVersion(t)
	if err != nil {
		return h, nil, t.fail(domain.ErrMissingVersion)
	}
	if v.Less(MinimumFormatVersion) {
		return h, nil, t.fail(domain.ErrUnsupportedVersion.WithDetailsf("%s < %s", v, MinimumFormatVersion))
	}
	h.FormatVersion = v

	// Flags are reserved; any value is accepted.
	flags, err := serialization.ReadInt32(t)
	if err != nil {
		return h, nil, t.fail(domain.ErrMissingFlags)
	}
	h.Flags = flags

	name, err := serialization.ReadString(t)
	if err != nil {
		return h, nil, t.fail(domain.ErrMissingSerializer.WithCause(err))
	}
	sv, err := serialization.ReadVersion(t)
	if err != nil {
		return h, nil, t.fail(domain.ErrMissingSerializer.WithDetails("serializer version"))
	}
	h.SerializerName = name
	h.SerializerVersion = sv

	ser, err := policy.Resolve(name, sv)
	if err != nil {
		return h, nil, err
	}
	return h, ser, nil
}

// WriteFooter writes the terminator.
func WriteFooter(w io.Writer) error {
	if _, err := w.Write(Terminator[:]); err != nil {
		return fmt.Errorf("checkpoint: write terminator: %w", err)
	}
	return nil
}

// ReadFooter verifies the terminator.
func ReadFooter(r io.Reader) error {
	t := track(r)
	var got [4]byte
	n, _ := io.ReadFull(t, got[:])
	if n != len(got) || got != Terminator {
		return t.fail(domain.ErrMissingTerminator.WithDetailsf("got % x", got[:n]))
	}
	return nil
}

// WriteBlob writes a complete item stream: header, body, footer.
func WriteBlob(w io.Writer, policy serialization.Policy, body func(ser serialization.Serializer) error) error {
	ser, err := WriteHeader(w, policy)
	if err != nil {
		return err
	}
	if err := body(ser); err != nil {
		return err
	}
	return WriteFooter(w)
}

// ReadBlob reads a complete item stream written by WriteBlob.
func ReadBlob(r io.Reader, policy serialization.Policy, body func(h Header, ser serialization.Serializer) error) error {
	h, ser, err := ReadHeader(r, policy)
	if err != nil {
		return err
	}
	if err := body(h, ser); err != nil {
		return err
	}
	return ReadFooter(r)
}

// tracker records the stream position and the bytes consumed so format
// errors can point at the offending offset.
type tracker struct {
	r    io.Reader
	pos  int64
	seen bytes.Buffer
}

func track(r io.Reader) *tracker {
	t := &tracker{r: r}
	if s, ok := r.(io.Seeker); ok {
		if pos, err := s.Seek(0, io.SeekCurrent); err == nil {
			t.pos = pos
		}
	}
	return t
}

func (t *tracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	t.pos += int64(n)
	t.seen.Write(p[:n])
	return n, err
}

// window returns up to n of the most recently consumed bytes.
func (t *tracker) window(n int) []byte {
	b := t.seen.Bytes()
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return b
}

func (t *tracker) fail(err *domain.DomainError) error {
	return domain.NewFormatError(err, t.pos, t.seen.Bytes())
}
