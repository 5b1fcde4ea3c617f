package serialization

import (
	"fmt"
	"io"
	"reflect"

	"github.com/viant/bintly"

	"github.com/yndnr/reactq/internal/core/domain"
)

// BintlyName is the registered name of the bintly serializer.
const BintlyName = "bintly"

// BintlySerializer encodes values with github.com/viant/bintly.
type BintlySerializer struct {
	version Version
	writers *bintly.Writers
	readers *bintly.Readers
}

// NewBintly creates a bintly serializer advertising the given version.
func NewBintly(version Version) *BintlySerializer {
	return &BintlySerializer{
		version: version,
		writers: bintly.NewWriters(),
		readers: bintly.NewReaders(),
	}
}

// Name implements Serializer.
func (s *BintlySerializer) Name() string { return BintlyName }

// Version implements Serializer.
func (s *BintlySerializer) Version() Version { return s.version }

// Serialize implements Serializer.
func (s *BintlySerializer) Serialize(w io.Writer, v any) error {
	payload, err := s.Marshal(v)
	if err != nil {
		return err
	}
	return writeChunk(w, payload)
}

// Marshal encodes v without a length prefix.
func (s *BintlySerializer) Marshal(v any) ([]byte, error) {
	writer := s.writers.Get()
	defer s.writers.Put(writer)

	if enc, ok := v.(bintly.Encoder); ok {
		if err := enc.EncodeBinary(writer); err != nil {
			return nil, fmt.Errorf("bintly: encode %T: %w", v, err)
		}
	} else {
		c, ok := lookupCodec(reflect.TypeOf(v))
		if !ok {
			return nil, domain.ErrUnsupportedType.WithDetailsf("%T", v)
		}
		c.encode(writer, v)
	}

	return append([]byte(nil), writer.Bytes()...), nil
}

// Deserialize implements Serializer. v must be a non-nil pointer.
func (s *BintlySerializer) Deserialize(r io.Reader, v any) error {
	payload, err := readChunk(r)
	if err != nil {
		return err
	}
	return s.Unmarshal(payload, v)
}

// Unmarshal decodes payload into v.
func (s *BintlySerializer) Unmarshal(payload []byte, v any) (err error) {
	reader := s.readers.Get()
	defer s.readers.Put(reader)

	// bintly indexes its buffer directly; corrupt payloads surface as panics.
	defer func() {
		if p := recover(); p != nil {
			err = domain.ErrCorruptValue.WithDetailsf("bintly: decode %T: %v", v, p)
		}
	}()

	if len(payload) == 0 {
		return domain.ErrCorruptValue.WithDetailsf("bintly: empty payload for %T", v)
	}
	if err := reader.FromBytes(payload); err != nil {
		return domain.ErrCorruptValue.WithDetailsf("bintly: decode %T", v).WithCause(err)
	}

	if dec, ok := v.(bintly.Decoder); ok {
		if err := dec.DecodeBinary(reader); err != nil {
			return fmt.Errorf("bintly: decode %T: %w", v, err)
		}
		return nil
	}

	t := reflect.TypeOf(v)
	if t == nil || t.Kind() != reflect.Pointer {
		return fmt.Errorf("bintly: decode target must be a pointer, got %T", v)
	}
	c, ok := lookupCodec(t.Elem())
	if !ok {
		return domain.ErrUnsupportedType.WithDetailsf("%s", t.Elem())
	}
	c.decode(reader, v)
	return nil
}
