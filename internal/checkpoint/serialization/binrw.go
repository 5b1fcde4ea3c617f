package serialization

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// maxStringLength bounds strings read from untrusted streams.
const maxStringLength = 1 << 24

// ErrStringTooLong indicates a length-prefixed string exceeded maxStringLength.
var ErrStringTooLong = errors.New("serialization: string too long")

// WriteInt32 writes v as little-endian.
func WriteInt32(w io.Writer, v int32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	_, err := w.Write(b[:])
	return err
}

// ReadInt32 reads a little-endian int32.
func ReadInt32(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

// WriteInt64 writes v as little-endian.
func WriteInt64(w io.Writer, v int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

// ReadInt64 reads a little-endian int64.
func ReadInt64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// WriteVersion writes the four version components.
func WriteVersion(w io.Writer, v Version) error {
	for _, c := range [4]int32{v.Major, v.Minor, v.Build, v.Revision} {
		if err := WriteInt32(w, c); err != nil {
			return err
		}
	}
	return nil
}

// ReadVersion reads four version components.
func ReadVersion(r io.Reader) (Version, error) {
	var c [4]int32
	for i := range c {
		n, err := ReadInt32(r)
		if err != nil {
			return Version{}, err
		}
		c[i] = n
	}
	return Version{Major: c[0], Minor: c[1], Build: c[2], Revision: c[3]}, nil
}

// Write7BitEncodedInt writes v using the 7-bit variable length encoding
// of .NET BinaryWriter (low groups first, high bit marks continuation).
func Write7BitEncodedInt(w io.Writer, v int32) error {
	u := uint32(v)
	var buf [5]byte
	n := 0
	for u >= 0x80 {
		buf[n] = byte(u) | 0x80
		u >>= 7
		n++
	}
	buf[n] = byte(u)
	_, err := w.Write(buf[:n+1])
	return err
}

// Read7BitEncodedInt reads a value written by Write7BitEncodedInt.
func Read7BitEncodedInt(r io.Reader) (int32, error) {
	var result uint32
	var b [1]byte
	for shift := 0; shift < 35; shift += 7 {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		result |= uint32(b[0]&0x7F) << shift
		if b[0]&0x80 == 0 {
			return int32(result), nil
		}
	}
	return 0, fmt.Errorf("serialization: bad 7-bit encoded int32")
}

// WriteString writes s as a 7-bit length prefix followed by UTF-8 bytes.
func WriteString(w io.Writer, s string) error {
	if err := Write7BitEncodedInt(w, int32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadString reads a string written by WriteString.
func ReadString(r io.Reader) (string, error) {
	n, err := Read7BitEncodedInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 || n > maxStringLength {
		return "", ErrStringTooLong
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("serialization: invalid utf-8 string")
	}
	return string(buf), nil
}

// writeChunk writes payload prefixed with its int32 length.
func writeChunk(w io.Writer, payload []byte) error {
	if err := WriteInt32(w, int32(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readChunk reads a payload written by writeChunk.
func readChunk(r io.Reader) ([]byte, error) {
	n, err := ReadInt32(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("serialization: negative payload length %d", n)
	}
	// The length is untrusted; grow only as bytes actually arrive.
	buf, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil {
		return nil, err
	}
	if len(buf) < int(n) {
		return nil, io.ErrUnexpectedEOF
	}
	return buf, nil
}
