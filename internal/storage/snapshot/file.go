package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/yndnr/reactq/internal/storage"
)

// Magic bytes identify checkpoint files.
var magicBytes = []byte("RQCKPT01")

const (
	filePrefix    = "ckpt-"
	extFull       = ".full"
	extDiff       = ".diff"
	checksumSize  = 32
	headerVersion = 1

	opPut    byte = 1
	opDelete byte = 2

	maxNameLength = 1 << 20
)

var (
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	ErrCorrupt          = errors.New("snapshot: corrupt checkpoint file")
)

type fileHeader struct {
	Version     int    `json:"version"`
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Parent      string `json:"parent,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	ItemCount   int    `json:"item_count"`
	DeleteCount int    `json:"delete_count"`
}

// Info describes one checkpoint file.
type Info struct {
	ID          string                 `json:"id" yaml:"id"`
	Kind        storage.CheckpointKind `json:"-" yaml:"-"`
	KindName    string                 `json:"kind" yaml:"kind"`
	Parent      string                 `json:"parent,omitempty" yaml:"parent,omitempty"`
	CreatedAt   int64                  `json:"created_at" yaml:"created_at"`
	ItemCount   int                    `json:"item_count" yaml:"item_count"`
	DeleteCount int                    `json:"delete_count" yaml:"delete_count"`
	Size        int64                  `json:"size" yaml:"size"`
	Path        string                 `json:"path" yaml:"path"`
	Checksum    string                 `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

// record is one decoded entry of a checkpoint file.
type record struct {
	op   byte
	key  storage.ItemKey
	data []byte
}

func fileName(id string, kind storage.CheckpointKind) string {
	if kind == storage.Full {
		return filePrefix + id + extFull
	}
	return filePrefix + id + extDiff
}

// throttledWriter paces writes through a token bucket of bytes.
type throttledWriter struct {
	ctx     context.Context
	w       io.Writer
	limiter *rate.Limiter
}

func (t *throttledWriter) Write(p []byte) (int, error) {
	if t.limiter == nil {
		return t.w.Write(p)
	}
	written := 0
	for len(p) > 0 {
		n := min(len(p), t.limiter.Burst())
		if err := t.limiter.WaitN(t.ctx, n); err != nil {
			return written, err
		}
		m, err := t.w.Write(p[:n])
		written += m
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}

// writeFile writes a checkpoint file atomically via rename.
func writeFile(ctx context.Context, dir string, hdr fileHeader, c *storage.Changes, limiter *rate.Limiter) (*Info, error) {
	kind := c.Kind
	tempPath := filepath.Join(dir, hdr.ID+".tmp")
	file, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("snapshot: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	hash := sha256.New()
	bw := bufio.NewWriter(&throttledWriter{ctx: ctx, w: file, limiter: limiter})
	writer := io.MultiWriter(bw, hash)

	fail := func(err error) (*Info, error) {
		file.Close()
		return nil, err
	}

	if _, err := writer.Write(magicBytes); err != nil {
		return fail(err)
	}

	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return fail(fmt.Errorf("snapshot: marshal header: %w", err))
	}
	if err := writeU32(writer, uint32(len(hdrJSON))); err != nil {
		return fail(fmt.Errorf("snapshot: write header length: %w", err))
	}
	if _, err := writer.Write(hdrJSON); err != nil {
		return fail(fmt.Errorf("snapshot: write header: %w", err))
	}

	for _, k := range c.SortedPuts() {
		if err := writeRecord(writer, record{op: opPut, key: k, data: c.Puts[k]}); err != nil {
			return fail(fmt.Errorf("snapshot: write %s: %w", k, err))
		}
	}
	if kind == storage.Differential {
		for _, k := range c.Deletes {
			if err := writeRecord(writer, record{op: opDelete, key: k}); err != nil {
				return fail(fmt.Errorf("snapshot: write delete %s: %w", k, err))
			}
		}
	}

	// Checksum trailer is not included in the hash.
	sum := hash.Sum(nil)
	if _, err := bw.Write(sum); err != nil {
		return fail(fmt.Errorf("snapshot: write checksum: %w", err))
	}
	if err := bw.Flush(); err != nil {
		return fail(fmt.Errorf("snapshot: flush: %w", err))
	}
	if err := file.Sync(); err != nil {
		return fail(fmt.Errorf("snapshot: sync: %w", err))
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: close: %w", err)
	}

	stat, err := os.Stat(tempPath)
	if err != nil {
		return nil, err
	}
	finalPath := filepath.Join(dir, fileName(hdr.ID, kind))
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("snapshot: rename: %w", err)
	}

	return infoFromHeader(hdr, finalPath, stat.Size(), sum), nil
}

func infoFromHeader(hdr fileHeader, path string, size int64, sum []byte) *Info {
	kind, _ := storage.ParseCheckpointKind(hdr.Kind)
	return &Info{
		ID:          hdr.ID,
		Kind:        kind,
		KindName:    hdr.Kind,
		Parent:      hdr.Parent,
		CreatedAt:   hdr.CreatedAt,
		ItemCount:   hdr.ItemCount,
		DeleteCount: hdr.DeleteCount,
		Size:        size,
		Path:        path,
		Checksum:    hex.EncodeToString(sum),
	}
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeName(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func writeRecord(w io.Writer, r record) error {
	if _, err := w.Write([]byte{r.op}); err != nil {
		return err
	}
	if err := writeName(w, r.key.Category); err != nil {
		return err
	}
	if err := writeName(w, r.key.Key); err != nil {
		return err
	}
	if r.op != opPut {
		return nil
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(r.data)))
	if _, err := w.Write(n[:]); err != nil {
		return err
	}
	_, err := w.Write(r.data)
	return err
}

// ReadFile verifies and decodes a checkpoint file. fn receives every
// record in file order; it may be nil to only verify.
func ReadFile(path string, fn func(op byte, key storage.ItemKey, data []byte)) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Size() < int64(len(magicBytes))+checksumSize {
		return nil, ErrChecksumMismatch
	}

	dataLen := stat.Size() - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, dataLen, checksumSize), expected); err != nil {
		return nil, err
	}
	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, dataLen), dataLen); err != nil {
		return nil, err
	}
	if !bytes.Equal(h.Sum(nil), expected) {
		return nil, ErrChecksumMismatch
	}

	br := bufio.NewReader(io.NewSectionReader(f, 0, dataLen))
	hdr, err := readHeader(br, dataLen)
	if err != nil {
		return nil, err
	}

	for n := 0; n < hdr.ItemCount+hdr.DeleteCount; n++ {
		r, err := readRecord(br, dataLen)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorrupt, n, err)
		}
		if fn != nil {
			fn(r.op, r.key, r.data)
		}
	}
	if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing bytes after records", ErrCorrupt)
	}

	return infoFromHeader(hdr, path, stat.Size(), expected), nil
}

// ReadHeader decodes the header of a checkpoint file without verifying
// its checksum. It identifies the chain of a file whose body is corrupt.
func ReadHeader(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	hdr, err := readHeader(bufio.NewReader(f), stat.Size())
	if err != nil {
		return nil, err
	}
	return infoFromHeader(hdr, path, stat.Size(), nil), nil
}

func readHeader(br *bufio.Reader, limit int64) (fileHeader, error) {
	var hdr fileHeader
	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(br, magic); err != nil {
		return hdr, err
	}
	if !bytes.Equal(magic, magicBytes) {
		return hdr, ErrInvalidMagic
	}

	hdrLen, err := readU32(br)
	if err != nil {
		return hdr, err
	}
	if hdrLen == 0 || int64(hdrLen) > limit {
		return hdr, fmt.Errorf("%w: header length %d", ErrCorrupt, hdrLen)
	}
	hdrJSON := make([]byte, hdrLen)
	if _, err := io.ReadFull(br, hdrJSON); err != nil {
		return hdr, err
	}
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return hdr, fmt.Errorf("snapshot: unmarshal header: %w", err)
	}
	return hdr, nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readName(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	if n > maxNameLength {
		return "", fmt.Errorf("name length %d too large", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readRecord(r *bufio.Reader, limit int64) (record, error) {
	op, err := r.ReadByte()
	if err != nil {
		return record{}, err
	}
	if op != opPut && op != opDelete {
		return record{}, fmt.Errorf("unknown op %d", op)
	}
	var rec record
	rec.op = op
	if rec.key.Category, err = readName(r); err != nil {
		return rec, err
	}
	if rec.key.Key, err = readName(r); err != nil {
		return rec, err
	}
	if op != opPut {
		return rec, nil
	}
	var n [8]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return rec, err
	}
	size := binary.BigEndian.Uint64(n[:])
	if size > uint64(limit) {
		return rec, fmt.Errorf("item length %d exceeds file", size)
	}
	rec.data = make([]byte, size)
	_, err = io.ReadFull(r, rec.data)
	return rec, err
}

// List lists checkpoint files in dir, oldest first (metadata from file
// names only).
func List(dir string) ([]*Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []*Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix) {
			continue
		}
		var kind storage.CheckpointKind
		var id string
		switch {
		case strings.HasSuffix(name, extFull):
			kind, id = storage.Full, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), extFull)
		case strings.HasSuffix(name, extDiff):
			kind, id = storage.Differential, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), extDiff)
		default:
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, &Info{
			ID:        id,
			Kind:      kind,
			KindName:  kind.String(),
			Size:      fi.Size(),
			Path:      filepath.Join(dir, name),
			CreatedAt: fi.ModTime().UnixMilli(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

func newHeader(id string, kind storage.CheckpointKind, parent string, c *storage.Changes) fileHeader {
	hdr := fileHeader{
		Version:   headerVersion,
		ID:        id,
		Kind:      kind.String(),
		Parent:    parent,
		CreatedAt: time.Now().UnixMilli(),
		ItemCount: len(c.Puts),
	}
	if kind == storage.Differential {
		hdr.DeleteCount = len(c.Deletes)
	}
	return hdr
}
