package command

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yndnr/reactq/internal/checkpoint"
	"github.com/yndnr/reactq/internal/checkpoint/framing"
	"github.com/yndnr/reactq/internal/checkpoint/serialization"
	"github.com/yndnr/reactq/internal/core/domain"
	"github.com/yndnr/reactq/internal/engine"
	"github.com/yndnr/reactq/internal/storage"
)

// ItemInfo describes one stored item.
type ItemInfo struct {
	Category   string `json:"category" yaml:"category"`
	Key        string `json:"key" yaml:"key"`
	Size       int64  `json:"size" yaml:"size"`
	Format     string `json:"format_version,omitempty" yaml:"format_version,omitempty"`
	Serializer string `json:"serializer,omitempty" yaml:"serializer,omitempty"`
	Payload    int64  `json:"payload" yaml:"payload"`
	Framed     bool   `json:"framed" yaml:"framed"`
	Status     string `json:"status" yaml:"status"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

const (
	statusOK      = "ok"
	statusCorrupt = "corrupt"
	statusMissing = "missing"
)

// scanItem reads the envelope of one item: header, top-level frame and
// footer, without deserializing the payload. State items may predate
// framing; their footer is located from the end of the stream.
func scanItem(rs io.ReadSeeker, policy serialization.Policy, state bool) (ItemInfo, error) {
	var info ItemInfo

	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return info, err
	}
	info.Size = size
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return info, err
	}

	h, ser, err := checkpoint.ReadHeader(rs, policy)
	if err != nil {
		return info, err
	}
	info.Format = h.FormatVersion.String()
	info.Serializer = h.SerializerName + "/" + h.SerializerVersion.String()

	var opts []framing.ReaderOption
	if state {
		opts = append(opts, framing.AllowTransitioning())
	}
	fr, err := framing.NewReader(rs, ser, opts...)
	if err != nil {
		return info, err
	}
	info.Framed = fr.Framed()
	info.Payload = fr.Len()

	if !fr.Framed() {
		// Unframed payload: only the terminator can be checked.
		if size < int64(len(checkpoint.Terminator)) {
			return info, domain.ErrMissingTerminator
		}
		if _, err := rs.Seek(size-int64(len(checkpoint.Terminator)), io.SeekStart); err != nil {
			return info, err
		}
		return info, checkpoint.ReadFooter(rs)
	}

	if err := fr.Close(); err != nil {
		return info, err
	}
	if err := checkpoint.ReadFooter(rs); err != nil {
		return info, err
	}
	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return info, err
	}
	if pos != size {
		return info, fmt.Errorf("%d trailing bytes after terminator", size-pos)
	}
	return info, nil
}

// isStateCategory reports whether category holds operator state.
func isStateCategory(category string) bool {
	return strings.HasSuffix(category, engine.StateSuffix)
}

// describe scans (category, key) of r.
func describe(r storage.StateReader, policy serialization.Policy, category, key string) ItemInfo {
	info := ItemInfo{Category: category, Key: key, Status: statusOK}

	ir, ok, err := r.GetItemReader(category, key)
	if err != nil {
		info.Status, info.Error = statusCorrupt, err.Error()
		return info
	}
	if !ok {
		info.Status = statusMissing
		return info
	}
	defer ir.Close()

	scanned, err := scanItem(ir, policy, isStateCategory(category))
	scanned.Category, scanned.Key, scanned.Status = category, key, statusOK
	if err != nil {
		scanned.Status = statusCorrupt
		scanned.Error = errorText(err)
	}
	return scanned
}

// errorText renders err, preferring the format error summary.
func errorText(err error) string {
	var fe *domain.FormatError
	if errors.As(err, &fe) {
		return fmt.Sprintf("%s at offset %d", fe.Err.Error(), fe.Position)
	}
	return err.Error()
}

// walk calls fn for every item of r, in category then key order. When
// categories is non-empty only those are visited.
func walk(r storage.StateReader, categories []string, fn func(category, key string) error) error {
	if len(categories) == 0 {
		var err error
		categories, err = r.Categories()
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
	}
	for _, cat := range categories {
		keys, _, err := r.ItemKeys(cat)
		if err != nil {
			return fmt.Errorf("list %s: %w", cat, err)
		}
		for _, key := range keys {
			if err := fn(cat, key); err != nil {
				return err
			}
		}
	}
	return nil
}
