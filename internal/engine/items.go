package engine

import (
	"fmt"
	"io"

	"github.com/yndnr/reactq/internal/checkpoint"
	"github.com/yndnr/reactq/internal/checkpoint/framing"
	"github.com/yndnr/reactq/internal/checkpoint/persist"
	"github.com/yndnr/reactq/internal/checkpoint/serialization"
	"github.com/yndnr/reactq/internal/core/entity"
	"github.com/yndnr/reactq/internal/core/operator"
	"github.com/yndnr/reactq/internal/storage"
)

// writeItem writes one blob into (category, key) and returns its size.
func (e *Engine) writeItem(w storage.StateWriter, category, key string, body func(fw *framing.Writer) error) (int64, error) {
	iw, err := w.GetItemWriter(category, key)
	if err != nil {
		return 0, err
	}
	err = checkpoint.WriteBlob(iw, e.policy, func(ser serialization.Serializer) error {
		fw, err := framing.NewWriter(iw, ser)
		if err != nil {
			return err
		}
		if err := body(fw); err != nil {
			return err
		}
		return fw.Close()
	})
	size, _ := iw.Seek(0, io.SeekEnd)
	if cerr := iw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write %s/%s: %w", category, key, err)
	}
	return size, nil
}

func (e *Engine) writeDefinition(w storage.StateWriter, pw *persist.Writer, ent entity.Entity) (int64, error) {
	return e.writeItem(w, ent.Kind().String(), ent.URI(), func(fw *framing.Writer) error {
		return pw.WriteEntity(fw, ent)
	})
}

// writeState writes the operator identity followed by its state in a
// nested frame.
func (e *Engine) writeState(w storage.StateWriter, kind entity.Kind, uri string, op operator.StatefulOperator) (int64, error) {
	return e.writeItem(w, StateCategory(kind), uri, func(fw *framing.Writer) error {
		if err := fw.Write(op.Name()); err != nil {
			return err
		}
		if err := fw.Write(op.Version().String()); err != nil {
			return err
		}
		child, err := fw.Child()
		if err != nil {
			return err
		}
		if err := op.SaveState(child); err != nil {
			return fmt.Errorf("operator %s: %w", op.Name(), err)
		}
		return child.Close()
	})
}

// readItem opens (category, key) and reads its blob. ok is false when the
// item does not exist.
func (e *Engine) readItem(r storage.StateReader, category, key string, opts []framing.ReaderOption, body func(h checkpoint.Header, fr *framing.Reader) error) (size int64, ok bool, err error) {
	ir, ok, err := r.GetItemReader(category, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	defer ir.Close()

	err = checkpoint.ReadBlob(ir, e.policy, func(h checkpoint.Header, ser serialization.Serializer) error {
		fr, err := framing.NewReader(ir, ser, opts...)
		if err != nil {
			return err
		}
		if err := body(h, fr); err != nil {
			return err
		}
		return fr.Close()
	})
	if err != nil {
		return 0, true, fmt.Errorf("read %s/%s: %w", category, key, err)
	}
	size, _ = ir.Seek(0, io.SeekCurrent)
	return size, true, nil
}

func (e *Engine) readDefinition(r storage.StateReader, kind entity.Kind, key string) (entity.Entity, int64, error) {
	var ent entity.Entity
	size, _, err := e.readItem(r, kind.String(), key, nil, func(h checkpoint.Header, fr *framing.Reader) error {
		pr, err := persist.NewReader(h.FormatVersion, e.Templates())
		if err != nil {
			return err
		}
		ent, err = pr.ReadEntity(fr)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	if ent.Kind() != kind {
		return nil, 0, fmt.Errorf("read %s/%s: item holds a %s entity", kind, key, ent.Kind())
	}
	return ent, size, nil
}

// readState loads the state of op from its item. ok is false when no
// state was saved.
func (e *Engine) readState(r storage.StateReader, kind entity.Kind, uri string, op operator.StatefulOperator) (int64, bool, error) {
	opts := []framing.ReaderOption{framing.WithOperator(op.Name(), op.Version().String())}
	if t, ok := op.(operator.Transitioning); ok && t.AllowsTransitioning() {
		opts = append(opts, framing.AllowTransitioning())
	}

	return e.readItem(r, StateCategory(kind), uri, opts, func(_ checkpoint.Header, fr *framing.Reader) error {
		name, err := framing.Get[string](fr)
		if err != nil {
			return err
		}
		raw, err := framing.Get[string](fr)
		if err != nil {
			return err
		}
		if name != op.Name() {
			return fmt.Errorf("state written by operator %s, entity runs %s", name, op.Name())
		}
		version, err := serialization.ParseVersion(raw)
		if err != nil {
			return fmt.Errorf("operator %s: %w", name, err)
		}
		if op.Version().Less(version) {
			return fmt.Errorf("operator %s: state version %s is newer than %s", name, version, op.Version())
		}

		child, err := fr.Child()
		if err != nil {
			return err
		}
		if err := op.LoadState(child); err != nil {
			return fmt.Errorf("operator %s: %w", name, err)
		}
		return child.Close()
	})
}
