package persist

import (
	"fmt"

	"github.com/yndnr/reactq/internal/checkpoint/framing"
	"github.com/yndnr/reactq/internal/checkpoint/serialization"
	"github.com/yndnr/reactq/internal/core/entity"
)

// Writer writes entities for one checkpoint format version.
type Writer struct {
	format expressionFormat
}

// NewWriter creates a writer for the given format version.
func NewWriter(formatVersion serialization.Version) (*Writer, error) {
	f, err := formatFor(formatVersion)
	if err != nil {
		return nil, err
	}
	return &Writer{format: f}, nil
}

// WriteEntity writes e into w.
func (pw *Writer) WriteEntity(w *framing.Writer, e entity.Entity) error {
	if err := w.Write(int32(e.Kind())); err != nil {
		return err
	}
	if err := pw.format.write(w, e.Expression()); err != nil {
		return fmt.Errorf("entity %s: expression: %w", e.URI(), err)
	}
	if err := w.Write(e.URI()); err != nil {
		return err
	}
	state, ok := e.State()
	if err := w.Write(ok); err != nil {
		return err
	}
	if ok {
		if err := w.Write(state); err != nil {
			return err
		}
	}
	if p, ok := e.(entity.Payloader); ok {
		if err := p.WritePayload(w); err != nil {
			return fmt.Errorf("entity %s: payload: %w", e.URI(), err)
		}
	}
	return nil
}

// Reader reads entities written under one checkpoint format version.
type Reader struct {
	format    expressionFormat
	templates TemplateResolver
}

// NewReader creates a reader for the given format version. templates
// resolves templatized expressions and may be nil when none are expected.
func NewReader(formatVersion serialization.Version, templates TemplateResolver) (*Reader, error) {
	f, err := formatFor(formatVersion)
	if err != nil {
		return nil, err
	}
	return &Reader{format: f, templates: templates}, nil
}

// ReadEntity reads one entity from r and calls its OnPersisted hook.
func (pr *Reader) ReadEntity(r *framing.Reader) (entity.Entity, error) {
	kind, err := framing.Get[int32](r)
	if err != nil {
		return nil, err
	}
	e, err := pr.format.read(r, pr.templates)
	if err != nil {
		return nil, fmt.Errorf("%s entity: expression: %w", entity.Kind(kind), err)
	}
	uri, err := framing.Get[string](r)
	if err != nil {
		return nil, err
	}
	hasState, err := framing.Get[bool](r)
	if err != nil {
		return nil, err
	}
	var state []byte
	if hasState {
		if state, err = framing.Get[[]byte](r); err != nil {
			return nil, err
		}
		if state == nil {
			state = []byte{}
		}
	}

	ent, err := entity.New(entity.Kind(kind), uri, e)
	if err != nil {
		return nil, err
	}
	if hasState {
		ent.SetState(state)
	}
	if p, ok := ent.(entity.Payloader); ok {
		if err := p.ReadPayload(r); err != nil {
			return nil, fmt.Errorf("entity %s: payload: %w", uri, err)
		}
	}
	ent.OnPersisted()
	return ent, nil
}
