package serialization

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// JSONName is the registered name of the JSON serializer.
const JSONName = "json"

// JSONSerializer encodes values as JSON documents.
type JSONSerializer struct {
	version Version
}

// NewJSON creates a JSON serializer advertising the given version.
func NewJSON(version Version) *JSONSerializer {
	return &JSONSerializer{version: version}
}

// Name implements Serializer.
func (s *JSONSerializer) Name() string { return JSONName }

// Version implements Serializer.
func (s *JSONSerializer) Version() Version { return s.version }

// Serialize implements Serializer.
func (s *JSONSerializer) Serialize(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json: marshal %T: %w", v, err)
	}
	return writeChunk(w, payload)
}

// Deserialize implements Serializer.
func (s *JSONSerializer) Deserialize(r io.Reader, v any) error {
	payload, err := readChunk(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("json: unmarshal %T: %w", v, err)
	}
	return nil
}
