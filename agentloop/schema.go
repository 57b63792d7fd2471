package agentloop

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Schema validates raw tool input and decodes it into T.
type Schema[T any] interface {
	Validate(raw json.RawMessage) (T, error)
	JSONSchema() map[string]any
}

type jsonSchema[T any] struct {
	resolved *jsonschema.Resolved
	doc      map[string]any
}

// SchemaFor infers a JSON Schema from T's struct fields and json tags.
func SchemaFor[T any]() (Schema[T], error) {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("infer schema: %w", err)
	}
	return SchemaFrom[T](s)
}

// SchemaFrom wraps a hand-written schema that decodes into T.
func SchemaFrom[T any](s *jsonschema.Schema) (Schema[T], error) {
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return &jsonSchema[T]{resolved: resolved, doc: doc}, nil
}

func (s *jsonSchema[T]) Validate(raw json.RawMessage) (T, error) {
	var zero T
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return zero, fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := s.resolved.Validate(instance); err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, err
	}
	return out, nil
}

func (s *jsonSchema[T]) JSONSchema() map[string]any {
	return s.doc
}
