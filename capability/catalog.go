package capability

import (
	"fmt"
	"os"

	"github.com/martinemde/toolloop/unifiedllm"
	"gopkg.in/yaml.v3"
)

// Source supplies declared capabilities by model id.
type Source interface {
	Lookup(modelID string) (ModelCapabilities, bool)
}

// Catalog is an in-memory Source keyed by model id.
type Catalog map[string]ModelCapabilities

// Lookup implements Source.
func (c Catalog) Lookup(modelID string) (ModelCapabilities, bool) {
	caps, ok := c[modelID]
	return caps, ok
}

// BuiltinCatalog derives capabilities from the unifiedllm model catalog,
// registered under each model's id and aliases.
func BuiltinCatalog() Catalog {
	c := make(Catalog, len(unifiedllm.Models))
	for _, m := range unifiedllm.Models {
		caps := FromModelInfo(m)
		c[m.ID] = caps
		for _, alias := range m.Aliases {
			c[alias] = caps
		}
	}
	return c
}

// FromModelInfo converts a catalog entry into a capability record.
func FromModelInfo(m unifiedllm.ModelInfo) ModelCapabilities {
	caps := ModelCapabilities{
		ContextWindow:     m.ContextWindow,
		Streaming:         m.SupportsStreaming,
		Tools:             m.SupportsTools,
		JSONSchema:        m.SupportsJSONSchema,
		StructuredOutputs: m.SupportsStructuredOutputs,
		Reasoning:         m.SupportsReasoning,
		InputModalities:   toModalities(m.InputModalities),
		OutputModalities:  toModalities(m.OutputModalities),
	}
	if m.MaxOutput != nil {
		caps.MaxOutputTokens = *m.MaxOutput
	}
	return caps
}

func toModalities(in []string) []Modality {
	out := make([]Modality, len(in))
	for i, s := range in {
		out[i] = Modality(s)
	}
	return out
}

type catalogFile struct {
	Models map[string]ModelCapabilities `yaml:"models"`
}

// ParseCatalog reads a YAML document of the form
//
//	models:
//	  my-model:
//	    context_window: 8192
//	    tools: true
//	    input_modalities: [text]
//
// Entries that list no input modalities default to text only.
func ParseCatalog(data []byte) (Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse capability catalog: %w", err)
	}
	c := make(Catalog, len(f.Models))
	for id, caps := range f.Models {
		if len(caps.InputModalities) == 0 {
			caps.InputModalities = []Modality{ModalityText}
		}
		if len(caps.OutputModalities) == 0 {
			caps.OutputModalities = []Modality{ModalityText}
		}
		c[id] = caps
	}
	return c, nil
}

// LoadCatalog reads and parses a YAML catalog file.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capability catalog: %w", err)
	}
	return ParseCatalog(data)
}

// Chain consults sources in order and returns the first match.
func Chain(sources ...Source) Source {
	return chain(sources)
}

type chain []Source

func (c chain) Lookup(modelID string) (ModelCapabilities, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if caps, ok := s.Lookup(modelID); ok {
			return caps, true
		}
	}
	return ModelCapabilities{}, false
}
