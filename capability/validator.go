package capability

import (
	"fmt"
	"slices"
	"strings"
)

// ModelCapabilities is what a model declares it supports.
type ModelCapabilities struct {
	ContextWindow     int        `yaml:"context_window"`    // 0 means unbounded
	MaxOutputTokens   int        `yaml:"max_output_tokens"` // 0 means unbounded
	Streaming         bool       `yaml:"streaming"`
	Tools             bool       `yaml:"tools"`
	JSONSchema        bool       `yaml:"json_schema"`
	StructuredOutputs bool       `yaml:"structured_outputs"`
	Reasoning         bool       `yaml:"reasoning"`
	InputModalities   []Modality `yaml:"input_modalities"`
	OutputModalities  []Modality `yaml:"output_modalities"`
}

// CapabilityError reports every constraint a request violates for a model.
type CapabilityError struct {
	ModelID string
	Errors  []string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("model %q cannot serve request: %s", e.ModelID, strings.Join(e.Errors, "; "))
}

// ValidateRequestAgainstCapabilities returns a *CapabilityError listing all
// violations, or nil when caps satisfy req.
func ValidateRequestAgainstCapabilities(modelID string, req RequestRequirements, caps ModelCapabilities) error {
	var errs []string

	for _, m := range req.InputModalities {
		if !slices.Contains(caps.InputModalities, m) {
			errs = append(errs, fmt.Sprintf("input modality %q is not supported", m))
		}
	}
	if req.Streaming && !caps.Streaming {
		errs = append(errs, "streaming is not supported")
	}
	if req.Tools && !caps.Tools {
		errs = append(errs, "tool calling is not supported")
	}
	if req.JSONSchema && !caps.JSONSchema {
		errs = append(errs, "JSON schema output is not supported")
	}
	if req.StructuredOutputs && !caps.StructuredOutputs {
		errs = append(errs, "structured outputs are not supported")
	}
	if req.MaxOutputTokens > 0 && caps.MaxOutputTokens > 0 && req.MaxOutputTokens > caps.MaxOutputTokens {
		errs = append(errs, fmt.Sprintf("requested %d output tokens exceeds limit of %d", req.MaxOutputTokens, caps.MaxOutputTokens))
	}
	if req.EstimatedInputTokens > 0 && caps.ContextWindow > 0 && req.EstimatedInputTokens > caps.ContextWindow {
		errs = append(errs, fmt.Sprintf("estimated %d input tokens exceeds context window of %d", req.EstimatedInputTokens, caps.ContextWindow))
	}

	if len(errs) == 0 {
		return nil
	}
	return &CapabilityError{ModelID: modelID, Errors: errs}
}
