package capability

import (
	"encoding/json"
	"testing"

	"github.com/martinemde/toolloop/unifiedllm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textModel() ModelCapabilities {
	return ModelCapabilities{
		ContextWindow:    1000,
		MaxOutputTokens:  100,
		InputModalities:  []Modality{ModalityText},
		OutputModalities: []Modality{ModalityText},
	}
}

func TestDeriveRequestRequirements(t *testing.T) {
	max := 256
	img := unifiedllm.Message{Role: unifiedllm.RoleUser, Content: []unifiedllm.ContentPart{
		unifiedllm.TextPart("what is this?"),
		unifiedllm.ImageURLPart("https://example.com/a.png", "image/png"),
		unifiedllm.ImageURLPart("https://example.com/b.png", "image/png"),
	}}
	doc := unifiedllm.Message{Role: unifiedllm.RoleUser, Content: []unifiedllm.ContentPart{
		{Kind: unifiedllm.ContentDocument, Media: &unifiedllm.MediaData{URL: "file.pdf"}},
	}}

	req := DeriveRequestRequirements([]unifiedllm.Message{img, doc}, RequestOptions{
		CallOptions: unifiedllm.CallOptions{
			Tools:          []unifiedllm.ToolDefinition{{Name: "calc"}},
			MaxTokens:      &max,
			ResponseFormat: &unifiedllm.ResponseFormat{Type: "json_schema", Strict: true},
		},
		Stream: true,
	}, 42)

	assert.Equal(t, []Modality{ModalityText, ModalityImage, ModalityDocument}, req.InputModalities)
	assert.True(t, req.Tools)
	assert.True(t, req.Streaming)
	assert.True(t, req.JSONSchema)
	assert.True(t, req.StructuredOutputs)
	assert.True(t, req.StrictMode)
	assert.Equal(t, 256, req.MaxOutputTokens)
	assert.Equal(t, 42, req.EstimatedInputTokens)
}

func TestDeriveRequestRequirementsResponseFormats(t *testing.T) {
	tests := []struct {
		name       string
		format     *unifiedllm.ResponseFormat
		schema     bool
		structured bool
		strict     bool
	}{
		{"none", nil, false, false, false},
		{"text", &unifiedllm.ResponseFormat{Type: "text"}, false, false, false},
		{"json", &unifiedllm.ResponseFormat{Type: "json"}, false, true, false},
		{"json_schema", &unifiedllm.ResponseFormat{Type: "json_schema"}, true, true, false},
		{"strict text", &unifiedllm.ResponseFormat{Type: "text", Strict: true}, false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := DeriveRequestRequirements(nil, RequestOptions{CallOptions: unifiedllm.CallOptions{ResponseFormat: tt.format}}, 0)
			assert.Equal(t, tt.schema, req.JSONSchema)
			assert.Equal(t, tt.structured, req.StructuredOutputs)
			assert.Equal(t, tt.strict, req.StrictMode)
			assert.Equal(t, []Modality{ModalityText}, req.InputModalities)
			assert.False(t, req.Tools)
		})
	}
}

func TestValidateToolsUnsupported(t *testing.T) {
	req := DeriveRequestRequirements(
		[]unifiedllm.Message{unifiedllm.UserMessage("hi")},
		RequestOptions{CallOptions: unifiedllm.CallOptions{Tools: []unifiedllm.ToolDefinition{{Name: "calc", Parameters: map[string]any{}}}}},
		0,
	)
	err := ValidateRequestAgainstCapabilities("tiny-model", req, textModel())

	var capErr *CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "tiny-model", capErr.ModelID)
	assert.NotEmpty(t, capErr.Errors)
	assert.Contains(t, capErr.Errors, "tool calling is not supported")
}

func TestValidateReportsEveryViolation(t *testing.T) {
	req := RequestRequirements{
		InputModalities:      []Modality{ModalityText, ModalityImage, ModalityAudio},
		Tools:                true,
		Streaming:            true,
		JSONSchema:           true,
		StructuredOutputs:    true,
		MaxOutputTokens:      500,
		EstimatedInputTokens: 5000,
	}
	err := ValidateRequestAgainstCapabilities("tiny-model", req, textModel())

	var capErr *CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Len(t, capErr.Errors, 8)
	assert.Contains(t, err.Error(), `model "tiny-model" cannot serve request`)
	assert.Contains(t, err.Error(), "estimated 5000 input tokens exceeds context window of 1000")
}

func TestValidateAccepts(t *testing.T) {
	caps := ModelCapabilities{
		ContextWindow:     1000,
		MaxOutputTokens:   100,
		Streaming:         true,
		Tools:             true,
		JSONSchema:        true,
		StructuredOutputs: true,
		InputModalities:   []Modality{ModalityText, ModalityImage},
	}
	req := RequestRequirements{
		InputModalities:      []Modality{ModalityText, ModalityImage},
		Tools:                true,
		Streaming:            true,
		JSONSchema:           true,
		StructuredOutputs:    true,
		MaxOutputTokens:      100,
		EstimatedInputTokens: 1000,
	}
	assert.NoError(t, ValidateRequestAgainstCapabilities("m", req, caps))
}

func TestValidateZeroLimitsAreUnbounded(t *testing.T) {
	caps := ModelCapabilities{InputModalities: []Modality{ModalityText}}
	req := RequestRequirements{
		InputModalities:      []Modality{ModalityText},
		MaxOutputTokens:      1 << 20,
		EstimatedInputTokens: 1 << 20,
	}
	assert.NoError(t, ValidateRequestAgainstCapabilities("m", req, caps))
}

func TestCapabilityErrorFields(t *testing.T) {
	err := &CapabilityError{ModelID: "m", Errors: []string{"a", "b"}}
	data, jerr := json.Marshal(err)
	require.NoError(t, jerr)
	assert.JSONEq(t, `{"ModelID":"m","Errors":["a","b"]}`, string(data))
	assert.Equal(t, `model "m" cannot serve request: a; b`, err.Error())
}
