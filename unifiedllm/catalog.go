package unifiedllm

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID                        string   `json:"id"`
	Provider                  string   `json:"provider"`
	DisplayName               string   `json:"display_name"`
	ContextWindow             int      `json:"context_window"`
	MaxOutput                 *int     `json:"max_output,omitempty"`
	SupportsTools             bool     `json:"supports_tools"`
	SupportsStreaming         bool     `json:"supports_streaming"`
	SupportsJSONSchema        bool     `json:"supports_json_schema"`
	SupportsStructuredOutputs bool     `json:"supports_structured_outputs"`
	SupportsVision            bool     `json:"supports_vision"`
	SupportsReasoning         bool     `json:"supports_reasoning"`
	InputModalities           []string `json:"input_modalities"`
	OutputModalities          []string `json:"output_modalities"`
	Aliases                   []string `json:"aliases,omitempty"`
}

func intPtr(v int) *int { return &v }

var (
	textOnly      = []string{"text"}
	textAndImage  = []string{"text", "image"}
	textImageDocs = []string{"text", "image", "document"}
	multimodalIn  = []string{"text", "image", "audio", "document"}
)

// Models is the built-in model catalog.
var Models = []ModelInfo{
	// Anthropic
	{
		ID: "claude-opus-4-6", Provider: "anthropic", DisplayName: "Claude Opus 4.6",
		ContextWindow: 200000, MaxOutput: intPtr(32768),
		SupportsTools: true, SupportsStreaming: true, SupportsJSONSchema: true,
		SupportsVision: true, SupportsReasoning: true,
		InputModalities: textImageDocs, OutputModalities: textOnly,
		Aliases: []string{"opus", "claude-opus"},
	},
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, MaxOutput: intPtr(16384),
		SupportsTools: true, SupportsStreaming: true, SupportsJSONSchema: true,
		SupportsVision: true, SupportsReasoning: true,
		InputModalities: textImageDocs, OutputModalities: textOnly,
		Aliases: []string{"sonnet", "claude-sonnet"},
	},

	// OpenAI
	{
		ID: "gpt-5.2", Provider: "openai", DisplayName: "GPT-5.2",
		ContextWindow: 1047576, MaxOutput: intPtr(32768),
		SupportsTools: true, SupportsStreaming: true, SupportsJSONSchema: true, SupportsStructuredOutputs: true,
		SupportsVision: true, SupportsReasoning: true,
		InputModalities: textAndImage, OutputModalities: textOnly,
		Aliases: []string{"gpt5"},
	},
	{
		ID: "gpt-5.2-mini", Provider: "openai", DisplayName: "GPT-5.2 Mini",
		ContextWindow: 1047576, MaxOutput: intPtr(16384),
		SupportsTools: true, SupportsStreaming: true, SupportsJSONSchema: true, SupportsStructuredOutputs: true,
		SupportsVision: true, SupportsReasoning: true,
		InputModalities: textAndImage, OutputModalities: textOnly,
		Aliases: []string{"gpt5-mini"},
	},

	// Gemini
	{
		ID: "gemini-3-pro-preview", Provider: "gemini", DisplayName: "Gemini 3 Pro (Preview)",
		ContextWindow: 1048576, MaxOutput: intPtr(65536),
		SupportsTools: true, SupportsStreaming: true, SupportsJSONSchema: true, SupportsStructuredOutputs: true,
		SupportsVision: true, SupportsReasoning: true,
		InputModalities: multimodalIn, OutputModalities: textOnly,
		Aliases: []string{"gemini-pro", "gemini-3-pro"},
	},
	{
		ID: "gemini-3-flash-preview", Provider: "gemini", DisplayName: "Gemini 3 Flash (Preview)",
		ContextWindow: 1048576, MaxOutput: intPtr(65536),
		SupportsTools: true, SupportsStreaming: true, SupportsJSONSchema: true, SupportsStructuredOutputs: true,
		SupportsVision: true, SupportsReasoning: true,
		InputModalities: multimodalIn, OutputModalities: textOnly,
		Aliases: []string{"gemini-flash", "gemini-3-flash"},
	},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// GetLatestModel returns the first (newest) model for a provider,
// optionally filtered by capability ("tools", "vision", "reasoning", "streaming").
func GetLatestModel(provider string, capability string) *ModelInfo {
	for i := range Models {
		m := &Models[i]
		if m.Provider != provider {
			continue
		}
		switch capability {
		case "":
			return m
		case "vision":
			if m.SupportsVision {
				return m
			}
		case "tools":
			if m.SupportsTools {
				return m
			}
		case "reasoning":
			if m.SupportsReasoning {
				return m
			}
		case "streaming":
			if m.SupportsStreaming {
				return m
			}
		}
	}
	return nil
}
