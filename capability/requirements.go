package capability

import (
	"github.com/martinemde/toolloop/unifiedllm"
)

// Modality is an input or output medium a model can handle.
type Modality string

const (
	ModalityText     Modality = "text"
	ModalityImage    Modality = "image"
	ModalityAudio    Modality = "audio"
	ModalityDocument Modality = "document"
)

// RequestRequirements is what a single model call needs from the model.
type RequestRequirements struct {
	InputModalities      []Modality
	Tools                bool
	Streaming            bool
	JSONSchema           bool
	StructuredOutputs    bool
	StrictMode           bool
	MaxOutputTokens      int // 0 when the call does not request a limit
	EstimatedInputTokens int // 0 when unknown
}

// RequestOptions are the call options plus the delivery mode.
type RequestOptions struct {
	unifiedllm.CallOptions
	Stream bool
}

// DeriveRequestRequirements inspects messages and options and reports what
// the call needs. Text is always a required input modality.
func DeriveRequestRequirements(messages []unifiedllm.Message, opts RequestOptions, estimatedInputTokens int) RequestRequirements {
	req := RequestRequirements{
		InputModalities:      []Modality{ModalityText},
		Tools:                len(opts.Tools) > 0,
		Streaming:            opts.Stream,
		EstimatedInputTokens: estimatedInputTokens,
	}
	if opts.MaxTokens != nil {
		req.MaxOutputTokens = *opts.MaxTokens
	}

	if rf := opts.ResponseFormat; rf != nil {
		switch rf.Type {
		case "json":
			req.StructuredOutputs = true
		case "json_schema":
			req.JSONSchema = true
			req.StructuredOutputs = true
		}
		if rf.Strict {
			req.StrictMode = true
			req.StructuredOutputs = true
		}
	}

	seen := map[Modality]bool{ModalityText: true}
	for _, msg := range messages {
		for _, part := range msg.Content {
			var m Modality
			switch part.Kind {
			case unifiedllm.ContentImage:
				m = ModalityImage
			case unifiedllm.ContentAudio:
				m = ModalityAudio
			case unifiedllm.ContentDocument:
				m = ModalityDocument
			default:
				continue
			}
			if !seen[m] {
				seen[m] = true
				req.InputModalities = append(req.InputModalities, m)
			}
		}
	}
	return req
}
