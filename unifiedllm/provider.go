package unifiedllm

import "context"

// Transport is the model-call contract the tool loop consumes. CallAI is the
// blocking form; CallAIStream returns a server-sent-event byte stream whose
// frames decode into StreamEvents (see DecodeStream).
type Transport interface {
	CallAI(ctx context.Context, messages []Message, model ModelContext, opts CallOptions) (*Response, error)
	CallAIStream(ctx context.Context, messages []Message, model ModelContext, opts CallOptions) (*StreamResponse, error)
}

// TokenEstimator is implemented by transports that can estimate the input
// token count of a message set before sending it.
type TokenEstimator interface {
	EstimateInputTokens(model ModelContext, messages []Message) int
}

// ProviderAdapter is the interface every provider backend must implement.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream sends a request and returns a channel of stream events.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// RequestEstimator is implemented by adapters that can estimate input tokens
// for a request.
type RequestEstimator interface {
	EstimateTokens(req Request) int
}
