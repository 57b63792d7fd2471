package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
	"github.com/tidwall/gjson"
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter.
// gollm keeps generation options on the LLM itself, so every call resets
// them to the adapter defaults plus the request's overrides, and calls
// through one adapter are serialized.
type GollmAdapter struct {
	provider    string
	llm         gollm.LLM
	model       string
	maxTokens   int
	temperature float64

	mu      sync.Mutex
	topPSet bool
}

type llmOption struct {
	key   string
	value any
}

var (
	_ ProviderAdapter  = (*GollmAdapter)(nil)
	_ RequestEstimator = (*GollmAdapter)(nil)
)

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key for the adapter.
func WithAPIKey(key string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a new GollmAdapter for the given provider.
// If apiKey is empty, gollm reads it from the environment.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := newGollmAdapterConfig(opts)
	if cfg.apiKey == "" {
		cfg.apiKey = apiKey
	}

	model := cfg.model
	if model == "" {
		if info := GetLatestModel(provider, "tools"); info != nil {
			model = info.ID
		} else {
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries belong to RetryMiddleware
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmAdapter{
		provider:    provider,
		llm:         llm,
		model:       model,
		maxTokens:   cfg.maxTokens,
		temperature: cfg.temperature,
	}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance. WithModel,
// WithMaxTokens and WithTemperature set the defaults restored before each
// call; the API key and gollm options are ignored.
func NewGollmAdapterFromLLM(provider string, llm gollm.LLM, opts ...GollmAdapterOption) *GollmAdapter {
	cfg := newGollmAdapterConfig(opts)
	return &GollmAdapter{
		provider:    provider,
		llm:         llm,
		model:       cfg.model,
		maxTokens:   cfg.maxTokens,
		temperature: cfg.temperature,
	}
}

func newGollmAdapterConfig(opts []GollmAdapterOption) *gollmAdapterConfig {
	cfg := &gollmAdapterConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)
	text, err := a.generate(ctx, req, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildResponse(req, text), nil
}

func (a *GollmAdapter) generate(ctx context.Context, req Request, prompt *gollm.Prompt) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applyRequestOptions(req)
	return a.llm.Generate(ctx, prompt)
}

// Stream sends a streaming request and returns a channel of StreamEvents.
// Tool calls are only known once the full text has arrived, so they are
// emitted after the last text delta.
func (a *GollmAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	prompt := a.translateRequest(req)
	ch := make(chan StreamEvent, 64)

	if !a.llm.SupportsStreaming() {
		go func() {
			defer close(ch)
			text, err := a.generate(ctx, req, prompt)
			if err != nil {
				ch <- StreamEvent{Type: StreamStart}
				ch <- StreamEvent{Type: StreamError, Error: a.translateError(err)}
				return
			}
			for _, event := range StreamFromResponse(a.buildResponse(req, text)) {
				ch <- event
			}
		}()
		return ch, nil
	}

	a.mu.Lock()
	a.applyRequestOptions(req)
	stream, err := a.llm.Stream(ctx, prompt)
	a.mu.Unlock()
	if err != nil {
		return nil, a.translateError(err)
	}

	go func() {
		defer close(ch)
		defer stream.Close()

		ch <- StreamEvent{Type: StreamStart}

		var full strings.Builder
		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Error: a.translateError(err)}
				return
			}
			if token == nil || token.Text == "" {
				continue
			}
			ch <- StreamEvent{Type: TextDelta, Delta: token.Text}
			full.WriteString(token.Text)
		}

		resp := a.buildResponse(req, full.String())
		for _, tc := range resp.ToolCallsFromResponse() {
			call := tc
			ch <- StreamEvent{Type: ToolCallEnd, ToolCall: &call}
		}
		ch <- StreamEvent{
			Type:         StreamFinish,
			FinishReason: &resp.FinishReason,
			Usage:        &resp.Usage,
			Response:     resp,
		}
	}()

	return ch, nil
}

// EstimateTokens implements RequestEstimator with a four-characters-per-token
// heuristic over every text-bearing part.
func (a *GollmAdapter) EstimateTokens(req Request) int {
	return estimateTokens(req)
}

// translateRequest flattens a unified Request into a gollm Prompt.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	var systemPrompt strings.Builder
	var turns []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt.WriteString(msg.TextContent())
			systemPrompt.WriteString("\n")
		case RoleUser:
			turns = append(turns, msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				turns = append(turns, "[Assistant]: "+text)
			}
			for _, tc := range msg.ToolCalls() {
				turns = append(turns, fmt.Sprintf("[Tool Call %s]: %s %s", tc.ID, tc.Name, string(tc.Arguments)))
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind != ContentToolResult || part.ToolResult == nil {
					continue
				}
				prefix := "[Tool Result]"
				if part.ToolResult.IsError {
					prefix = "[Tool Error]"
				}
				turns = append(turns, prefix+": "+part.ToolResult.Content)
			}
		}
	}

	promptText := strings.Join(turns, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if s := strings.TrimSpace(systemPrompt.String()); s != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(s, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}
	if req.ToolChoice != nil {
		promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice.Mode))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyRequestOptions sets the options for req on the gollm LLM. Callers
// hold a.mu.
func (a *GollmAdapter) applyRequestOptions(req Request) {
	for _, opt := range a.requestOptions(req) {
		a.llm.SetOption(opt.key, opt.value)
	}
}

// requestOptions resolves req against the adapter defaults. gollm cannot
// unset an option, so a top_p left by an earlier request is reset to 1.
func (a *GollmAdapter) requestOptions(req Request) []llmOption {
	var opts []llmOption
	model := a.model
	if req.Model != "" {
		model = req.Model
	}
	if model != "" {
		opts = append(opts, llmOption{"model", model})
	}

	temperature := a.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	opts = append(opts, llmOption{"temperature", temperature})

	maxTokens := a.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens > 0 {
		opts = append(opts, llmOption{"max_tokens", maxTokens})
	}

	switch {
	case req.TopP != nil:
		opts = append(opts, llmOption{"top_p", *req.TopP})
		a.topPSet = true
	case a.topPSet:
		opts = append(opts, llmOption{"top_p", 1.0})
		a.topPSet = false
	}
	return opts
}

// buildResponse constructs a unified Response from generated text. gollm
// returns native tool calls serialized into the text, so they are lifted
// back out here.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	calls, rest := parseEmbeddedToolCalls(text)

	var parts []ContentPart
	if rest != "" || len(calls) == 0 {
		parts = append(parts, TextPart(rest))
	}
	for _, tc := range calls {
		parts = append(parts, ToolCallPart(tc.ID, tc.Name, tc.Arguments))
	}

	finish := FinishReason{Reason: "stop", Raw: "stop"}
	if len(calls) > 0 {
		finish = FinishReason{Reason: "tool_calls", Raw: "tool_calls"}
	}

	// gollm does not surface provider usage; approximate it.
	in := estimateTokens(req)
	out := len(text) / 4
	return &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     a.provider,
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: finish,
		Usage:        Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

// parseEmbeddedToolCalls extracts a trailing {"tool_calls":[...]} object or
// [{"name":...}] array from text and returns the calls plus the text before it.
func parseEmbeddedToolCalls(text string) ([]ToolCall, string) {
	start := strings.Index(text, `{"tool_calls"`)
	path := "tool_calls"
	if start == -1 {
		start = strings.Index(text, `[{"name"`)
		path = "@this"
	}
	if start == -1 {
		return nil, text
	}

	raw := text[start:]
	if !gjson.Valid(raw) {
		return nil, text
	}
	list := gjson.Get(raw, path)
	if !list.IsArray() {
		return nil, text
	}

	var calls []ToolCall
	for _, item := range list.Array() {
		name := item.Get("name").String()
		if name == "" {
			continue
		}
		args := json.RawMessage("{}")
		if a := item.Get("arguments"); a.Exists() {
			if a.Type == gjson.String && gjson.Valid(a.String()) {
				args = json.RawMessage(a.String())
			} else {
				args = json.RawMessage(a.Raw)
			}
		}
		id := item.Get("id").String()
		if id == "" {
			id = "call_" + uuid.New().String()[:8]
		}
		calls = append(calls, ToolCall{ID: id, Name: name, Arguments: args})
	}
	if len(calls) == 0 {
		return nil, text
	}
	return calls, strings.TrimSpace(text[:start])
}

// translateError converts a gollm error into the unified error hierarchy.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	base := func(status int, retryable bool) ProviderError {
		return ProviderError{
			SDKError:   SDKError{Message: msg, Cause: err},
			Provider:   a.provider,
			StatusCode: status,
			Retryable:  retryable,
		}
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return &AuthenticationError{ProviderError: base(401, false)}
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		return &AccessDeniedError{ProviderError: base(403, false)}
	case strings.Contains(lower, "404") || strings.Contains(lower, "not found"):
		return &NotFoundError{ProviderError: base(404, false)}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return &RateLimitError{ProviderError: base(429, true)}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		return &ContextLengthError{ProviderError: base(413, false)}
	case strings.Contains(lower, "500") || strings.Contains(lower, "internal server"):
		return &ServerError{ProviderError: base(500, true)}
	case strings.Contains(lower, "timeout"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "safety"):
		return &ContentFilterError{ProviderError: base(0, false)}
	default:
		p := base(0, true)
		return &p
	}
}

func estimateTokens(req Request) int {
	chars := 0
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			switch {
			case part.Kind == ContentText:
				chars += len(part.Text)
			case part.Kind == ContentToolResult && part.ToolResult != nil:
				chars += len(part.ToolResult.Content)
			case part.Kind == ContentToolCall && part.ToolCall != nil:
				chars += len(part.ToolCall.Name) + len(part.ToolCall.Arguments)
			}
		}
	}
	for _, t := range req.Tools {
		chars += len(t.Name) + len(t.Description)
	}
	total := chars / 4
	if total == 0 {
		total = 10
	}
	return total
}
