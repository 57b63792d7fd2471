package unifiedllm

import (
	"context"
	"errors"
	"maps"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/gollm"
	"github.com/teilomillet/gollm/llm"
)

func TestGollmAdapterTranslateError(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai"}

	tests := []struct {
		msg    string
		target any
	}{
		{"401 Unauthorized", new(*AuthenticationError)},
		{"invalid api key", new(*AuthenticationError)},
		{"403 Forbidden", new(*AccessDeniedError)},
		{"404 not found", new(*NotFoundError)},
		{"429 rate limit exceeded", new(*RateLimitError)},
		{"context length exceeded", new(*ContextLengthError)},
		{"500 internal server error", new(*ServerError)},
		{"timeout waiting for response", new(*RequestTimeoutError)},
		{"content filter triggered", new(*ContentFilterError)},
		{"something unknown", new(*ProviderError)},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			cause := errors.New(tt.msg)
			err := adapter.translateError(cause)
			assert.ErrorAs(t, err, tt.target)
			assert.ErrorIs(t, err, cause)
		})
	}
	assert.NoError(t, adapter.translateError(nil))
}

func TestParseEmbeddedToolCalls(t *testing.T) {
	t.Run("tool_calls object", func(t *testing.T) {
		calls, rest := parseEmbeddedToolCalls(`Let me add. {"tool_calls":[{"id":"c1","name":"calculator","arguments":{"a":25,"b":17}}]}`)
		require.Len(t, calls, 1)
		assert.Equal(t, "c1", calls[0].ID)
		assert.Equal(t, "calculator", calls[0].Name)
		assert.JSONEq(t, `{"a":25,"b":17}`, string(calls[0].Arguments))
		assert.Equal(t, "Let me add.", rest)
	})

	t.Run("bare array with string arguments", func(t *testing.T) {
		calls, rest := parseEmbeddedToolCalls(`[{"name":"current_time","arguments":"{\"zone\":\"UTC\"}"}]`)
		require.Len(t, calls, 1)
		assert.NotEmpty(t, calls[0].ID)
		assert.JSONEq(t, `{"zone":"UTC"}`, string(calls[0].Arguments))
		assert.Empty(t, rest)
	})

	t.Run("plain text", func(t *testing.T) {
		calls, rest := parseEmbeddedToolCalls("The answer is 42.")
		assert.Nil(t, calls)
		assert.Equal(t, "The answer is 42.", rest)
	})

	t.Run("malformed json", func(t *testing.T) {
		calls, rest := parseEmbeddedToolCalls(`{"tool_calls":[{"name":`)
		assert.Nil(t, calls)
		assert.Equal(t, `{"tool_calls":[{"name":`, rest)
	})
}

func TestGollmAdapterBuildResponse(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai", model: "gpt-5.2"}
	resp := adapter.buildResponse(Request{Messages: []Message{UserMessage("What is 25 + 17?")}},
		`{"tool_calls":[{"name":"calculator","arguments":{"a":25,"b":17}}]}`)

	assert.Equal(t, "gpt-5.2", resp.Model)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "tool_calls", resp.FinishReason.Reason)
	require.Len(t, resp.ToolCallsFromResponse(), 1)
	assert.Empty(t, resp.Text())
	assert.Equal(t, resp.Usage.InputTokens+resp.Usage.OutputTokens, resp.Usage.TotalTokens)

	plain := adapter.buildResponse(Request{}, "42")
	assert.Equal(t, "stop", plain.FinishReason.Reason)
	assert.Equal(t, "42", plain.Text())
}

func TestEstimateTokens(t *testing.T) {
	req := Request{Messages: []Message{
		UserMessage("This is a test message with some content."),
		ToolResultMessage("c1", "0123456789abcdef", false),
	}}
	assert.Equal(t, (41+16)/4, estimateTokens(req))
	assert.Equal(t, 10, estimateTokens(Request{}))

	adapter := &GollmAdapter{provider: "openai"}
	assert.Equal(t, estimateTokens(req), adapter.EstimateTokens(req))
}

// recordingLLM keeps options the way gollm does and snapshots them on each
// Generate call. Methods it does not override are never reached.
type recordingLLM struct {
	gollm.LLM
	options map[string]any
	seen    []map[string]any
}

func (r *recordingLLM) SetOption(key string, value any) {
	if r.options == nil {
		r.options = make(map[string]any)
	}
	r.options[key] = value
}

func (r *recordingLLM) Generate(context.Context, *llm.Prompt, ...llm.GenerateOption) (string, error) {
	r.seen = append(r.seen, maps.Clone(r.options))
	return "ok", nil
}

func TestGollmAdapterRequestOptionsDoNotLeak(t *testing.T) {
	rec := &recordingLLM{}
	adapter := NewGollmAdapterFromLLM("openai", rec, WithModel("gpt-5.2"), WithMaxTokens(1000), WithTemperature(0.5))

	maxTokens, temperature, topP := 100, 0.1, 0.9
	requests := []Request{
		{Model: "gpt-5.2-mini", Messages: []Message{UserMessage("one")},
			CallOptions: CallOptions{MaxTokens: &maxTokens, Temperature: &temperature, TopP: &topP}},
		{Messages: []Message{UserMessage("two")}},
	}
	for _, req := range requests {
		_, err := adapter.Complete(context.Background(), req)
		require.NoError(t, err)
	}

	require.Len(t, rec.seen, 2)
	assert.Equal(t, map[string]any{
		"model": "gpt-5.2-mini", "temperature": 0.1, "max_tokens": 100, "top_p": 0.9,
	}, rec.seen[0])
	assert.Equal(t, map[string]any{
		"model": "gpt-5.2", "temperature": 0.5, "max_tokens": 1000, "top_p": 1.0,
	}, rec.seen[1])

	opts := adapter.requestOptions(Request{})
	assert.Equal(t, []llmOption{{"model", "gpt-5.2"}, {"temperature", 0.5}, {"max_tokens", 1000}}, opts,
		"top_p is only reset once")
}
