package unifiedllm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageConstructors(t *testing.T) {
	t.Run("SystemMessage", func(t *testing.T) {
		msg := SystemMessage("You are helpful.")
		assert.Equal(t, RoleSystem, msg.Role)
		assert.Equal(t, "You are helpful.", msg.TextContent())
	})

	t.Run("AssistantMessage text only", func(t *testing.T) {
		msg := AssistantMessage("Hi there")
		assert.Equal(t, RoleAssistant, msg.Role)
		assert.Equal(t, "Hi there", msg.TextContent())
		assert.Empty(t, msg.ToolCalls())
	})

	t.Run("AssistantMessage with calls and no text", func(t *testing.T) {
		msg := AssistantMessage("", ToolCall{ID: "c1", Name: "calc", Arguments: json.RawMessage(`{}`)})
		require.Len(t, msg.Content, 1)
		assert.Equal(t, ContentToolCall, msg.Content[0].Kind)
		assert.Equal(t, "function", msg.Content[0].ToolCall.Type)
	})

	t.Run("ToolResultMessage", func(t *testing.T) {
		msg := ToolResultMessage("call_123", "72F and sunny", true)
		assert.Equal(t, RoleTool, msg.Role)
		assert.Equal(t, "call_123", msg.ToolCallID)
		require.Len(t, msg.Content, 1)
		assert.Equal(t, ContentToolResult, msg.Content[0].Kind)
		assert.Equal(t, "72F and sunny", msg.Content[0].ToolResult.Content)
		assert.True(t, msg.Content[0].ToolResult.IsError)
	})
}

func TestContentPartConstructors(t *testing.T) {
	img := ImageURLPart("https://example.com/img.png", "image/png")
	assert.Equal(t, ContentImage, img.Kind)
	assert.Equal(t, "https://example.com/img.png", img.Media.URL)

	raw := ImageDataPart([]byte{1, 2, 3}, "")
	assert.Equal(t, "image/png", raw.Media.MediaType)

	thinking := ThinkingPart("Let me think...", "sig_abc")
	assert.Equal(t, ContentThinking, thinking.Kind)
	assert.Equal(t, "sig_abc", thinking.Thinking.Signature)
}

func TestMessageTextContent(t *testing.T) {
	msg := Message{Role: RoleAssistant, Content: []ContentPart{
		TextPart("Hello "),
		ThinkingPart("thinking...", ""),
		TextPart("world"),
	}}
	assert.Equal(t, "Hello world", msg.TextContent())
}

func TestMessageClone(t *testing.T) {
	orig := UserMessage("a")
	clone := orig.Clone()
	clone.Content[0] = TextPart("b")
	assert.Equal(t, "a", orig.TextContent())
	assert.Equal(t, "b", clone.TextContent())
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30}
	b := Usage{InputTokens: 5, OutputTokens: 15, TotalTokens: 20}
	result := a.Add(b)
	assert.Equal(t, Usage{InputTokens: 15, OutputTokens: 35, TotalTokens: 50}, result)

	five, ten := 5, 10
	a.ReasoningTokens = &five
	require.NotNil(t, a.Add(b).ReasoningTokens)
	assert.Equal(t, 5, *a.Add(b).ReasoningTokens)
	b.ReasoningTokens = &ten
	assert.Equal(t, 15, *a.Add(b).ReasoningTokens)
}

func TestResponseAccessors(t *testing.T) {
	resp := Response{Message: Message{Role: RoleAssistant, Content: []ContentPart{
		ThinkingPart("reasoning here", "sig"),
		{Kind: ContentThinking, Thinking: &ThinkingData{Text: "hidden", Redacted: true}},
		TextPart("The answer is 42."),
		ToolCallPart("call_1", "calc", json.RawMessage(`{}`)),
	}}}

	assert.Equal(t, "The answer is 42.", resp.Text())
	assert.Equal(t, "reasoning here", resp.Reasoning())
	calls := resp.ToolCallsFromResponse()
	require.Len(t, calls, 1)
	assert.Equal(t, "calc", calls[0].Name)
}

func TestNewRequest(t *testing.T) {
	max := 100
	req := NewRequest([]Message{UserMessage("hi")}, ModelContext{ModelID: "m", Provider: "p"}, CallOptions{MaxTokens: &max})
	assert.Equal(t, "m", req.Model)
	assert.Equal(t, "p", req.Provider)
	assert.Equal(t, &max, req.MaxTokens)
}
