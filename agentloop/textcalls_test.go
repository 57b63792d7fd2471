package agentloop

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/martinemde/toolloop/unifiedllm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTextToolCalls(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		names []string
		args  []string
	}{
		{
			name:  "tool_calls envelope",
			text:  `Sure. {"tool_calls":[{"name":"add","arguments":{"a":1}},{"name":"sub","arguments":{"b":2}}]}`,
			names: []string{"add", "sub"},
			args:  []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name:  "single object",
			text:  `{"name":"add","arguments":{"a":1}}`,
			names: []string{"add"},
			args:  []string{`{"a":1}`},
		},
		{
			name:  "bare array",
			text:  "calling:\n[{\"name\":\"add\",\"arguments\":{}}]",
			names: []string{"add"},
			args:  []string{`{}`},
		},
		{
			name:  "string arguments",
			text:  `{"name":"add","arguments":"{\"a\":3}"}`,
			names: []string{"add"},
			args:  []string{`{"a":3}`},
		},
		{
			name:  "braces inside strings",
			text:  `{"name":"echo","arguments":{"text":"a } b { c"}}`,
			names: []string{"echo"},
			args:  []string{`{"text":"a } b { c"}`},
		},
		{
			name:  "two separate objects",
			text:  `first {"name":"a","arguments":{}} then {"name":"b","arguments":{}}`,
			names: []string{"a", "b"},
			args:  []string{`{}`, `{}`},
		},
		{name: "plain prose", text: "The answer is 42."},
		{name: "final answer only", text: `{"final_answer":"42"}`},
		{name: "missing arguments", text: `{"name":"add"}`},
		{name: "unterminated", text: `{"name":"add","arguments":{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := parseTextToolCalls(tt.text)
			require.Len(t, calls, len(tt.names))
			for i, c := range calls {
				assert.Equal(t, tt.names[i], c.Name)
				assert.JSONEq(t, tt.args[i], string(c.Arguments))
			}
		})
	}
}

func TestParseTextToolCallsKeepsIDs(t *testing.T) {
	calls := parseTextToolCalls(`{"tool_calls":[{"id":"t1","name":"add","arguments":{}}]}`)
	require.Len(t, calls, 1)
	assert.Equal(t, "t1", calls[0].ID)
}

func TestExtractFinalAnswer(t *testing.T) {
	answer, ok := extractFinalAnswer(`thinking... {"final_answer":"first"} more {"final_answer":"last"}`)
	assert.True(t, ok)
	assert.Equal(t, "last", answer)

	_, ok = extractFinalAnswer("no json here")
	assert.False(t, ok)

	_, ok = extractFinalAnswer(`{"final_answer":42}`)
	assert.False(t, ok)
}

func TestAssignCallIDs(t *testing.T) {
	in := []unifiedllm.ToolCall{
		{ID: "keep", Name: "a", Arguments: json.RawMessage(`{"x":1}`)},
		{ID: "", Name: "b"},
		{ID: "keep", Name: "c", Arguments: json.RawMessage(`{}`)},
	}
	out := assignCallIDs(in)

	require.Len(t, out, 3)
	assert.Equal(t, "keep", out[0].ID)
	assert.True(t, strings.HasPrefix(out[1].ID, "call_"))
	assert.True(t, strings.HasPrefix(out[2].ID, "call_"))
	assert.NotEqual(t, out[1].ID, out[2].ID)
	assert.Equal(t, json.RawMessage("{}"), out[1].Arguments)
	assert.Empty(t, in[1].ID, "input is not modified")
}

func TestTextModeInstructions(t *testing.T) {
	defs := []unifiedllm.ToolDefinition{{
		Name:        "add",
		Description: "Add numbers.",
		Parameters:  map[string]any{"type": "object"},
	}}
	got := textModeInstructions(defs)

	assert.Contains(t, got, `"tool_calls"`)
	assert.Contains(t, got, `"final_answer"`)
	assert.Contains(t, got, "- add: Add numbers.")
	assert.Contains(t, got, `parameters: {"type":"object"}`)
}

func TestExtractToolCallsByMode(t *testing.T) {
	resp := &unifiedllm.Response{Message: unifiedllm.Message{
		Role: unifiedllm.RoleAssistant,
		Content: []unifiedllm.ContentPart{
			unifiedllm.ThinkingPart(`{"name":"from_reasoning","arguments":{}}`, ""),
			unifiedllm.TextPart(`{"name":"from_text","arguments":{}}`),
			unifiedllm.ToolCallPart("n1", "native", json.RawMessage(`{}`)),
		},
	}}

	native := extractToolCalls(ToolCallingNative, resp)
	require.Len(t, native, 1)
	assert.Equal(t, "native", native[0].Name)

	text := extractToolCalls(ToolCallingText, resp)
	require.Len(t, text, 1)
	assert.Equal(t, "from_text", text[0].Name)

	assert.Nil(t, extractToolCalls(ToolCallingOff, resp))

	resp.Message.Content = resp.Message.Content[:1]
	fallback := extractToolCalls(ToolCallingText, resp)
	require.Len(t, fallback, 1)
	assert.Equal(t, "from_reasoning", fallback[0].Name)
}
