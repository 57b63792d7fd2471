package agentloop

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/martinemde/toolloop/unifiedllm"
	"github.com/tidwall/gjson"
)

// embeddedJSON returns every top-level JSON object or array embedded in
// text, in order of appearance.
func embeddedJSON(text string) []string {
	var out []string
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		end := matchingClose(text, i)
		if end < 0 {
			continue
		}
		candidate := text[i : end+1]
		if gjson.Valid(candidate) {
			out = append(out, candidate)
			i = end
		}
	}
	return out
}

// matchingClose finds the bracket closing the one at start, honoring JSON
// string escapes. It returns -1 when the bracket is never closed.
func matchingClose(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseTextToolCalls extracts tool calls from JSON embedded in text. It
// accepts {"tool_calls":[...]}, a single {"name":...,"arguments":...}
// object, or an array of such objects.
func parseTextToolCalls(text string) []unifiedllm.ToolCall {
	var calls []unifiedllm.ToolCall
	for _, doc := range embeddedJSON(text) {
		root := gjson.Parse(doc)
		switch {
		case root.IsObject() && root.Get("tool_calls").IsArray():
			for _, item := range root.Get("tool_calls").Array() {
				if tc, ok := toolCallFromJSON(item); ok {
					calls = append(calls, tc)
				}
			}
		case root.IsObject():
			if tc, ok := toolCallFromJSON(root); ok {
				calls = append(calls, tc)
			}
		case root.IsArray():
			for _, item := range root.Array() {
				if tc, ok := toolCallFromJSON(item); ok {
					calls = append(calls, tc)
				}
			}
		}
	}
	return calls
}

func toolCallFromJSON(v gjson.Result) (unifiedllm.ToolCall, bool) {
	if !v.IsObject() {
		return unifiedllm.ToolCall{}, false
	}
	name := v.Get("name").String()
	args := v.Get("arguments")
	if name == "" || !args.Exists() {
		return unifiedllm.ToolCall{}, false
	}
	raw := json.RawMessage(args.Raw)
	if args.Type == gjson.String && gjson.Valid(args.String()) {
		raw = json.RawMessage(args.String())
	}
	return unifiedllm.ToolCall{ID: v.Get("id").String(), Name: name, Arguments: raw}, true
}

// extractFinalAnswer returns the value of the last {"final_answer": "..."}
// object embedded in text.
func extractFinalAnswer(text string) (string, bool) {
	docs := embeddedJSON(text)
	for i := len(docs) - 1; i >= 0; i-- {
		answer := gjson.Get(docs[i], "final_answer")
		if answer.Exists() && answer.Type == gjson.String {
			return answer.String(), true
		}
	}
	return "", false
}

// assignCallIDs fills in missing ids and replaces duplicates so every call
// in a step has a unique id.
func assignCallIDs(calls []unifiedllm.ToolCall) []unifiedllm.ToolCall {
	seen := make(map[string]bool, len(calls))
	out := make([]unifiedllm.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" || seen[c.ID] {
			c.ID = "call_" + uuid.New().String()
		}
		if len(c.Arguments) == 0 {
			c.Arguments = json.RawMessage("{}")
		}
		seen[c.ID] = true
		out[i] = c
	}
	return out
}

// textModeInstructions tells the model how to call tools when they are not
// sent on the wire.
func textModeInstructions(defs []unifiedllm.ToolDefinition) string {
	var sb strings.Builder
	sb.WriteString("You can call tools by replying with JSON of the form\n")
	sb.WriteString(`{"tool_calls":[{"name":"<tool name>","arguments":{...}}]}`)
	sb.WriteString("\nWhen you have the final answer, reply with ")
	sb.WriteString(`{"final_answer":"<answer>"}`)
	sb.WriteString(".\n\nAvailable tools:\n")
	for _, d := range defs {
		params, err := json.Marshal(d.Parameters)
		if err != nil {
			params = []byte("{}")
		}
		fmt.Fprintf(&sb, "- %s: %s\n  parameters: %s\n", d.Name, d.Description, params)
	}
	return sb.String()
}
