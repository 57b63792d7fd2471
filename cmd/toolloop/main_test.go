package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/martinemde/toolloop/config"
	"github.com/martinemde/toolloop/unifiedllm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport asks for one calculator call, then answers with the result.
type fakeTransport struct {
	mu    sync.Mutex
	calls int
	tools []string
}

func (f *fakeTransport) respond(messages []unifiedllm.Message, opts unifiedllm.CallOptions) *unifiedllm.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == 1 {
		for _, d := range opts.Tools {
			f.tools = append(f.tools, d.Name)
		}
		call := unifiedllm.ToolCall{ID: "call_1", Name: "calculator", Arguments: json.RawMessage(`{"operation":"add","a":25,"b":17}`)}
		return &unifiedllm.Response{
			Model:        "test-model",
			Message:      unifiedllm.AssistantMessage("", call),
			FinishReason: unifiedllm.FinishReason{Reason: "tool_calls"},
			Usage:        unifiedllm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		}
	}
	answer := "no result"
	last := messages[len(messages)-1]
	for _, p := range last.Content {
		if p.ToolResult != nil {
			answer = "25 + 17 = " + p.ToolResult.Content
		}
	}
	return &unifiedllm.Response{
		Model:        "test-model",
		Message:      unifiedllm.AssistantMessage(answer),
		FinishReason: unifiedllm.FinishReason{Reason: "stop"},
		Usage:        unifiedllm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func (f *fakeTransport) CallAI(_ context.Context, messages []unifiedllm.Message, _ unifiedllm.ModelContext, opts unifiedllm.CallOptions) (*unifiedllm.Response, error) {
	return f.respond(messages, opts), nil
}

func (f *fakeTransport) CallAIStream(_ context.Context, messages []unifiedllm.Message, _ unifiedllm.ModelContext, opts unifiedllm.CallOptions) (*unifiedllm.StreamResponse, error) {
	resp := f.respond(messages, opts)
	ch := make(chan unifiedllm.StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range unifiedllm.StreamFromResponse(resp) {
			ch <- ev
		}
	}()
	return &unifiedllm.StreamResponse{Body: unifiedllm.EncodeStream(ch)}, nil
}

func testConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toolloop.yaml")
	content := "model: test-model\nworkspace: " + t.TempDir() + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func factoryFor(ft *fakeTransport) TransportFactory {
	return func(*config.Config) (unifiedllm.Transport, func() error, error) {
		return ft, nil, nil
	}
}

func TestRunGenerate(t *testing.T) {
	ft := &fakeTransport{}
	var stdout, stderr bytes.Buffer
	err := Run(context.Background(), RunOptions{
		Prompt:           "What is 25 + 17?",
		ConfigPath:       testConfig(t),
		TransportFactory: factoryFor(ft),
		Stdout:           &stdout,
		Stderr:           &stderr,
	})
	require.NoError(t, err)

	assert.Equal(t, "25 + 17 = 42\n", stdout.String())
	assert.Contains(t, stderr.String(), "steps: 2  stop: no_tool_calls  tokens: 30")
	assert.Contains(t, stderr.String(), "step 1  calculator  ok")
	assert.ElementsMatch(t, []string{"calculator", "current_time", "list_directory", "read_file", "write_file"}, ft.tools)
}

func TestRunStream(t *testing.T) {
	ft := &fakeTransport{}
	var stdout, stderr bytes.Buffer
	err := Run(context.Background(), RunOptions{
		Prompt:           "What is 25 + 17?",
		Stream:           true,
		ConfigPath:       testConfig(t),
		TransportFactory: factoryFor(ft),
		Stdout:           &stdout,
		Stderr:           &stderr,
	})
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "25 + 17 = 42")
	assert.Contains(t, stderr.String(), "tool call")
	assert.Contains(t, stderr.String(), "steps: 2")
}

func TestRunOffModeSendsNoTools(t *testing.T) {
	ft := &fakeTransport{}
	var stdout, stderr bytes.Buffer
	err := Run(context.Background(), RunOptions{
		Prompt:           "hi",
		Mode:             "off",
		ConfigPath:       testConfig(t),
		TransportFactory: factoryFor(ft),
		Stdout:           &stdout,
		Stderr:           &stderr,
	})
	require.NoError(t, err)
	assert.Empty(t, ft.tools)
}

func TestRunErrors(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), RunOptions{
		Prompt:           "hi",
		Mode:             "sometimes",
		ConfigPath:       testConfig(t),
		TransportFactory: factoryFor(&fakeTransport{}),
		Stdout:           &out,
		Stderr:           &out,
	})
	assert.ErrorContains(t, err, "tool_calling_mode")

	err = Run(context.Background(), RunOptions{
		Prompt:     "hi",
		ConfigPath: testConfig(t),
		TransportFactory: func(*config.Config) (unifiedllm.Transport, func() error, error) {
			return nil, nil, errors.New("no credentials")
		},
		Stdout: &out,
		Stderr: &out,
	})
	assert.ErrorContains(t, err, "create transport: no credentials")
}

func TestDefaultTransportFactoryNeedsProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, _, err := DefaultTransportFactory(&config.Config{Model: "mystery-model"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "cannot infer provider"))
}

func TestListModels(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, ListModels(&out, "anthropic"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, len(unifiedllm.ListModels("anthropic")))
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "anthropic"), line)
	}

	assert.ErrorContains(t, ListModels(&out, "nonexistent"), "no models")
}
