package agentloop

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/martinemde/toolloop/unifiedllm"
)

// AIResponse is the part of a model response the loop records per step.
// ToolCalls holds the calls extracted under the run's tool-calling mode.
type AIResponse struct {
	Content      string                  `json:"content"`
	Reasoning    string                  `json:"reasoning,omitempty"`
	ToolCalls    []unifiedllm.ToolCall   `json:"tool_calls,omitempty"`
	FinishReason unifiedllm.FinishReason `json:"finish_reason"`
	Usage        unifiedllm.Usage        `json:"usage"`
	Model        string                  `json:"model,omitempty"`
}

// StepToolExecution records one executed tool call.
type StepToolExecution struct {
	ToolName   string              `json:"tool_name"`
	ToolCallID string              `json:"tool_call_id"`
	Input      json.RawMessage     `json:"input"`
	Output     ToolExecutionResult `json:"output"`
	Duration   time.Duration       `json:"-"`
	DurationMS int64               `json:"duration_ms"`
}

// AgentStep is one model call plus the tool executions it triggered.
type AgentStep struct {
	StepNumber  int                 `json:"step_number"`
	StartedAt   time.Time           `json:"started_at"`
	Timestamp   time.Time           `json:"timestamp"`
	Response    AIResponse          `json:"response"`
	ToolResults []StepToolExecution `json:"tool_results,omitempty"`
	IsTerminal  bool                `json:"is_terminal"`
	StopReason  StopReason          `json:"stop_reason,omitempty"`
}

// UsageSummary totals token usage over a run.
type UsageSummary struct {
	TotalPromptTokens     int `json:"total_prompt_tokens"`
	TotalCompletionTokens int `json:"total_completion_tokens"`
	TotalTokens           int `json:"total_tokens"`
}

// ToolCallSummary is a flattened view of one StepToolExecution.
type ToolCallSummary struct {
	StepNumber int           `json:"step_number"`
	ToolName   string        `json:"tool_name"`
	ToolCallID string        `json:"tool_call_id"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

// AgentResult is the aggregated outcome of a run.
type AgentResult struct {
	Text              string               `json:"text"`
	Thinking          string               `json:"thinking,omitempty"`
	Steps             []AgentStep          `json:"steps"`
	Usage             UsageSummary         `json:"usage"`
	ToolCallSummaries []ToolCallSummary    `json:"tool_call_summaries"`
	Messages          []unifiedllm.Message `json:"messages"`
	Aborted           bool                 `json:"aborted"`
}

// FinalStep returns the last recorded step, or nil when the run produced none.
func (r *AgentResult) FinalStep() *AgentStep {
	if len(r.Steps) == 0 {
		return nil
	}
	return &r.Steps[len(r.Steps)-1]
}

// StopReason returns the terminal step's stop reason.
func (r *AgentResult) StopReason() StopReason {
	if s := r.FinalStep(); s != nil {
		return s.StopReason
	}
	return ""
}

func sumUsage(steps []AgentStep) UsageSummary {
	var u UsageSummary
	for _, s := range steps {
		u.TotalPromptTokens += s.Response.Usage.InputTokens
		u.TotalCompletionTokens += s.Response.Usage.OutputTokens
	}
	u.TotalTokens = u.TotalPromptTokens + u.TotalCompletionTokens
	return u
}

func buildResult(steps []AgentStep, messages []unifiedllm.Message, mode ToolCallingMode, aborted bool) *AgentResult {
	res := &AgentResult{
		Steps:             steps,
		Usage:             sumUsage(steps),
		ToolCallSummaries: []ToolCallSummary{},
		Messages:          messages,
		Aborted:           aborted,
	}
	if res.Steps == nil {
		res.Steps = []AgentStep{}
	}

	var thinking []string
	for _, s := range steps {
		if s.Response.Reasoning != "" {
			thinking = append(thinking, s.Response.Reasoning)
		}
		for _, te := range s.ToolResults {
			res.ToolCallSummaries = append(res.ToolCallSummaries, ToolCallSummary{
				StepNumber: s.StepNumber,
				ToolName:   te.ToolName,
				ToolCallID: te.ToolCallID,
				Success:    te.Output.Success,
				Error:      te.Output.Error,
				Duration:   te.Duration,
				DurationMS: te.DurationMS,
			})
		}
	}
	res.Thinking = strings.Join(thinking, "\n\n")

	if last := res.FinalStep(); last != nil {
		res.Text = last.Response.Content
		if mode == ToolCallingText {
			if answer, ok := extractFinalAnswer(last.Response.Content); ok {
				res.Text = answer
			}
		}
	}
	return res
}
