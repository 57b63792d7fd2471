package agentloop

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/martinemde/toolloop/capability"
	"github.com/martinemde/toolloop/unifiedllm"
	"github.com/rs/zerolog"
)

// modelCaller performs one model call. Generate and Stream differ only in
// the caller they hand to run.
type modelCaller func(ctx context.Context, stepNumber int, messages []unifiedllm.Message, model unifiedllm.ModelContext, opts unifiedllm.CallOptions) (*unifiedllm.Response, error)

// runState is owned by a single run and never shared.
type runState struct {
	actx      AgentContext
	mode      ToolCallingMode
	options   unifiedllm.CallOptions
	history   []unifiedllm.Message
	steps     []AgentStep
	streaming bool
	call      modelCaller
	emit      emitFunc
	logger    zerolog.Logger
}

// Generate runs the loop to completion and returns the aggregated result.
// Transport and capability failures are returned as errors wrapped with the
// step number. An abort is not an error: the result has Aborted set.
func (a *ToolLoopAgent) Generate(ctx context.Context, opts GenerateOptions) (*AgentResult, error) {
	return a.run(ctx, opts, false, a.callBlocking, discardEvents)
}

func (a *ToolLoopAgent) callBlocking(ctx context.Context, _ int, messages []unifiedllm.Message, model unifiedllm.ModelContext, opts unifiedllm.CallOptions) (*unifiedllm.Response, error) {
	return a.transport.CallAI(ctx, messages, model, opts)
}

func (a *ToolLoopAgent) initialMessages(opts GenerateOptions) ([]unifiedllm.Message, error) {
	if opts.Prompt == "" && len(opts.Messages) == 0 {
		return nil, &unifiedllm.ConfigurationError{SDKError: unifiedllm.SDKError{
			Message: "nothing to send", Cause: ErrNoInput,
		}}
	}
	history := make([]unifiedllm.Message, 0, len(opts.Messages)+2)
	if a.config.Instructions != "" && (len(opts.Messages) == 0 || opts.Messages[0].Role != unifiedllm.RoleSystem) {
		history = append(history, unifiedllm.SystemMessage(a.config.Instructions))
	}
	for _, m := range opts.Messages {
		history = append(history, m.Clone())
	}
	if opts.Prompt != "" {
		history = append(history, unifiedllm.UserMessage(opts.Prompt))
	}
	return history, nil
}

func (a *ToolLoopAgent) run(ctx context.Context, opts GenerateOptions, streaming bool, call modelCaller, emit emitFunc) (_ *AgentResult, err error) {
	actx := opts.Context
	if actx.RequestID == "" {
		actx.RequestID = uuid.New().String()
	}
	if actx.StartTime.IsZero() {
		actx.StartTime = time.Now()
	}

	history, err := a.initialMessages(opts)
	if err != nil {
		return nil, err
	}

	st := &runState{
		actx:      actx,
		mode:      a.config.ToolCallingMode,
		options:   a.config.CallOptions,
		history:   history,
		streaming: streaming,
		call:      call,
		emit:      emit,
		logger:    a.logger.With().Str("request_id", actx.RequestID).Logger(),
	}
	if opts.CallOptions != nil {
		st.options = *opts.CallOptions
	}

	ctx, span := a.startRunSpan(ctx, actx, streaming)
	defer func() { endSpan(span, err) }()

	aborted := false
	for n := 1; ; n++ {
		if actx.Aborted() {
			aborted = true
			if len(st.steps) > 0 {
				final := &st.steps[len(st.steps)-1]
				final.IsTerminal = true
				final.StopReason = StopAborted
			}
			break
		}
		done, err := a.runStep(ctx, st, n)
		if err != nil {
			st.logger.Error().Err(err).Int("step", n).Msg("run failed")
			return nil, err
		}
		if done {
			break
		}
	}

	result := buildResult(st.steps, st.history, st.mode, aborted)
	st.logger.Info().
		Str("reason", string(result.StopReason())).
		Int("steps", len(result.Steps)).
		Int("total_tokens", result.Usage.TotalTokens).
		Bool("aborted", aborted).
		Msg("run finished")
	setRunAttributes(span, result)
	return result, nil
}

// runStep performs one iteration and reports whether it was terminal.
func (a *ToolLoopAgent) runStep(ctx context.Context, st *runState, n int) (_ bool, err error) {
	ctx, span := a.startStepSpan(ctx, n)
	defer func() { endSpan(span, err) }()

	model := a.config.Model
	tools := a.tools
	callMessages := st.history
	callOpts := st.options

	if a.config.PrepareStep != nil {
		override, err := a.config.PrepareStep(ctx, PrepareStepInput{
			StepNumber: n,
			Steps:      slices.Clone(st.steps),
			Messages:   cloneMessages(st.history),
			Model:      model,
		})
		if err != nil {
			return false, fmt.Errorf("step %d: prepare step: %w", n, err)
		}
		if override.Model != nil {
			model = *override.Model
		}
		if override.ActiveTools != nil {
			tools = a.tools.Subset(override.ActiveTools)
		}
		if override.Messages != nil {
			callMessages = override.Messages
		}
		if override.CallOptions != nil {
			callOpts = *override.CallOptions
		}
	}

	wireMessages, wireOpts := prepareWire(st.mode, callMessages, callOpts, tools)

	if err := a.checkCapabilities(st, model, wireMessages, wireOpts); err != nil {
		return false, fmt.Errorf("step %d: %w", n, err)
	}

	startedAt := time.Now()
	st.logger.Debug().Int("step", n).Str("model", model.ModelID).Int("tools", len(wireOpts.Tools)).Msg("step started")

	resp, err := st.call(ctx, n, wireMessages, model, wireOpts)
	if err != nil {
		return false, fmt.Errorf("step %d: %w", n, err)
	}

	calls := extractToolCalls(st.mode, resp)
	content := resp.Text()
	st.history = append(st.history, unifiedllm.AssistantMessage(content, calls...))

	var executions []StepToolExecution
	for _, tc := range calls {
		exec, err := a.executeToolCall(ctx, st, tools, n, tc)
		if err != nil {
			return false, fmt.Errorf("step %d: %w", n, err)
		}
		executions = append(executions, exec)

		body := exec.Output.Error
		if exec.Output.Success {
			body = a.config.Truncation.apply(exec.Output.Content)
		}
		st.history = append(st.history, unifiedllm.ToolResultMessage(tc.ID, body, !exec.Output.Success))
	}

	respModel := resp.Model
	if respModel == "" {
		respModel = model.ModelID
	}
	st.steps = append(st.steps, AgentStep{
		StepNumber: n,
		StartedAt:  startedAt,
		Timestamp:  time.Now(),
		Response: AIResponse{
			Content:      content,
			Reasoning:    resp.Reasoning(),
			ToolCalls:    calls,
			FinishReason: resp.FinishReason,
			Usage:        resp.Usage,
			Model:        respModel,
		},
		ToolResults: executions,
	})

	step := &st.steps[len(st.steps)-1]
	if verdict := EvaluateStopConditions(st.steps, a.config.StopWhen); verdict.ShouldStop {
		step.IsTerminal = true
		step.StopReason = verdict.Reason
	} else if len(calls) == 0 {
		step.IsTerminal = true
		step.StopReason = StopNoToolCalls
	}

	st.logger.Debug().
		Int("step", n).
		Int("tool_calls", len(calls)).
		Str("finish_reason", resp.FinishReason.Reason).
		Bool("terminal", step.IsTerminal).
		Msg("step complete")
	setStepAttributes(span, *step)

	snapshot := *step
	if err := st.emit(AgentStreamEvent{Type: EventStepComplete, StepNumber: n, Step: &snapshot}); err != nil {
		return false, fmt.Errorf("step %d: %w", n, err)
	}
	return snapshot.IsTerminal, nil
}

// prepareWire applies the tool-calling mode to what is sent to the model.
func prepareWire(mode ToolCallingMode, messages []unifiedllm.Message, opts unifiedllm.CallOptions, tools *ToolRegistry) ([]unifiedllm.Message, unifiedllm.CallOptions) {
	defs := tools.Definitions()
	switch mode {
	case ToolCallingText:
		opts.Tools = nil
		opts.ToolChoice = nil
		if len(defs) > 0 {
			messages = append([]unifiedllm.Message{unifiedllm.SystemMessage(textModeInstructions(defs))}, messages...)
		}
	case ToolCallingOff:
		opts.Tools = nil
		opts.ToolChoice = nil
	default:
		opts.Tools = nil
		if len(defs) > 0 {
			opts.Tools = defs
		} else {
			opts.ToolChoice = nil
		}
	}
	return messages, opts
}

// extractToolCalls reads calls from the response according to mode. Text
// mode prefers calls embedded in the text and falls back to the reasoning.
func extractToolCalls(mode ToolCallingMode, resp *unifiedllm.Response) []unifiedllm.ToolCall {
	var calls []unifiedllm.ToolCall
	switch mode {
	case ToolCallingOff:
		return nil
	case ToolCallingText:
		calls = parseTextToolCalls(resp.Text())
		if len(calls) == 0 {
			calls = parseTextToolCalls(resp.Reasoning())
		}
	default:
		calls = resp.ToolCallsFromResponse()
	}
	if len(calls) == 0 {
		return nil
	}
	return assignCallIDs(calls)
}

func (a *ToolLoopAgent) executeToolCall(ctx context.Context, st *runState, tools *ToolRegistry, n int, tc unifiedllm.ToolCall) (StepToolExecution, error) {
	if err := st.emit(AgentStreamEvent{
		Type: EventToolCallStart, StepNumber: n, ToolName: tc.Name, ToolCallID: tc.ID, Input: tc.Arguments,
	}); err != nil {
		return StepToolExecution{}, err
	}

	ctx, span := a.startToolSpan(ctx, tc)
	start := time.Now()
	var out ToolExecutionResult
	if t, ok := tools.Get(tc.Name); ok {
		out = ExecuteAgentTool(ctx, t, tc.Arguments, st.actx)
	} else {
		st.logger.Warn().Str("tool", tc.Name).Str("call_id", tc.ID).Msg("model requested unknown tool")
		out = toolFailure("Tool not found: " + tc.Name)
	}
	duration := time.Since(start)
	endToolSpan(span, out)

	st.logger.Debug().
		Str("tool", tc.Name).
		Str("call_id", tc.ID).
		Bool("success", out.Success).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("tool executed")

	eventType := EventToolCallComplete
	if !out.Success {
		eventType = EventToolCallError
	}
	output := out
	if err := st.emit(AgentStreamEvent{
		Type: eventType, StepNumber: n, ToolName: tc.Name, ToolCallID: tc.ID, Output: &output,
	}); err != nil {
		return StepToolExecution{}, err
	}

	return StepToolExecution{
		ToolName:   tc.Name,
		ToolCallID: tc.ID,
		Input:      tc.Arguments,
		Output:     out,
		Duration:   duration,
		DurationMS: duration.Milliseconds(),
	}, nil
}

// checkCapabilities validates the call against the target model's declared
// capabilities. Models with no known capabilities are not checked.
func (a *ToolLoopAgent) checkCapabilities(st *runState, model unifiedllm.ModelContext, messages []unifiedllm.Message, opts unifiedllm.CallOptions) error {
	if a.config.Capabilities == nil {
		return nil
	}
	caps, ok := a.config.Capabilities.Lookup(model.ModelID)
	if !ok {
		st.logger.Debug().Str("model", model.ModelID).Msg("no declared capabilities; skipping validation")
		return nil
	}
	estimate := 0
	if est, ok := a.transport.(unifiedllm.TokenEstimator); ok {
		estimate = est.EstimateInputTokens(model, messages)
	}
	req := capability.DeriveRequestRequirements(messages, capability.RequestOptions{
		CallOptions: opts,
		Stream:      st.streaming,
	}, estimate)
	return capability.ValidateRequestAgainstCapabilities(model.ModelID, req, caps)
}

func cloneMessages(msgs []unifiedllm.Message) []unifiedllm.Message {
	out := make([]unifiedllm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
