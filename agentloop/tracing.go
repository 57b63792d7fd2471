package agentloop

import (
	"context"

	"github.com/martinemde/toolloop/unifiedllm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/martinemde/toolloop/agentloop"

func (a *ToolLoopAgent) startRunSpan(ctx context.Context, actx AgentContext, streaming bool) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.request_id", actx.RequestID),
		attribute.String("agent.user_id", actx.UserID),
		attribute.String("agent.conversation_id", actx.ConversationID),
		attribute.String("agent.model", a.config.Model.ModelID),
		attribute.String("agent.tool_calling_mode", string(a.config.ToolCallingMode)),
		attribute.Bool("agent.streaming", streaming),
	))
}

func (a *ToolLoopAgent) startStepSpan(ctx context.Context, n int) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, "agent.step", trace.WithAttributes(
		attribute.Int("agent.step", n),
	))
}

func (a *ToolLoopAgent) startToolSpan(ctx context.Context, tc unifiedllm.ToolCall) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", tc.Name),
		attribute.String("tool.call_id", tc.ID),
	))
}

func setRunAttributes(span trace.Span, r *AgentResult) {
	span.SetAttributes(
		attribute.Int("agent.steps", len(r.Steps)),
		attribute.String("agent.stop_reason", string(r.StopReason())),
		attribute.Bool("agent.aborted", r.Aborted),
		attribute.Int("agent.usage.total_tokens", r.Usage.TotalTokens),
	)
}

func setStepAttributes(span trace.Span, s AgentStep) {
	span.SetAttributes(
		attribute.Int("agent.step.tool_calls", len(s.Response.ToolCalls)),
		attribute.String("agent.step.finish_reason", s.Response.FinishReason.Reason),
		attribute.String("agent.step.model", s.Response.Model),
		attribute.Bool("agent.step.terminal", s.IsTerminal),
	)
	if s.IsTerminal {
		span.SetAttributes(attribute.String("agent.stop_reason", string(s.StopReason)))
	}
}

func endToolSpan(span trace.Span, out ToolExecutionResult) {
	span.SetAttributes(attribute.Bool("tool.success", out.Success))
	if !out.Success {
		span.SetStatus(codes.Error, out.Error)
	}
	span.End()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
