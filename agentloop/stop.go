package agentloop

import "time"

// StopReason names the category of condition that ended a run.
type StopReason string

const (
	StopMaxSteps     StopReason = "max_steps"
	StopNoToolCalls  StopReason = "no_tool_calls"
	StopFinishReason StopReason = "finish_reason"
	StopTimeout      StopReason = "timeout"
	StopTokenLimit   StopReason = "token_limit"
	StopCustom       StopReason = "custom"
	StopLoopDetected StopReason = "loop_detected"
	StopAborted      StopReason = "aborted"
)

// StopCondition is a pure predicate over the step history. Conditions never
// match an empty history.
type StopCondition struct {
	check func(steps []AgentStep) (StopReason, bool)
}

// Check evaluates the condition against steps.
func (c StopCondition) Check(steps []AgentStep) (StopReason, bool) {
	if c.check == nil || len(steps) == 0 {
		return "", false
	}
	return c.check(steps)
}

func last(steps []AgentStep) AgentStep { return steps[len(steps)-1] }

// StepCountIs matches once n steps have been recorded.
func StepCountIs(n int) StopCondition {
	return StopCondition{check: func(steps []AgentStep) (StopReason, bool) {
		return StopMaxSteps, len(steps) >= n
	}}
}

// NoToolCalls matches when the latest step produced no tool calls.
func NoToolCalls() StopCondition {
	return StopCondition{check: func(steps []AgentStep) (StopReason, bool) {
		return StopNoToolCalls, len(last(steps).Response.ToolCalls) == 0
	}}
}

// FinishReasonIs matches when the latest step's finish reason equals reason.
func FinishReasonIs(reason string) StopCondition {
	return StopCondition{check: func(steps []AgentStep) (StopReason, bool) {
		return StopFinishReason, last(steps).Response.FinishReason.Reason == reason
	}}
}

// ElapsedExceeds matches when the time from the first step's start to the
// latest step's completion is greater than d. It reads only recorded
// timestamps, so repeated evaluation is stable.
func ElapsedExceeds(d time.Duration) StopCondition {
	return StopCondition{check: func(steps []AgentStep) (StopReason, bool) {
		return StopTimeout, last(steps).Timestamp.Sub(steps[0].StartedAt) > d
	}}
}

// TokenUsageExceeds matches when total prompt plus completion tokens across
// all steps is greater than n.
func TokenUsageExceeds(n int) StopCondition {
	return StopCondition{check: func(steps []AgentStep) (StopReason, bool) {
		return StopTokenLimit, sumUsage(steps).TotalTokens > n
	}}
}

// Custom wraps a caller predicate.
func Custom(fn func(steps []AgentStep) bool) StopCondition {
	return StopCondition{check: func(steps []AgentStep) (StopReason, bool) {
		return StopCustom, fn(steps)
	}}
}

// AnyOf matches when any condition matches, reporting the first match.
func AnyOf(conds ...StopCondition) StopCondition {
	return StopCondition{check: func(steps []AgentStep) (StopReason, bool) {
		for _, c := range conds {
			if reason, ok := c.Check(steps); ok {
				return reason, true
			}
		}
		return "", false
	}}
}

// AllOf matches when every condition matches, reporting the first
// condition's reason. An empty AllOf never matches.
func AllOf(conds ...StopCondition) StopCondition {
	return StopCondition{check: func(steps []AgentStep) (StopReason, bool) {
		if len(conds) == 0 {
			return "", false
		}
		var first StopReason
		for i, c := range conds {
			reason, ok := c.Check(steps)
			if !ok {
				return "", false
			}
			if i == 0 {
				first = reason
			}
		}
		return first, true
	}}
}

// StopVerdict is the result of EvaluateStopConditions.
type StopVerdict struct {
	ShouldStop bool
	Reason     StopReason
}

// DefaultStopConditions stops at step 10 or when a step makes no tool calls.
func DefaultStopConditions() []StopCondition {
	return []StopCondition{AnyOf(StepCountIs(10), NoToolCalls())}
}

// EvaluateStopConditions checks conds in order against steps. With no
// conditions, DefaultStopConditions applies.
func EvaluateStopConditions(steps []AgentStep, conds []StopCondition) StopVerdict {
	if len(conds) == 0 {
		conds = DefaultStopConditions()
	}
	for _, c := range conds {
		if reason, ok := c.Check(steps); ok {
			return StopVerdict{ShouldStop: true, Reason: reason}
		}
	}
	return StopVerdict{}
}
