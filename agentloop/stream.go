package agentloop

import (
	"context"
	"fmt"

	"github.com/martinemde/toolloop/unifiedllm"
)

// StreamHandle is a run in progress. Events must be drained for the run to
// make progress. Result settles just before the final done or error event
// is delivered.
type StreamHandle struct {
	emitter *eventEmitter
	future  *resultFuture
}

// Events returns the run's event channel. It is closed after the final
// done or error event.
func (h *StreamHandle) Events() <-chan AgentStreamEvent {
	return h.emitter.events()
}

// Result waits for the run to finish. It returns the same result carried by
// the done event, or the error carried by the error event.
func (h *StreamHandle) Result(ctx context.Context) (*AgentResult, error) {
	return h.future.wait(ctx)
}

// Stream starts a run and returns immediately. The loop is the same one
// Generate drives; in addition it reports text and reasoning deltas, tool
// calls, and completed steps as they happen. Cancelling ctx fails the run
// with ctx's error; the error event is still delivered.
func (a *ToolLoopAgent) Stream(ctx context.Context, opts GenerateOptions) *StreamHandle {
	h := &StreamHandle{emitter: newEventEmitter(), future: newResultFuture()}
	emit := func(ev AgentStreamEvent) error {
		return h.emitter.emit(ctx, ev)
	}

	go func() {
		var (
			result *AgentResult
			err    error
		)
		defer func() {
			if r := recover(); r != nil {
				result, err = nil, fmt.Errorf("agent run panicked: %v", r)
			}
			if err != nil {
				h.future.reject(err)
				h.emitter.finish(AgentStreamEvent{Type: EventError, Err: err})
				return
			}
			h.future.resolve(result)
			h.emitter.finish(AgentStreamEvent{Type: EventDone, Result: result})
		}()
		result, err = a.run(ctx, opts, true, a.streamCaller(emit), emit)
	}()

	return h
}

// streamCaller returns a modelCaller that consumes the transport's event
// stream, forwarding deltas as they arrive.
func (a *ToolLoopAgent) streamCaller(emit emitFunc) modelCaller {
	return func(ctx context.Context, n int, messages []unifiedllm.Message, model unifiedllm.ModelContext, opts unifiedllm.CallOptions) (*unifiedllm.Response, error) {
		sr, err := a.transport.CallAIStream(ctx, messages, model, opts)
		if err != nil {
			return nil, err
		}
		if sr == nil || sr.Body == nil {
			return nil, &unifiedllm.StreamErrorType{SDKError: unifiedllm.SDKError{Message: "transport returned no stream body"}}
		}
		a.logger.Debug().Int("step", n).Int("estimated_input_tokens", sr.EstimatedInputTokens).Msg("stream opened")

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		acc := unifiedllm.NewStreamAccumulator()
		for ev := range unifiedllm.DecodeStream(ctx, sr.Body) {
			switch ev.Type {
			case unifiedllm.ReasoningDelta:
				if ev.ReasoningDelta != "" {
					if err := emit(AgentStreamEvent{Type: EventThought, StepNumber: n, Delta: ev.ReasoningDelta}); err != nil {
						return nil, err
					}
				}
			case unifiedllm.TextDelta:
				if ev.Delta != "" {
					if err := emit(AgentStreamEvent{Type: EventTextChunk, StepNumber: n, Delta: ev.Delta}); err != nil {
						return nil, err
					}
				}
			case unifiedllm.StreamError:
				if ev.Error != nil {
					return nil, ev.Error
				}
				return nil, &unifiedllm.StreamErrorType{SDKError: unifiedllm.SDKError{Message: ev.ErrorMessage}}
			}
			acc.Process(ev)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return acc.Response(), nil
	}
}
