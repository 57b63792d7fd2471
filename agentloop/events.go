package agentloop

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// EventType identifies the kind of stream event.
type EventType string

const (
	EventThought          EventType = "thought"
	EventTextChunk        EventType = "text-chunk"
	EventToolCallStart    EventType = "tool-call-start"
	EventToolCallComplete EventType = "tool-call-complete"
	EventToolCallError    EventType = "tool-call-error"
	EventStepComplete     EventType = "step-complete"
	EventDone             EventType = "done"
	EventError            EventType = "error"
)

// AgentStreamEvent is one occurrence in a streamed run. Which fields are
// set depends on Type.
type AgentStreamEvent struct {
	Type       EventType            `json:"type"`
	Timestamp  time.Time            `json:"timestamp"`
	StepNumber int                  `json:"step_number,omitempty"`
	Delta      string               `json:"delta,omitempty"`        // thought, text-chunk
	ToolName   string               `json:"tool_name,omitempty"`    // tool-call-*
	ToolCallID string               `json:"tool_call_id,omitempty"` // tool-call-*
	Input      json.RawMessage      `json:"input,omitempty"`        // tool-call-start
	Output     *ToolExecutionResult `json:"output,omitempty"`       // tool-call-complete, tool-call-error
	Step       *AgentStep           `json:"step,omitempty"`         // step-complete
	Result     *AgentResult         `json:"result,omitempty"`       // done
	Err        error                `json:"-"`                      // error
}

// emitFunc delivers an event. It returns an error when the event could not
// be delivered because the run's context ended.
type emitFunc func(AgentStreamEvent) error

func discardEvents(AgentStreamEvent) error { return nil }

// eventEmitter delivers events over an unbuffered channel. Emit blocks until
// the consumer receives the event or ctx ends.
type eventEmitter struct {
	ch     chan AgentStreamEvent
	closed bool
	mu     sync.Mutex
}

func newEventEmitter() *eventEmitter {
	return &eventEmitter{ch: make(chan AgentStreamEvent)}
}

func (e *eventEmitter) emit(ctx context.Context, event AgentStreamEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case e.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish delivers the final event and closes the channel. Unlike emit it
// does not give up when the run's context ends, so the consumer always sees
// how the run ended.
func (e *eventEmitter) finish(event AgentStreamEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.ch <- event
	e.close()
}

func (e *eventEmitter) events() <-chan AgentStreamEvent {
	return e.ch
}

// close closes the event channel. Safe to call multiple times.
func (e *eventEmitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

// resultFuture settles exactly once with a result or an error.
type resultFuture struct {
	done   chan struct{}
	once   sync.Once
	result *AgentResult
	err    error
}

func newResultFuture() *resultFuture {
	return &resultFuture{done: make(chan struct{})}
}

func (f *resultFuture) resolve(r *AgentResult) {
	f.once.Do(func() {
		f.result = r
		close(f.done)
	})
}

func (f *resultFuture) reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

func (f *resultFuture) wait(ctx context.Context) (*AgentResult, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
