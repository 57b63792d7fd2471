package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go/packages/ssestream"
)

// EncodeStream serializes provider events as a text/event-stream body. The
// returned reader yields one frame per event; closing it early drains the
// remaining events so the producing provider never blocks.
func EncodeStream(events <-chan StreamEvent) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		defer func() {
			for range events {
			}
		}()
		for event := range events {
			if event.Error != nil && event.ErrorMessage == "" {
				event.ErrorMessage = event.Error.Error()
			}
			data, err := json.Marshal(event)
			if err != nil {
				_ = pw.CloseWithError(fmt.Errorf("encode stream event: %w", err))
				return
			}
			if _, err := fmt.Fprintf(pw, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return
			}
		}
		_ = pw.Close()
	}()
	return pr
}

// DecodeStream reads a text/event-stream body produced by a Transport and
// delivers the decoded events on the returned channel. The channel is
// unbuffered and closed when the body is exhausted, a decode error occurs
// (delivered as a StreamError event), or ctx is done. The body is closed
// before the channel closes.
func DecodeStream(ctx context.Context, body io.ReadCloser) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		res := &http.Response{
			Header: http.Header{"Content-Type": []string{"text/event-stream"}},
			Body:   body,
		}
		dec := ssestream.NewDecoder(res)
		defer dec.Close()

		send := func(event StreamEvent) bool {
			select {
			case ch <- event:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for dec.Next() {
			frame := dec.Event()
			if len(strings.TrimSpace(string(frame.Data))) == 0 {
				continue
			}
			var event StreamEvent
			if err := json.Unmarshal(frame.Data, &event); err != nil {
				send(StreamEvent{Type: StreamError, Error: &StreamErrorType{SDKError: SDKError{
					Message: "malformed stream frame", Cause: err,
				}}})
				return
			}
			if event.Type == "" {
				event.Type = StreamEventType(frame.Type)
			}
			if event.Type == StreamError {
				event.Error = &StreamErrorType{SDKError: SDKError{Message: event.ErrorMessage}}
			}
			if !send(event) {
				return
			}
		}
		if err := dec.Err(); err != nil {
			send(StreamEvent{Type: StreamError, Error: &StreamErrorType{SDKError: SDKError{
				Message: "stream read failed", Cause: err,
			}}})
		}
	}()
	return ch
}

// StreamFromResponse expands a complete response into the event sequence a
// streaming provider would have produced for it.
func StreamFromResponse(resp *Response) []StreamEvent {
	events := []StreamEvent{{Type: StreamStart}}
	if r := resp.Reasoning(); r != "" {
		events = append(events, StreamEvent{Type: ReasoningDelta, ReasoningDelta: r})
	}
	if text := resp.Text(); text != "" {
		events = append(events, StreamEvent{Type: TextDelta, Delta: text})
	}
	for _, tc := range resp.ToolCallsFromResponse() {
		call := tc
		events = append(events, StreamEvent{Type: ToolCallEnd, ToolCall: &call})
	}
	fr := resp.FinishReason
	usage := resp.Usage
	events = append(events, StreamEvent{
		Type:         StreamFinish,
		FinishReason: &fr,
		Usage:        &usage,
		Response:     resp,
	})
	return events
}
