// Package agentloop drives a conversation between a language model and a
// set of callable tools.
//
// A ToolLoopAgent calls the model through a unifiedllm.Transport, extracts
// tool calls from the response, executes them sequentially, appends their
// results to the conversation, and repeats until a stop condition matches
// or the model stops asking for tools. Before every call the request is
// checked against the target model's declared capabilities.
//
// # Architecture
//
// The package is organized around these core concepts:
//
//   - ToolLoopAgent: holds configuration and the tool registry. It keeps no
//     per-run state, so one agent may serve concurrent runs.
//   - AgentTool: a typed tool built with NewTool. Input is validated against
//     a JSON Schema inferred from the Go input type, and an optional
//     Approval gate can block execution.
//   - StopCondition: a predicate over the step history, composable with
//     AnyOf and AllOf.
//   - ToolCallingMode: native tool calls, calls embedded as JSON in text, or
//     no tools at all.
//   - StreamHandle: the live event channel and the final result of a
//     streamed run.
//
// # Quick Start
//
//	calc := agentloop.MustTool("calculator", "Add two numbers.",
//	    func(ctx context.Context, in struct{ A, B float64 }, _ agentloop.AgentContext) (string, error) {
//	        return strconv.FormatFloat(in.A+in.B, 'f', -1, 64), nil
//	    })
//
//	agent, err := agentloop.NewToolLoopAgent(client,
//	    agentloop.WithModel(unifiedllm.ModelContext{ModelID: "claude-sonnet-4-5"}),
//	    agentloop.WithTools(calc),
//	    agentloop.WithStopWhen(agentloop.AnyOf(agentloop.StepCountIs(5), agentloop.NoToolCalls())),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := agent.Generate(ctx, agentloop.GenerateOptions{Prompt: "What is 25 + 17?"})
//
// Stream runs the same loop and reports progress as it happens:
//
//	h := agent.Stream(ctx, agentloop.GenerateOptions{Prompt: "What is 25 + 17?"})
//	for ev := range h.Events() {
//	    if ev.Type == agentloop.EventTextChunk {
//	        fmt.Print(ev.Delta)
//	    }
//	}
//	result, err := h.Result(ctx)
//
// # Cancellation
//
// Closing the channel given to WithAbortSignal stops a run at the next step
// boundary. In-flight model calls and tool executions always complete. The
// context.Context passed to Generate or Stream is handed to the transport
// and to tools unchanged.
package agentloop
