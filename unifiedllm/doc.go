// Package unifiedllm is the model transport layer consumed by the tool loop.
//
// # Transport
//
// Transport is the two-call contract the loop depends on: CallAI for a
// blocking completion and CallAIStream for a server-sent-event body whose
// frames decode into StreamEvents via DecodeStream. Client implements
// Transport by routing each request to a registered ProviderAdapter.
//
//	adapter, _ := unifiedllm.NewGollmAdapter("openai", os.Getenv("OPENAI_API_KEY"))
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider("openai", adapter),
//	    unifiedllm.WithMiddleware(unifiedllm.RetryMiddleware(unifiedllm.DefaultRetryPolicy())),
//	)
//
//	resp, _ := client.CallAI(ctx,
//	    []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	    unifiedllm.ModelContext{ModelID: "gpt-5.2"},
//	    unifiedllm.CallOptions{},
//	)
//	fmt.Println(resp.Text())
//
// # Streaming
//
// Adapters produce a channel of StreamEvents. Client.CallAIStream encodes
// that channel as text/event-stream so every Transport exposes one wire shape;
// DecodeStream and StreamAccumulator turn it back into a Response.
//
// # Errors
//
// Provider failures are mapped onto an SDKError hierarchy. IsRetryable
// classifies them and Retry / RetryMiddleware apply exponential backoff.
//
// # Model Catalog
//
// Models lists known models with their context window, output limit, and
// feature flags. The capability package builds validation profiles from it.
package unifiedllm
