package agentloop

import (
	"context"
	"errors"
	"fmt"

	"github.com/martinemde/toolloop/capability"
	"github.com/martinemde/toolloop/unifiedllm"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ToolCallingMode selects where tool calls are read from.
type ToolCallingMode string

const (
	// ToolCallingNative sends tools on the wire and reads the native
	// tool-call field only.
	ToolCallingNative ToolCallingMode = "native"
	// ToolCallingText describes tools in a system instruction and parses
	// calls from JSON embedded in text and reasoning.
	ToolCallingText ToolCallingMode = "text"
	// ToolCallingOff never sends tools and never extracts calls.
	ToolCallingOff ToolCallingMode = "off"
)

// ErrNoInput is returned when a run has neither a prompt nor messages.
var ErrNoInput = errors.New("prompt or messages required")

// PrepareStepInput is what a PrepareStepFunc sees before each model call.
type PrepareStepInput struct {
	StepNumber int
	Steps      []AgentStep
	Messages   []unifiedllm.Message
	Model      unifiedllm.ModelContext
}

// PrepareStepResult overrides settings for one step. Nil fields keep the
// run's defaults.
type PrepareStepResult struct {
	Model       *unifiedllm.ModelContext
	ActiveTools []string
	Messages    []unifiedllm.Message
	CallOptions *unifiedllm.CallOptions
}

// PrepareStepFunc is called before each model call.
type PrepareStepFunc func(ctx context.Context, in PrepareStepInput) (PrepareStepResult, error)

// Config holds agent settings.
type Config struct {
	Model           unifiedllm.ModelContext
	Instructions    string
	ToolCallingMode ToolCallingMode
	CallOptions     unifiedllm.CallOptions
	StopWhen        []StopCondition
	PrepareStep     PrepareStepFunc
	Capabilities    capability.Source
	Truncation      truncatePolicy
}

// DefaultConfig returns the default agent configuration.
func DefaultConfig() Config {
	return Config{
		ToolCallingMode: ToolCallingNative,
		Capabilities:    capability.BuiltinCatalog(),
		Truncation:      truncatePolicy{mode: TruncateHeadTail},
	}
}

// Option configures a ToolLoopAgent.
type Option func(*ToolLoopAgent)

// WithModel sets the model every step targets unless PrepareStep overrides it.
func WithModel(model unifiedllm.ModelContext) Option {
	return func(a *ToolLoopAgent) {
		a.config.Model = model
	}
}

// WithInstructions sets a system message placed at the start of each run.
func WithInstructions(text string) Option {
	return func(a *ToolLoopAgent) {
		a.config.Instructions = text
	}
}

// WithTools registers tools. Names must be unique.
func WithTools(tools ...AgentTool) Option {
	return func(a *ToolLoopAgent) {
		a.pendingTools = append(a.pendingTools, tools...)
	}
}

// WithStopWhen sets the stop conditions. Any matching condition ends the run.
func WithStopWhen(conds ...StopCondition) Option {
	return func(a *ToolLoopAgent) {
		a.config.StopWhen = conds
	}
}

// WithToolCallingMode selects native, text, or off.
func WithToolCallingMode(mode ToolCallingMode) Option {
	return func(a *ToolLoopAgent) {
		a.config.ToolCallingMode = mode
	}
}

// WithCallOptions sets the per-call options sent with every step.
func WithCallOptions(opts unifiedllm.CallOptions) Option {
	return func(a *ToolLoopAgent) {
		a.config.CallOptions = opts
	}
}

// WithPrepareStep installs a hook that may override settings per step.
func WithPrepareStep(fn PrepareStepFunc) Option {
	return func(a *ToolLoopAgent) {
		a.config.PrepareStep = fn
	}
}

// WithCapabilities sets where model capabilities are looked up. Passing nil
// disables capability validation.
func WithCapabilities(src capability.Source) Option {
	return func(a *ToolLoopAgent) {
		a.config.Capabilities = src
	}
}

// WithMaxToolOutputChars truncates tool output sent back to the model.
func WithMaxToolOutputChars(n int) Option {
	return func(a *ToolLoopAgent) {
		a.config.Truncation.maxChars = n
	}
}

// WithMaxToolOutputLines truncates tool output sent back to the model by line.
func WithMaxToolOutputLines(n int) Option {
	return func(a *ToolLoopAgent) {
		a.config.Truncation.maxLines = n
	}
}

// WithTruncationMode selects how over-long tool output is cut.
func WithTruncationMode(mode TruncationMode) Option {
	return func(a *ToolLoopAgent) {
		a.config.Truncation.mode = mode
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *ToolLoopAgent) {
		a.logger = logger
	}
}

// WithTracerProvider sets the tracer provider. The default is the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *ToolLoopAgent) {
		a.tracer = tp.Tracer(tracerName)
	}
}

// ToolLoopAgent drives a conversation between a model and a set of tools.
// An agent holds no per-run state and may serve concurrent runs.
type ToolLoopAgent struct {
	transport    unifiedllm.Transport
	config       Config
	tools        *ToolRegistry
	pendingTools []AgentTool
	logger       zerolog.Logger
	tracer       trace.Tracer
}

// NewToolLoopAgent creates an agent that calls models through transport.
func NewToolLoopAgent(transport unifiedllm.Transport, opts ...Option) (*ToolLoopAgent, error) {
	if transport == nil {
		return nil, &unifiedllm.ConfigurationError{SDKError: unifiedllm.SDKError{Message: "transport is required"}}
	}
	a := &ToolLoopAgent{
		transport: transport,
		config:    DefaultConfig(),
		logger:    zerolog.Nop(),
		tracer:    otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}

	switch a.config.ToolCallingMode {
	case ToolCallingNative, ToolCallingText, ToolCallingOff:
	case "":
		a.config.ToolCallingMode = ToolCallingNative
	default:
		return nil, &unifiedllm.ConfigurationError{SDKError: unifiedllm.SDKError{
			Message: fmt.Sprintf("unknown tool calling mode %q", a.config.ToolCallingMode),
		}}
	}

	tools, err := NewToolRegistry(a.pendingTools...)
	if err != nil {
		return nil, &unifiedllm.ConfigurationError{SDKError: unifiedllm.SDKError{Message: "invalid tools", Cause: err}}
	}
	a.tools = tools
	a.pendingTools = nil
	return a, nil
}

// Tools returns the agent's tool registry.
func (a *ToolLoopAgent) Tools() *ToolRegistry {
	return a.tools
}

// GenerateOptions is the input to a run.
type GenerateOptions struct {
	// Prompt is appended as a user message when non-empty.
	Prompt string
	// Context identifies the run. A zero Context gets a fresh request id.
	Context AgentContext
	// Messages seeds the conversation. The run works on a private copy.
	Messages []unifiedllm.Message
	// CallOptions replaces the agent's call options for this run.
	CallOptions *unifiedllm.CallOptions
}
