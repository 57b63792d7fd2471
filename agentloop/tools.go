package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/martinemde/toolloop/unifiedllm"
)

// ToolExecutionResult is the normalized outcome of one tool execution.
// Content is empty when Success is false.
type ToolExecutionResult struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

func toolSuccess(content string) ToolExecutionResult {
	return ToolExecutionResult{Success: true, Content: content}
}

func toolFailure(msg string) ToolExecutionResult {
	return ToolExecutionResult{Success: false, Error: msg}
}

// ApprovalRequiredMessage is the failure text reported when an approval gate
// blocks a tool.
const ApprovalRequiredMessage = "Tool execution requires approval"

// ToolFunc is a tool body operating on its decoded input.
type ToolFunc[In any] func(ctx context.Context, input In, actx AgentContext) (string, error)

// Approval gates a tool. The zero value never requires approval.
type Approval[In any] struct {
	static  bool
	dynamic func(ctx context.Context, input In, actx AgentContext) (bool, error)
}

// RequireApproval always blocks execution.
func RequireApproval[In any]() Approval[In] {
	return Approval[In]{static: true}
}

// ApprovalWhen blocks execution whenever fn returns true.
func ApprovalWhen[In any](fn func(ctx context.Context, input In, actx AgentContext) (bool, error)) Approval[In] {
	return Approval[In]{dynamic: fn}
}

func (a Approval[In]) required(ctx context.Context, input In, actx AgentContext) (bool, error) {
	if a.dynamic != nil {
		return a.dynamic(ctx, input, actx)
	}
	return a.static, nil
}

// AgentTool is a tool the loop can dispatch by name. Implementations are
// created with NewTool.
type AgentTool interface {
	Name() string
	Description() string
	Definition() unifiedllm.ToolDefinition
	execute(ctx context.Context, raw json.RawMessage, actx AgentContext) ToolExecutionResult
}

// ToolOption configures a tool.
type ToolOption[In any] func(*tool[In])

// WithApproval gates the tool behind an approval check.
func WithApproval[In any](a Approval[In]) ToolOption[In] {
	return func(t *tool[In]) {
		t.approval = a
	}
}

// WithInputSchema replaces the schema inferred from In.
func WithInputSchema[In any](s Schema[In]) ToolOption[In] {
	return func(t *tool[In]) {
		t.schema = s
	}
}

type tool[In any] struct {
	name        string
	description string
	schema      Schema[In]
	approval    Approval[In]
	fn          ToolFunc[In]
}

// NewTool builds a typed tool. Its input schema is inferred from In unless
// WithInputSchema is given.
func NewTool[In any](name, description string, fn ToolFunc[In], opts ...ToolOption[In]) (AgentTool, error) {
	if name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %s: execute function is required", name)
	}
	t := &tool[In]{name: name, description: description, fn: fn}
	for _, opt := range opts {
		opt(t)
	}
	if t.schema == nil {
		s, err := SchemaFor[In]()
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", name, err)
		}
		t.schema = s
	}
	return t, nil
}

// MustTool is NewTool that panics on error, for package-level tool values.
func MustTool[In any](name, description string, fn ToolFunc[In], opts ...ToolOption[In]) AgentTool {
	t, err := NewTool(name, description, fn, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *tool[In]) Name() string        { return t.name }
func (t *tool[In]) Description() string { return t.description }

func (t *tool[In]) Definition() unifiedllm.ToolDefinition {
	return unifiedllm.ToolDefinition{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.schema.JSONSchema(),
	}
}

func (t *tool[In]) execute(ctx context.Context, raw json.RawMessage, actx AgentContext) ToolExecutionResult {
	input, err := t.schema.Validate(raw)
	if err != nil {
		return toolFailure(fmt.Sprintf("Invalid input for tool %s: %v", t.name, err))
	}
	need, err := t.approval.required(ctx, input, actx)
	if err != nil {
		return toolFailure(fmt.Sprintf("Approval check failed for tool %s: %v", t.name, err))
	}
	if need {
		return toolFailure(ApprovalRequiredMessage)
	}
	out, err := t.fn(ctx, input, actx)
	if err != nil {
		return toolFailure(err.Error())
	}
	return toolSuccess(out)
}

// ExecuteAgentTool validates rawInput, applies the approval gate, and runs
// the tool. It never returns an error: every failure, including a panic in
// the tool body, is reported as a failed ToolExecutionResult.
func ExecuteAgentTool(ctx context.Context, t AgentTool, rawInput json.RawMessage, actx AgentContext) (result ToolExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = toolFailure(fmt.Sprintf("tool %s panicked: %v", t.Name(), r))
		}
	}()
	return t.execute(ctx, rawInput, actx)
}

// ToolRegistry is a name-keyed set of tools.
type ToolRegistry struct {
	tools map[string]AgentTool
	mu    sync.RWMutex
}

// NewToolRegistry creates a registry holding tools. Duplicate names are an
// error.
func NewToolRegistry(tools ...AgentTool) (*ToolRegistry, error) {
	r := &ToolRegistry{tools: make(map[string]AgentTool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. A tool with the same name must not already exist.
func (r *ToolRegistry) Register(t AgentTool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("duplicate tool name %q", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (AgentTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in sorted order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns wire definitions sorted by name.
func (r *ToolRegistry) Definitions() []unifiedllm.ToolDefinition {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]unifiedllm.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Subset returns a registry holding only the named tools. Unknown names are
// ignored.
func (r *ToolRegistry) Subset(names []string) *ToolRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub := &ToolRegistry{tools: make(map[string]AgentTool, len(names))}
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			sub.tools[name] = t
		}
	}
	return sub
}
