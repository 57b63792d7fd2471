package agentloop

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// AgentContext identifies one agent run. It is built once per invocation and
// read-only afterwards; each concurrent run owns its own.
type AgentContext struct {
	UserID         string
	RequestID      string
	ConversationID string
	StartTime      time.Time
	UserContext    map[string]any

	abort <-chan struct{}
}

// ContextOption configures an AgentContext.
type ContextOption func(*AgentContext)

// WithRequestID overrides the generated request id.
func WithRequestID(id string) ContextOption {
	return func(c *AgentContext) {
		c.RequestID = id
	}
}

// WithConversationID ties the run to a conversation.
func WithConversationID(id string) ContextOption {
	return func(c *AgentContext) {
		c.ConversationID = id
	}
}

// WithUserContext attaches caller data visible to tools. The map is copied.
func WithUserContext(values map[string]any) ContextOption {
	return func(c *AgentContext) {
		c.UserContext = maps.Clone(values)
	}
}

// WithAbortSignal sets the cooperative abort signal. Closing the channel
// stops the run at the next step boundary.
func WithAbortSignal(abort <-chan struct{}) ContextOption {
	return func(c *AgentContext) {
		c.abort = abort
	}
}

// NewAgentContext creates a context for userID with a fresh request id.
func NewAgentContext(userID string, opts ...ContextOption) AgentContext {
	c := AgentContext{
		UserID:    userID,
		RequestID: uuid.New().String(),
		StartTime: time.Now(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Aborted reports whether the abort signal has fired. It never blocks.
func (c AgentContext) Aborted() bool {
	if c.abort == nil {
		return false
	}
	select {
	case <-c.abort:
		return true
	default:
		return false
	}
}
