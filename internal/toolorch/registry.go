package toolorch

import (
	"context"
	"fmt"
	"sync"

	"github.com/corerun/agentcore/internal/protocol"
	"github.com/corerun/agentcore/internal/sandbox"
)

// Invocation bundles everything a ToolHandler needs to act on one call,
// decoupled from whether the originating ResponseItem was a FunctionCall or
// a CustomToolCall.
type Invocation struct {
	ThreadID protocol.ThreadID
	CallID   protocol.CallID
	Name     string
	Args     string
	Turn     protocol.TurnContext
	// Sandbox is the strategy the orchestrator selected for this call
	// before dispatching to the handler (spec.md §4.5's "Select Sandbox"
	// step); handlers that execute a command use it to pick the right
	// sandbox.Executor from their own sandbox.Manager reference.
	Sandbox sandbox.Kind
}

// Output is what a ToolHandler produces on success.
type Output struct {
	Content string
	IsError bool
}

// Handler is one tool's dispatch target — spec.md §9's "dynamic dispatch on
// tool handlers" design note, modeled as an interface rather than a switch
// over tool names so new tools register without touching the orchestrator.
type Handler interface {
	// Kind names the tool this handler serves (matched against
	// Invocation.Name).
	Kind() string
	// PrefersNoSandbox reports whether this handler's calls should always
	// run with sandbox Kind=None regardless of policy (e.g. a read-only
	// tool that never touches the filesystem outside the workspace).
	PrefersNoSandbox() bool
	// EscalateOnFailure reports whether a sandbox denial for this handler
	// is eligible for a no-sandbox retry.
	EscalateOnFailure() bool
	// Handle runs the call. Every failure, including an unexpected
	// internal one, is reported as a non-nil *CallError (ErrFatal for the
	// latter).
	Handle(ctx context.Context, inv Invocation) (Output, *CallError)
}

// Registry is the process-wide lookup from tool name to Handler, read-mostly
// after startup registration (every tool handler is registered once during
// initialization; lookups on the hot path never write).
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under h.Kind(), replacing any prior handler for the same
// name.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Kind()] = h
}

// Lookup returns the handler registered for name, if any.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// errNoHandler is returned by Orchestrator.Call when no handler is
// registered for the invocation's tool name.
func errNoHandler(name string) *CallError {
	return respondToModel(fmt.Sprintf("no tool handler registered for %q", name))
}
