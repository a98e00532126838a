package sandbox

import (
	"context"
	"runtime"

	"github.com/corerun/agentcore/internal/protocol"
)

// Manager is the thread/process-wide entry point the tool orchestrator
// asks for a sandbox strategy and an executor to run it, per spec.md
// §4.5's "Select Sandbox" step. It is safe for concurrent use by multiple
// in-flight tool calls.
type Manager struct {
	none   Executor
	helper Executor // nil until an external sandbox-helper is configured
	goos   string
}

// NewManager builds a Manager for the current platform. helper may be nil
// — on platforms/configurations with no external sandbox-helper wired up,
// every selection other than KindNone degrades to KindNone (matching a
// dev environment with no platform sandbox installed).
func NewManager(helper Executor) *Manager {
	return &Manager{none: NoneExecutor{}, helper: helper, goos: runtime.GOOS}
}

// SelectInitial picks the initial sandbox strategy for a call.
func (m *Manager) SelectInitial(policy protocol.SandboxPolicy, toolPrefersNone bool) Kind {
	kind := Select(policy, m.goos, toolPrefersNone)
	if kind != KindNone && m.helper == nil {
		return KindNone
	}
	return kind
}

// Executor returns the Executor backing kind.
func (m *Manager) Executor(kind Kind) Executor {
	if kind == KindNone || m.helper == nil {
		return m.none
	}
	return m.helper
}

// Run executes req under kind, routing to the PTY executor for KindNone
// and the external helper otherwise.
func (m *Manager) Run(ctx context.Context, kind Kind, req RunRequest, out OutputSink) (RunResult, error) {
	req.Kind = kind
	return m.Executor(kind).Run(ctx, req, out)
}
