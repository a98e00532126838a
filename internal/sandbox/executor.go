package sandbox

import "context"

// NetworkPolicyDecision records why a run was blocked (or allowed) by the
// managed-network layer, surfaced back to the tool orchestrator so it can
// build a retry_reason for an escalation approval prompt.
type NetworkPolicyDecision struct {
	Blocked bool
	Host    string
	Reason  string
}

// RunRequest is one command handed to a sandbox strategy.
type RunRequest struct {
	Kind    Kind
	Command []string
	Cwd     string
	Env     []string
	// WritableRoots/NetworkAllowed mirror the WorkspaceWrite policy fields
	// so the external helper (or the PTY executor for KindNone) can apply
	// them without re-deriving them from a protocol.SandboxPolicy.
	WritableRoots  []string
	NetworkAllowed bool
}

// RunResult is what a sandbox strategy reports back.
type RunResult struct {
	ExitCode int
	Output   string
	// Denied is set when the sandbox refused to run the command at all
	// (e.g. a write outside WritableRoots, or a blocked network call under
	// Immediate network-approval mode) rather than running it and failing.
	Denied                bool
	NetworkPolicyDecision *NetworkPolicyDecision
}

// OutputSink receives live stdout/stderr bytes as a command runs, used to
// aggregate a CommandExecution ThreadItem while the call is in flight.
type OutputSink interface {
	Write(p []byte) (int, error)
}

// Executor runs one command under a chosen sandbox strategy. Different
// Kinds may be backed by different Executor implementations (PTY-backed
// for KindNone, helper-IPC-backed for everything else).
type Executor interface {
	Run(ctx context.Context, req RunRequest, out OutputSink) (RunResult, error)
}
