// Package sandbox selects a sandbox strategy for a tool call and runs it
// either locally (PTY, unsandboxed) or by handing it to an external
// sandbox-helper collaborator over a multiplexed IPC pipe. Per spec.md §1,
// the core never hosts the sandbox itself — it requests execution under a
// named policy and consumes the result.
package sandbox

import "github.com/corerun/agentcore/internal/protocol"

// Kind is the concrete sandbox strategy chosen for one execution.
type Kind string

const (
	KindNone           Kind = "none"
	KindSeatbelt       Kind = "seatbelt"        // macOS
	KindLinuxSeccomp   Kind = "linux_seccomp"
	KindLinuxBwrap     Kind = "linux_bwrap"
	KindWindowsSandbox Kind = "windows_sandbox"
)

// Select is a pure function of (sandbox policy, platform, whether the tool
// prefers to run unsandboxed, whether managed network is required) that
// picks the initial sandbox strategy for a call. Escalation after a denial
// always re-runs with KindNone, handled by the caller (internal/toolorch),
// not here.
func Select(policy protocol.SandboxPolicy, goos string, toolPrefersNone bool) Kind {
	if policy.Kind == protocol.SandboxDangerFull || toolPrefersNone {
		return KindNone
	}
	switch goos {
	case "darwin":
		return KindSeatbelt
	case "windows":
		return KindWindowsSandbox
	case "linux":
		if policy.Kind == protocol.SandboxWorkspaceWrite && policy.Workspace != nil && policy.Workspace.NetworkAllowed {
			// A managed-network workspace needs the bwrap-based sandbox so
			// outbound connections can be routed through the MITM proxy;
			// seccomp alone only restricts syscalls, not network egress.
			return KindLinuxBwrap
		}
		return KindLinuxSeccomp
	default:
		return KindNone
	}
}

// ManagesNetwork reports whether policy requires network calls to be
// mediated (spec.md's "managed network" concept), which in turn requires
// the orchestrator to open a network-approval context before running.
func ManagesNetwork(policy protocol.SandboxPolicy) bool {
	return policy.Kind == protocol.SandboxWorkspaceWrite &&
		policy.Workspace != nil && policy.Workspace.NetworkAllowed
}
