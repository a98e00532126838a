// Package commandtool implements the execute_command tool as a
// toolorch.Handler, the concrete command-execution leg of spec.md §4.5's
// tool surface. Grounded on the teacher's NativeExecutor.ExecuteCommand in
// core/internal/tools/cmd_tools.go: same {command, background} argument
// shape and the same sed/awk-misuse guard redirecting to a file-edit tool,
// re-targeted from the teacher's direct host.ExecuteCommand call onto a
// sandbox.Manager.Run invocation under the Kind the orchestrator already
// selected.
package commandtool

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/corerun/agentcore/internal/sandbox"
	"github.com/corerun/agentcore/internal/toolorch"
)

// fileModifyPattern flags sed/awk/perl invocations that look like in-place
// file edits, which corrupt the diff/undo story a dedicated file-edit tool
// gives instead. Same pattern as the teacher's cmd_tools.go.
var fileModifyPattern = regexp.MustCompile(`(?i)^(sed|awk|perl)\s+.*[>|]\s*\S+\.`)

// Handler runs shell commands through a sandbox.Manager, picking the
// Executor for whatever Kind the Tool Orchestrator selected onto the
// Invocation before dispatch.
type Handler struct {
	sandbox *sandbox.Manager
}

// New builds a command-execution Handler backed by mgr.
func New(mgr *sandbox.Manager) *Handler {
	return &Handler{sandbox: mgr}
}

// Kind implements toolorch.Handler.
func (h *Handler) Kind() string { return "execute_command" }

// PrefersNoSandbox implements toolorch.Handler: command execution is the
// tool kind sandboxing exists for, so it never opts out.
func (h *Handler) PrefersNoSandbox() bool { return false }

// EscalateOnFailure implements toolorch.Handler: a sandbox denial here is
// eligible for the orchestrator's no-sandbox retry-with-approval path.
func (h *Handler) EscalateOnFailure() bool { return true }

type commandArgs struct {
	Command    string `json:"command"`
	Background bool   `json:"background"`
}

// Handle implements toolorch.Handler.
func (h *Handler) Handle(ctx context.Context, inv toolorch.Invocation) (toolorch.Output, *toolorch.CallError) {
	var args commandArgs
	if err := json.Unmarshal([]byte(inv.Args), &args); err != nil {
		return toolorch.Output{}, toolorch.RespondToModelError(fmt.Sprintf("invalid execute_command arguments: %v", err))
	}

	cmd := strings.TrimSpace(args.Command)
	if cmd == "" {
		return toolorch.Output{}, toolorch.RespondToModelError("execute_command: command is empty")
	}
	if fileModifyPattern.MatchString(cmd) ||
		(strings.HasPrefix(cmd, "sed") && (strings.Contains(cmd, ">") || strings.Contains(cmd, "-i"))) {
		return toolorch.Output{}, toolorch.RespondToModelError(
			"do not use sed/awk/perl to modify files in place; use the file-edit tool instead, which gives proper diff visualization and undo")
	}

	var writableRoots []string
	networkAllowed := false
	if ws := inv.Turn.SandboxPolicy.Workspace; ws != nil {
		writableRoots = ws.WritableRoots
		networkAllowed = ws.NetworkAllowed
	}

	req := sandbox.RunRequest{
		Command:        []string{"/bin/sh", "-c", cmd},
		Cwd:            inv.Turn.Cwd,
		WritableRoots:  writableRoots,
		NetworkAllowed: networkAllowed,
	}
	// Handle has no OutputSink of its own to stream through (Orchestrator.Call
	// accepts one but doesn't thread it down to the handler yet); the
	// aggregated RunResult.Output is what the model sees either way.
	res, err := h.sandbox.Run(ctx, inv.Sandbox, req, nil)
	if err != nil {
		return toolorch.Output{}, toolorch.FatalError(fmt.Sprintf("execute_command: %v", err))
	}
	if res.Denied {
		return toolorch.Output{}, toolorch.RetryableSandboxDeniedError(
			fmt.Sprintf("sandbox denied: %s", cmd), res)
	}

	if res.ExitCode != 0 {
		return toolorch.Output{
			Content: fmt.Sprintf("command exited with status %d\n%s", res.ExitCode, res.Output),
			IsError: true,
		}, nil
	}
	return toolorch.Output{Content: res.Output}, nil
}
