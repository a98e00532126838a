// Package filetool implements the file-edit leg of spec.md §4.5's tool
// surface: read_file, write_file, and apply_patch. Grounded on the
// teacher's NativeExecutor.ReadFile/WriteFile/ReplaceFileContent in
// core/internal/tools/fs_tools.go — apply_patch here is the teacher's
// exact target/replacement exact-match-and-replace algorithm
// (ReplaceFileContent), carried under the tool name spec.md §4.1 names
// for the launcher's apply_patch argv[0] alias rather than inventing a
// unified-diff parser the spec doesn't describe.
//
// Approval is entirely the Tool Orchestrator's job (spec.md §4.5's
// category/policy pipeline already gates every CategoryEdit call); these
// handlers only enforce the one thing the orchestrator can't know about —
// that a write stays inside the turn's WorkspaceWrite roots — and perform
// the I/O.
package filetool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/corerun/agentcore/internal/protocol"
	"github.com/corerun/agentcore/internal/toolorch"
)

// resolvePath joins a relative path against the turn's working directory,
// matching the teacher's resolvePath helper.
func resolvePath(turn protocol.TurnContext, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(turn.Cwd, path)
}

// checkWritable enforces the turn's sandbox policy on a write target: a
// ReadOnly turn never permits writes, and a WorkspaceWrite turn permits
// them only under one of its WritableRoots. DangerFullAccess permits any
// path, matching spec.md §4's sandbox variant semantics.
func checkWritable(turn protocol.TurnContext, absPath string) error {
	switch turn.SandboxPolicy.Kind {
	case protocol.SandboxDangerFull:
		return nil
	case protocol.SandboxReadOnly:
		return fmt.Errorf("write denied: turn sandbox policy is read_only")
	case protocol.SandboxWorkspaceWrite:
		ws := turn.SandboxPolicy.Workspace
		if ws == nil {
			return fmt.Errorf("write denied: workspace_write policy has no writable roots configured")
		}
		for _, root := range ws.WritableRoots {
			rel, err := filepath.Rel(root, absPath)
			if err == nil && !strings.HasPrefix(rel, "..") {
				return nil
			}
		}
		return fmt.Errorf("write denied: %s is outside the turn's writable roots", absPath)
	default:
		return fmt.Errorf("write denied: unrecognized sandbox policy %q", turn.SandboxPolicy.Kind)
	}
}

// ReadHandler implements toolorch.Handler for read_file.
type ReadHandler struct{}

func (ReadHandler) Kind() string            { return "read_file" }
func (ReadHandler) PrefersNoSandbox() bool  { return true }
func (ReadHandler) EscalateOnFailure() bool { return false }

func (ReadHandler) Handle(ctx context.Context, inv toolorch.Invocation) (toolorch.Output, *toolorch.CallError) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(inv.Args), &args); err != nil {
		return toolorch.Output{}, toolorch.RespondToModelError(fmt.Sprintf("invalid read_file arguments: %v", err))
	}
	if args.Path == "" {
		return toolorch.Output{}, toolorch.RespondToModelError("read_file: path is required")
	}

	content, err := os.ReadFile(resolvePath(inv.Turn, args.Path))
	if err != nil {
		return toolorch.Output{}, toolorch.RespondToModelError(fmt.Sprintf("read file: %v", err))
	}
	return toolorch.Output{Content: string(content)}, nil
}

// WriteHandler implements toolorch.Handler for write_file.
type WriteHandler struct{}

func (WriteHandler) Kind() string            { return "write_file" }
func (WriteHandler) PrefersNoSandbox() bool  { return true }
func (WriteHandler) EscalateOnFailure() bool { return false }

func (WriteHandler) Handle(ctx context.Context, inv toolorch.Invocation) (toolorch.Output, *toolorch.CallError) {
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(inv.Args), &args); err != nil {
		return toolorch.Output{}, toolorch.RespondToModelError(fmt.Sprintf("invalid write_file arguments: %v", err))
	}
	if args.Path == "" {
		return toolorch.Output{}, toolorch.RespondToModelError("write_file: path is required")
	}

	absPath := resolvePath(inv.Turn, args.Path)
	if err := checkWritable(inv.Turn, absPath); err != nil {
		return toolorch.Output{}, toolorch.RespondToModelError(err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return toolorch.Output{}, toolorch.RespondToModelError(fmt.Sprintf("write file: %v", err))
	}
	if err := os.WriteFile(absPath, []byte(args.Content), 0o644); err != nil {
		return toolorch.Output{}, toolorch.RespondToModelError(fmt.Sprintf("write file: %v", err))
	}
	return toolorch.Output{Content: "file written successfully"}, nil
}

// PatchHandler implements toolorch.Handler for apply_patch: an exact,
// unique target-content -> replacement-content substitution, the teacher's
// ReplaceFileContent algorithm.
type PatchHandler struct{}

func (PatchHandler) Kind() string            { return "apply_patch" }
func (PatchHandler) PrefersNoSandbox() bool  { return true }
func (PatchHandler) EscalateOnFailure() bool { return false }

func (PatchHandler) Handle(ctx context.Context, inv toolorch.Invocation) (toolorch.Output, *toolorch.CallError) {
	var args struct {
		Path               string `json:"path"`
		TargetContent      string `json:"target_content"`
		ReplacementContent string `json:"replacement_content"`
	}
	if err := json.Unmarshal([]byte(inv.Args), &args); err != nil {
		return toolorch.Output{}, toolorch.RespondToModelError(fmt.Sprintf("invalid apply_patch arguments: %v", err))
	}
	if args.Path == "" {
		return toolorch.Output{}, toolorch.RespondToModelError("apply_patch: path is required")
	}
	if args.TargetContent == "" {
		return toolorch.Output{}, toolorch.RespondToModelError("apply_patch: target_content cannot be empty")
	}

	absPath := resolvePath(inv.Turn, args.Path)
	if err := checkWritable(inv.Turn, absPath); err != nil {
		return toolorch.Output{}, toolorch.RespondToModelError(err.Error())
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return toolorch.Output{}, toolorch.RespondToModelError(fmt.Sprintf("read file: %v", err))
	}
	content := string(raw)

	switch strings.Count(content, args.TargetContent) {
	case 0:
		return toolorch.Output{}, toolorch.RespondToModelError(
			"apply_patch: target_content not found in file; ensure an exact match including whitespace")
	case 1:
		// exactly one match, proceed
	default:
		return toolorch.Output{}, toolorch.RespondToModelError(
			"apply_patch: target_content matches multiple locations; provide more context to make it unique")
	}

	newContent := strings.Replace(content, args.TargetContent, args.ReplacementContent, 1)
	if err := os.WriteFile(absPath, []byte(newContent), 0o644); err != nil {
		return toolorch.Output{}, toolorch.RespondToModelError(fmt.Sprintf("write file: %v", err))
	}
	return toolorch.Output{Content: "file updated successfully"}, nil
}
