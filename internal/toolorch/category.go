// Package toolorch is the Tool Orchestrator (spec.md §4.5): given a tool
// call from the model, it decides whether the call may run, picks a
// sandbox strategy, invokes the concrete tool, and translates sandbox or
// denial outcomes into either a follow-up tool-output item or a
// user-visible error.
package toolorch

import (
	"path/filepath"
	"strings"
)

// Category classifies what kind of action a tool performs, the way the
// teacher's safeguard/approval.go does — this feeds the approval-policy
// decision (trusted-command list, mutating vs. read-only, network-enabled).
type Category string

const (
	CategoryRead    Category = "read"
	CategoryEdit    Category = "edit"
	CategoryCommand Category = "command"
	CategoryBrowser Category = "browser"
	CategoryMCP     Category = "mcp"
)

// GetCategory classifies a tool by name.
func GetCategory(toolName string) Category {
	switch toolName {
	case "read_file", "view_file", "list_directory", "search_files", "grep_search":
		return CategoryRead
	case "write_to_file", "write_file", "apply_patch", "replace_in_file", "delete_file", "create_directory":
		return CategoryEdit
	case "execute_command", "run_command", "shell":
		return CategoryCommand
	case "browser_action", "navigate_browser", "click", "screenshot":
		return CategoryBrowser
	default:
		if strings.HasPrefix(toolName, "mcp_") {
			return CategoryMCP
		}
		return CategoryRead
	}
}

// SafeCommands is the trusted-command allow-list spec.md §4.5 refers to as
// "trusted-command list": read-only POSIX tools and the handful of
// developer CLIs a command call can run without triggering approval under
// ApprovalOnRequest.
var SafeCommands = map[string]bool{
	"ls": true, "cat": true, "head": true, "tail": true, "wc": true,
	"find": true, "grep": true, "awk": true, "sed": true, "sort": true,
	"pwd": true, "whoami": true, "date": true, "echo": true,
	"which": true, "type": true, "file": true, "stat": true,
	"go": true, "npm": true, "node": true, "python": true, "python3": true,
	"git": true, "diff": true, "tree": true,
}

// IsSafeCommand reports whether the first word of cmd names a program in
// SafeCommands.
func IsSafeCommand(cmd string) bool {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false
	}
	return SafeCommands[filepath.Base(parts[0])]
}
