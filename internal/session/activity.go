package session

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/corerun/agentcore/internal/protocol"
	"github.com/corerun/agentcore/internal/toolorch"
)

// toolArgs pulls the handful of argument shapes deriveToolItem inspects.
// Tool handlers remain free to interpret the full JSON payload however they
// need; this is only used to decide what to show the user while a call is
// in flight, mirroring the teacher's deriveActivity in controller.go.
type toolArgs struct {
	Command string `json:"command"`
	Path    string `json:"path"`
}

// deriveToolItem builds the ThreadItem a just-dispatched tool call should
// be projected as, or nil if this category has no natural projection
// (CategoryRead/CategoryBrowser calls are dispatched and recorded but not
// surfaced as their own item — only the resulting assistant message
// matters to a subscriber).
func deriveToolItem(category toolorch.Category, name, argsJSON, cwd string) *protocol.ThreadItem {
	var args toolArgs
	_ = json.Unmarshal([]byte(argsJSON), &args)

	id := uuid.NewString()
	switch category {
	case toolorch.CategoryCommand:
		item := protocol.NewCommandExecutionItem(id, args.Command, cwd)
		return &item
	case toolorch.CategoryMCP:
		return &protocol.ThreadItem{
			ID:   id,
			Kind: protocol.ItemMcpToolCall,
			McpToolCall: &protocol.McpToolCallPayload{
				Tool:   name,
				Status: protocol.CommandRunning,
			},
		}
	case toolorch.CategoryEdit:
		if args.Path == "" {
			return nil
		}
		return &protocol.ThreadItem{
			ID:   id,
			Kind: protocol.ItemFileChange,
			FileChange: &protocol.FileChangePayload{
				Files: []protocol.FileChangeEntry{{Path: args.Path, Kind: protocol.FileModified}},
			},
		}
	default:
		return nil
	}
}

// completeToolItem fills in the terminal status/output of a ThreadItem
// built by deriveToolItem, given the orchestrator's outcome.
func completeToolItem(item *protocol.ThreadItem, output string, isError bool) {
	status := protocol.CommandCompleted
	if isError {
		status = protocol.CommandFailed
	}
	switch item.Kind {
	case protocol.ItemCommandExecution:
		item.CommandExecution.Status = status
		item.CommandExecution.OutputTail = tail(output, 4096)
	case protocol.ItemMcpToolCall:
		item.McpToolCall.Status = status
		item.McpToolCall.Result = tail(output, 4096)
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
