package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/corerun/agentcore/internal/toolorch"
)

// Handler adapts a Hub into a toolorch.Handler, so McpToolCall dispatch
// flows through the same approval/sandbox pipeline as every other tool
// (spec.md §4.5 classifies it CategoryMCP and never routes it through a
// sandbox strategy — MCP servers manage their own process boundary).
type Handler struct {
	hub *Hub
}

// NewHandler wraps hub as a toolorch.Handler.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) Kind() string            { return "mcp" }
func (h *Handler) PrefersNoSandbox() bool  { return true }
func (h *Handler) EscalateOnFailure() bool { return false }

// Handle unmarshals inv.Args as a JSON object of tool arguments and
// dispatches to whichever connected MCP server owns inv.Name.
func (h *Handler) Handle(ctx context.Context, inv toolorch.Invocation) (toolorch.Output, *toolorch.CallError) {
	var args map[string]any
	if inv.Args != "" {
		if err := json.Unmarshal([]byte(inv.Args), &args); err != nil {
			return toolorch.Output{}, toolorch.RespondToModelError(fmt.Sprintf("invalid arguments for %s: %v", inv.Name, err))
		}
	}

	result, err := h.hub.CallTool(ctx, inv.Name, args)
	if err != nil {
		return toolorch.Output{}, toolorch.RespondToModelError(err.Error())
	}

	text := formatResult(result)
	return toolorch.Output{Content: text, IsError: result != nil && result.IsError}, nil
}

func formatResult(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	out := ""
	for _, item := range result.Content {
		if text, ok := item.(*mcp.TextContent); ok {
			out += text.Text + "\n"
		}
	}
	if out == "" {
		return "(empty result)"
	}
	return out
}
