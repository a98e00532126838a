package mcp

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestHubToolsAndOwnerOf(t *testing.T) {
	h := NewHub(t.TempDir())
	h.connections["fs"] = &connection{name: "fs", tools: []mcp.Tool{{Name: "read_file"}, {Name: "write_file"}}}
	h.connections["web"] = &connection{name: "web", tools: []mcp.Tool{{Name: "fetch_url"}}}

	tools := h.Tools()
	if len(tools) != 3 {
		t.Fatalf("Tools() returned %d entries, want 3", len(tools))
	}

	owner := h.ownerOf("fetch_url")
	if owner == nil || owner.name != "web" {
		t.Fatalf("ownerOf(fetch_url) = %v, want web", owner)
	}

	if h.ownerOf("missing_tool") != nil {
		t.Fatalf("expected no owner for an unregistered tool")
	}
}

func TestFormatResultEmpty(t *testing.T) {
	if got := formatResult(nil); got != "" {
		t.Fatalf("formatResult(nil) = %q, want empty", got)
	}
	empty := &mcp.CallToolResult{}
	if got := formatResult(empty); got != "(empty result)" {
		t.Fatalf("formatResult(empty) = %q, want (empty result)", got)
	}
}

func TestFormatResultConcatenatesTextContent(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "line one"},
			&mcp.TextContent{Text: "line two"},
		},
	}
	got := formatResult(result)
	want := "line one\nline two\n"
	if got != want {
		t.Fatalf("formatResult = %q, want %q", got, want)
	}
}
