// Package mcp is the MCP connection manager (spec.md §2's "collaborator"
// column): it holds one live mark3labs/mcp-go client per configured server,
// watches the settings file for changes, and dispatches McpToolCall
// invocations to whichever connected server owns the named tool.
package mcp

// Settings is the root of the mcp_settings.json file this package watches.
type Settings struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig is one server's entry in Settings.
type ServerConfig struct {
	Command     string            `json:"command"`
	Args        []string          `json:"args"`
	Env         map[string]string `json:"env,omitempty"`
	Disabled    bool              `json:"disabled,omitempty"`
	AutoApprove []string          `json:"autoApprove,omitempty"`
}
