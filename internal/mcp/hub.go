package mcp

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// watchInterval is how often Hub checks mcp_settings.json for changes.
const watchInterval = 3 * time.Second

// toolTimeout bounds a single CallTool round-trip.
const toolTimeout = 60 * time.Second

// connection is one live connection to an MCP server.
type connection struct {
	name   string
	client *client.Client
	tools  []mcp.Tool
}

// Hub is the process-wide MCP connection manager: single-writer refresh
// path (reconciling against the settings file on the timer Watch starts),
// read-mostly lookups for tool dispatch, matching the concurrency
// shape spec.md §5 calls for.
type Hub struct {
	store       *Store
	mu          sync.RWMutex
	connections map[string]*connection
	lastModTime time.Time
}

// NewHub builds a Hub backed by the settings file under configDir. Callers
// that want live reload should follow with Watch.
func NewHub(configDir string) *Hub {
	return &Hub{
		store:       NewStore(configDir),
		connections: make(map[string]*connection),
	}
}

// Watch starts a background reconciliation loop against the settings file,
// returning immediately. It stops when ctx is canceled.
func (h *Hub) Watch(ctx context.Context) {
	go func() {
		if info, err := os.Stat(h.store.Path()); err == nil {
			h.reload(ctx, info.ModTime())
		}

		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(h.store.Path())
				if err != nil {
					continue
				}
				if info.ModTime().After(h.lastModTime) {
					h.reload(ctx, info.ModTime())
				}
			}
		}
	}()
}

func (h *Hub) reload(ctx context.Context, modTime time.Time) {
	settings, err := h.store.Load()
	if err != nil {
		log.Printf("[mcp] failed to load settings: %v", err)
		return
	}
	h.lastModTime = modTime

	h.mu.Lock()
	var removed []*connection
	for name, conn := range h.connections {
		if _, ok := settings.Servers[name]; !ok {
			removed = append(removed, conn)
			delete(h.connections, name)
		}
	}
	var toConnect []string
	for name, cfg := range settings.Servers {
		if cfg.Disabled {
			if conn, ok := h.connections[name]; ok {
				removed = append(removed, conn)
				delete(h.connections, name)
			}
			continue
		}
		if _, ok := h.connections[name]; !ok {
			toConnect = append(toConnect, name)
		}
	}
	h.mu.Unlock()

	for _, conn := range removed {
		conn.client.Close()
	}
	for _, name := range toConnect {
		cfg := settings.Servers[name]
		go func(name string, cfg ServerConfig) {
			if err := h.Connect(ctx, name, cfg); err != nil {
				log.Printf("[mcp] failed to connect %s: %v", name, err)
			}
		}(name, cfg)
	}
}

// Connect establishes a connection to one MCP server over stdio and
// registers its tools.
func (h *Hub) Connect(ctx context.Context, name string, cfg ServerConfig) error {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, cfg.Args)
	if err != nil {
		return fmt.Errorf("create mcp client %s: %w", name, err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("start mcp client %s: %w", name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = "2024-11-05"
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentcore", Version: "1.0.0"}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("initialize mcp client %s: %w", name, err)
	}

	listCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	listResult, err := mcpClient.ListTools(listCtx, mcp.ListToolsRequest{})
	var tools []mcp.Tool
	if listResult != nil {
		tools = listResult.Tools
	}
	if err != nil {
		log.Printf("[mcp] %s: list_tools failed: %v", name, err)
	}

	h.mu.Lock()
	h.connections[name] = &connection{name: name, client: mcpClient, tools: tools}
	h.mu.Unlock()
	return nil
}

// Tools returns every tool known across all connected servers.
func (h *Hub) Tools() []mcp.Tool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var all []mcp.Tool
	for _, conn := range h.connections {
		all = append(all, conn.tools...)
	}
	return all
}

// ownerOf finds the connection serving toolName, if any.
func (h *Hub) ownerOf(toolName string) *connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.connections {
		for _, t := range conn.tools {
			if t.Name == toolName {
				return conn
			}
		}
	}
	return nil
}

// CallTool dispatches an McpToolCall to the server that owns toolName.
func (h *Hub) CallTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	conn := h.ownerOf(toolName)
	if conn == nil {
		return nil, fmt.Errorf("no MCP server owns tool %q", toolName)
	}

	callCtx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	return conn.client.CallTool(callCtx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: toolName, Arguments: args},
	})
}

// Close tears down every connection.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.connections {
		conn.client.Close()
	}
	h.connections = make(map[string]*connection)
	return nil
}
