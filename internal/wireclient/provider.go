// Package wireclient is the model-facing wire client: it turns a turn's
// prompt into a lazy sequence of output items (text deltas, tool calls,
// usage) and exposes the provider's remote-compaction endpoint.
package wireclient

import (
	"context"

	"github.com/corerun/agentcore/internal/protocol"
)

// ChatRequest is one turn's prompt: the full projected transcript plus the
// model and output budget to run it with.
type ChatRequest struct {
	Model           string
	System          string
	Items           []protocol.ResponseItem
	MaxOutputTokens int
}

// ChunkType tags the variant carried by a StreamChunk.
type ChunkType string

const (
	ChunkTextDelta     ChunkType = "text_delta"
	ChunkReasoning     ChunkType = "reasoning_delta"
	ChunkToolCall      ChunkType = "tool_call"
	ChunkUsage         ChunkType = "usage"
	ChunkDone          ChunkType = "done"
	ChunkError         ChunkType = "error"
)

// StreamChunk is one element of the lazy output sequence a turn consumes.
type StreamChunk struct {
	Type     ChunkType
	Text     string
	ToolCall *protocol.FunctionCallItem
	Usage    *protocol.TokenUsageInfo
	Err      error
}

// CompactRequest asks the provider to summarize a transcript remotely
// instead of running a local synthetic summarization turn.
type CompactRequest struct {
	Model string
	Items []protocol.ResponseItem
}

// CompactResponse is the provider's remote-compaction result.
type CompactResponse struct {
	Summary string
	Usage   protocol.TokenUsageInfo
}

// Provider is the abstraction every concrete wire client implements. Turn
// driving code depends only on this interface, never on a specific
// provider's wire format.
type Provider interface {
	// ChatStream starts a turn and returns a channel of StreamChunks. The
	// channel is closed after a ChunkDone or ChunkError chunk.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)

	// Compact calls the provider's remote compaction endpoint. Callers
	// that want local (in-process) summarization instead should drive a
	// synthetic ChatStream turn rather than call this method.
	Compact(ctx context.Context, req CompactRequest) (*CompactResponse, error)
}
