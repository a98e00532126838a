// Package protocol holds the wire and in-memory data model shared by every
// other package in this module: thread/turn identifiers, transcript items,
// turn contexts, and the JSON-RPC envelope the app-server speaks.
package protocol

import "github.com/google/uuid"

// ThreadID identifies a long-lived conversation. It survives process
// restarts via the rollout log.
type ThreadID string

// TurnID identifies a single request/response cycle within a thread.
type TurnID string

// CallID identifies one tool invocation (function call, MCP call, local
// shell call) within a turn.
type CallID string

// NewThreadID mints a fresh thread identifier.
func NewThreadID() ThreadID {
	return ThreadID(uuid.NewString())
}

// NewTurnID mints a fresh turn identifier.
func NewTurnID() TurnID {
	return TurnID(uuid.NewString())
}

// NewCallID mints a fresh call identifier.
func NewCallID() CallID {
	return CallID(uuid.NewString())
}
