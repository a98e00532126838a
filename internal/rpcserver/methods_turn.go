package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corerun/agentcore/internal/protocol"
)

// turnStartParams is turn/start's request body: which thread to drive, the
// TurnContext to run it under, and the user input to append before
// streaming begins. Grounded on the teacher's chat_message payload
// (session_id + content), generalized to the full TurnContext spec.md
// §4.3 threads through every turn.
type turnStartParams struct {
	ThreadID string                  `json:"thread_id"`
	Turn     protocol.TurnContext    `json:"turn_context"`
	Input    []protocol.ResponseItem `json:"input"`
}

// handleTurnStart runs the turn to completion before replying, the same
// way the teacher's chat_message handler blocks on Agent.Chat and replies
// once it returns: progress is visible to the client as it happens through
// Notify's turn/started, item/started, and item/completed notifications,
// and the RPC response itself is just the final ack (or a synchronous
// busy/not-idle rejection, which RunTurn reports without ever starting a
// turn).
func (s *Server) handleTurnStart(ctx context.Context, req protocol.RPCRequest) protocol.RPCResponse {
	var params turnStartParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidParams, err.Error())
	}

	sess, ok := s.threads.Get(protocol.ThreadID(params.ThreadID))
	if !ok {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, fmt.Sprintf("thread %s is not loaded", params.ThreadID))
	}

	if err := sess.RunTurn(ctx, params.Turn, params.Input); err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, err.Error())
	}
	return result(req.ID, map[string]string{"status": string(sess.Status())}, nil)
}

type compactStartParams struct {
	ThreadID string               `json:"thread_id"`
	Turn     protocol.TurnContext `json:"turn_context"`
}

// handleCompactStart runs a manual compaction outside of a turn. spec.md
// §4.4 requires a manual request against a thread that is not Idle to be
// rejected rather than queued; RunTurn's own busy check already enforces
// this for the embedded per-turn auto-compaction, so a manual request is
// rejected here the same way turn/start rejects a concurrent turn/start.
func (s *Server) handleCompactStart(ctx context.Context, req protocol.RPCRequest) protocol.RPCResponse {
	var params compactStartParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidParams, err.Error())
	}

	sess, ok := s.threads.Get(protocol.ThreadID(params.ThreadID))
	if !ok {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, fmt.Sprintf("thread %s is not loaded", params.ThreadID))
	}

	if err := sess.RunCompaction(ctx, params.Turn); err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, err.Error())
	}
	return result(req.ID, map[string]string{"status": string(sess.Status())}, nil)
}
