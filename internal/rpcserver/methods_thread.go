package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/corerun/agentcore/internal/protocol"
	"github.com/corerun/agentcore/internal/threads"
)

type threadStartParams struct {
	Cwd   string `json:"cwd"`
	Model string `json:"model"`
}

type threadResult struct {
	ThreadID string                `json:"thread_id"`
	Status   protocol.ThreadStatus `json:"status"`
}

func (s *Server) handleThreadStart(ctx context.Context, req protocol.RPCRequest) protocol.RPCResponse {
	var params threadStartParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidParams, err.Error())
	}
	sess, err := s.threads.StartThread(ctx, params.Cwd, params.Model)
	if err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, err.Error())
	}
	return result(req.ID, threadResult{ThreadID: string(sess.ThreadID()), Status: sess.Status()}, nil)
}

type threadResumeParams struct {
	ThreadID string `json:"thread_id"`
}

func (s *Server) handleThreadResume(ctx context.Context, req protocol.RPCRequest) protocol.RPCResponse {
	var params threadResumeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidParams, err.Error())
	}
	sess, err := s.threads.ResumeThread(ctx, protocol.ThreadID(params.ThreadID))
	if err != nil {
		// Unknown thread, a corrupt rollout file, or a missing session_meta
		// header are all spec.md §4.1's "invalid request" class, never an
		// internal error: the client asked for a thread that isn't there.
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, err.Error())
	}
	return result(req.ID, threadResult{ThreadID: string(sess.ThreadID()), Status: sess.Status()}, nil)
}

type threadListParams struct {
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor"`
}

type threadListResult struct {
	Threads    []threads.ThreadSummary `json:"threads"`
	NextCursor *string                 `json:"next_cursor"`
}

func (s *Server) handleThreadList(req protocol.RPCRequest) protocol.RPCResponse {
	var params threadListParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return protocol.NewRPCError(req.ID, protocol.ErrInvalidParams, err.Error())
		}
	}

	page, next, err := s.threads.ListThreads(params.Limit, params.Cursor)
	if err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInternal, err.Error())
	}
	var nextCursor *string
	if next != "" {
		nextCursor = &next
	}
	return result(req.ID, threadListResult{Threads: page, NextCursor: nextCursor}, nil)
}

type threadReadParams struct {
	ThreadID string `json:"thread_id"`
}

type threadReadResult struct {
	ThreadID string                    `json:"thread_id"`
	Status   protocol.ThreadStatus     `json:"status"`
	Items    []protocol.ResponseItem   `json:"items"`
}

// handleThreadRead answers with the status and transcript of a thread that
// is already loaded. It does not load a thread from its rollout file: a
// thread that is not loaded gets -32600.
func (s *Server) handleThreadRead(req protocol.RPCRequest) protocol.RPCResponse {
	var params threadReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidParams, err.Error())
	}
	sess, ok := s.threads.Get(protocol.ThreadID(params.ThreadID))
	if !ok {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, fmt.Sprintf("thread %s is not loaded", params.ThreadID))
	}
	return result(req.ID, threadReadResult{
		ThreadID: string(sess.ThreadID()),
		Status:   sess.Status(),
		Items:    sess.ItemsSnapshot(),
	}, nil)
}

func (s *Server) handleThreadLoadedList(req protocol.RPCRequest) protocol.RPCResponse {
	loaded := s.threads.Loaded()
	ids := make([]string, len(loaded))
	for i, id := range loaded {
		ids[i] = string(id)
	}
	return result(req.ID, map[string][]string{"thread_ids": ids}, nil)
}

type threadUnsubscribeParams struct {
	ThreadID string `json:"thread_id"`
}

// handleThreadUnsubscribe interrupts any in-flight turn, unloads the
// thread, and emits thread/closed -- spec.md §4.1's unsubscribe teardown
// sequence. session.Session.Close (invoked by threads.Manager.Remove)
// already emits the thread/status/changed -> NotLoaded half; thread/closed
// is this layer's own notification, not something Session knows about.
func (s *Server) handleThreadUnsubscribe(req protocol.RPCRequest) protocol.RPCResponse {
	var params threadUnsubscribeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidParams, err.Error())
	}
	threadID := protocol.ThreadID(params.ThreadID)
	if err := s.threads.Remove(threadID); err != nil {
		if errors.Is(err, threads.ErrThreadNotFound) {
			return protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, err.Error())
		}
		return protocol.NewRPCError(req.ID, protocol.ErrInternal, err.Error())
	}

	s.sendNotification("thread/closed", map[string]string{"thread_id": string(threadID)})
	return result(req.ID, map[string]bool{"ok": true}, nil)
}
