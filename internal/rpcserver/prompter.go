package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corerun/agentcore/internal/protocol"
	"github.com/corerun/agentcore/internal/toolorch"
)

// approvalTimeout bounds how long the orchestrator will wait for a user's
// answer to a server->client approval prompt before giving up, mirroring
// the teacher's 5-minute AskUser timeout in host/stdio.go.
const approvalTimeout = 5 * time.Minute

// pendingPrompts correlates outbound server->client approval requests with
// the RPCResponse the client eventually sends back, the same
// id -> chan pattern as the teacher's StdioHost.pendingRequests.
type pendingPrompts struct {
	mu      sync.Mutex
	waiters map[string]chan protocol.RPCResponse
	nextID  uint64
}

func newPendingPrompts() *pendingPrompts {
	return &pendingPrompts{waiters: make(map[string]chan protocol.RPCResponse)}
}

func (p *pendingPrompts) register() (id string, ch chan protocol.RPCResponse) {
	id = fmt.Sprintf("approval-%d", atomic.AddUint64(&p.nextID, 1))
	ch = make(chan protocol.RPCResponse, 1)
	p.mu.Lock()
	p.waiters[id] = ch
	p.mu.Unlock()
	return id, ch
}

func (p *pendingPrompts) forget(id string) {
	p.mu.Lock()
	delete(p.waiters, id)
	p.mu.Unlock()
}

// resolve delivers a client response to the goroutine blocked on the
// matching prompt id, if any is still waiting.
func (p *pendingPrompts) resolve(resp protocol.RPCResponse) {
	var id string
	if err := json.Unmarshal(resp.ID, &id); err != nil {
		return
	}
	p.mu.Lock()
	ch, ok := p.waiters[id]
	p.mu.Unlock()
	if ok {
		ch <- resp
	}
}

// approvalRequestParams is the server->client request body for an approval
// prompt, spec.md §4.1's "Server→client requests: approval prompts for
// command execution and file changes."
type approvalRequestParams struct {
	ThreadID    string          `json:"thread_id"`
	CallID      string          `json:"call_id"`
	ToolName    string          `json:"tool_name"`
	Category    string          `json:"category"`
	Explanation string          `json:"explanation"`
	RetryReason string          `json:"retry_reason,omitempty"`
}

type approvalAnswer struct {
	Answer string `json:"answer"`
}

// RequestApproval implements toolorch.Prompter by sending a server->client
// JSON-RPC request (an id + method + params frame indistinguishable from a
// client-originated RPCRequest except for which side opened it) and
// blocking until handleFrame routes a matching response back through
// pendingPrompts, or until approvalTimeout/ctx expires.
func (s *Server) RequestApproval(ctx context.Context, req toolorch.Request) (toolorch.Answer, error) {
	id, ch := s.prompts.register()
	defer s.prompts.forget(id)

	params := approvalRequestParams{
		ThreadID:    string(req.ThreadID),
		CallID:      string(req.CallID),
		ToolName:    req.ToolName,
		Category:    string(req.Category),
		Explanation: req.Explanation,
		RetryReason: req.RetryReason,
	}
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return toolorch.AnswerAbort, err
	}
	idRaw, err := json.Marshal(id)
	if err != nil {
		return toolorch.AnswerAbort, err
	}

	rpcReq := protocol.RPCRequest{JSONRPC: "2.0", ID: idRaw, Method: "approval/request", Params: paramsRaw}
	if err := s.transport.Send(rpcReq); err != nil {
		return toolorch.AnswerAbort, err
	}

	timer := time.NewTimer(approvalTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return toolorch.AnswerAbort, fmt.Errorf("approval request rejected: %s", resp.Error.Message)
		}
		var answer approvalAnswer
		if err := json.Unmarshal(resp.Result, &answer); err != nil {
			return toolorch.AnswerAbort, fmt.Errorf("approval response: %w", err)
		}
		return toolorch.Answer(answer.Answer), nil
	case <-ctx.Done():
		return toolorch.AnswerAbort, ctx.Err()
	case <-timer.C:
		return toolorch.AnswerAbort, fmt.Errorf("approval request %s timed out", id)
	}
}
