package rpcserver

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/corerun/agentcore/internal/protocol"
	"github.com/corerun/agentcore/internal/sandbox"
	"github.com/corerun/agentcore/internal/threads"
	"github.com/corerun/agentcore/internal/toolorch"
	"github.com/corerun/agentcore/internal/wireclient"
)

type fakeProvider struct{}

func (fakeProvider) ChatStream(ctx context.Context, req wireclient.ChatRequest) (<-chan wireclient.StreamChunk, error) {
	ch := make(chan wireclient.StreamChunk, 2)
	ch <- wireclient.StreamChunk{Type: wireclient.ChunkTextDelta, Text: "hi there"}
	ch <- wireclient.StreamChunk{Type: wireclient.ChunkDone}
	close(ch)
	return ch, nil
}

func (fakeProvider) Compact(ctx context.Context, req wireclient.CompactRequest) (*wireclient.CompactResponse, error) {
	return &wireclient.CompactResponse{}, nil
}

// recordingTransport captures every frame sent to the client so tests can
// inspect responses and notifications without a real stdio pipe.
type recordingTransport struct {
	mu     sync.Mutex
	frames []json.RawMessage
}

func (t *recordingTransport) Send(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.frames = append(t.frames, raw)
	t.mu.Unlock()
	return nil
}

func (t *recordingTransport) snapshot() []json.RawMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]json.RawMessage, len(t.frames))
	copy(out, t.frames)
	return out
}

func (t *recordingTransport) notificationsOf(method string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, f := range t.snapshot() {
		var probe struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(f, &probe); err != nil || probe.Method != method {
			continue
		}
		var params map[string]interface{}
		json.Unmarshal(probe.Params, &params)
		out = append(out, params)
	}
	return out
}

func newTestServer(t *testing.T) (*Server, *recordingTransport) {
	t.Helper()
	registry := toolorch.NewRegistry()
	mgr := sandbox.NewManager(nil)
	orch := toolorch.NewOrchestrator(registry, mgr, nil)

	transport := &recordingTransport{}
	srv := New(nil, transport, nil)

	mgrThreads := threads.NewManager(threads.Deps{
		RolloutRoot:  t.TempDir(),
		Orchestrator: orch,
		Provider:     fakeProvider{},
		Notifier:     srv,
	})
	srv.threads = mgrThreads
	return srv, transport
}

func rawID(id int) json.RawMessage {
	data, _ := json.Marshal(id)
	return data
}

func TestInitializeMustPrecedeOtherRequests(t *testing.T) {
	srv, transport := newTestServer(t)

	srv.handleRequest(context.Background(), protocol.RPCRequest{JSONRPC: "2.0", ID: rawID(1), Method: "thread/start", Params: json.RawMessage(`{"cwd":"/work","model":"m"}`)})

	frames := transport.snapshot()
	if len(frames) != 1 {
		t.Fatalf("expected exactly one response, got %d", len(frames))
	}
	var resp protocol.RPCResponse
	if err := json.Unmarshal(frames[0], &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != protocol.ErrInvalidRequest {
		t.Fatalf("expected -32600 before initialize, got %+v", resp.Error)
	}
}

func TestThreadStartAndTurnStartProducesNotifications(t *testing.T) {
	srv, transport := newTestServer(t)
	ctx := context.Background()

	srv.handleRequest(ctx, protocol.RPCRequest{JSONRPC: "2.0", ID: rawID(1), Method: "initialize"})

	srv.handleRequest(ctx, protocol.RPCRequest{JSONRPC: "2.0", ID: rawID(2), Method: "thread/start", Params: json.RawMessage(`{"cwd":"/work","model":"test-model"}`)})

	var startResp protocol.RPCResponse
	for _, f := range transport.snapshot() {
		var probe struct{ ID json.RawMessage }
		json.Unmarshal(f, &probe)
		if string(probe.ID) == string(rawID(2)) {
			json.Unmarshal(f, &startResp)
		}
	}
	if startResp.Error != nil {
		t.Fatalf("thread/start failed: %+v", startResp.Error)
	}
	var started threadResult
	if err := json.Unmarshal(startResp.Result, &started); err != nil {
		t.Fatalf("unmarshal thread/start result: %v", err)
	}

	turnParams, _ := json.Marshal(turnStartParams{
		ThreadID: started.ThreadID,
		Turn: protocol.TurnContext{
			Model: "test-model", ApprovalPolicy: protocol.ApprovalNever, SandboxPolicy: protocol.ReadOnlySandbox(),
		},
		Input: []protocol.ResponseItem{protocol.NewUserMessage("hello")},
	})
	srv.handleRequest(ctx, protocol.RPCRequest{JSONRPC: "2.0", ID: rawID(3), Method: "turn/start", Params: turnParams})

	completed := transport.notificationsOf("turn/completed")
	if len(completed) != 1 {
		t.Fatalf("expected one turn/completed notification, got %d", len(completed))
	}
	if completed[0]["last_assistant_message"] != "hi there" {
		t.Fatalf("last_assistant_message = %v, want %q", completed[0]["last_assistant_message"], "hi there")
	}
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	srv, transport := newTestServer(t)
	srv.handleRequest(context.Background(), protocol.RPCRequest{JSONRPC: "2.0", ID: rawID(1), Method: "initialize"})
	srv.handleRequest(context.Background(), protocol.RPCRequest{JSONRPC: "2.0", ID: rawID(2), Method: "bogus/method"})

	frames := transport.snapshot()
	var resp protocol.RPCResponse
	json.Unmarshal(frames[len(frames)-1], &resp)
	if resp.Error == nil || resp.Error.Code != protocol.ErrMethodNotFound {
		t.Fatalf("expected -32601, got %+v", resp.Error)
	}
}

func TestRealtimeDisabledReturnsInvalidRequest(t *testing.T) {
	srv, transport := newTestServer(t)
	srv.handleRequest(context.Background(), protocol.RPCRequest{JSONRPC: "2.0", ID: rawID(1), Method: "initialize"})
	srv.handleRequest(context.Background(), protocol.RPCRequest{JSONRPC: "2.0", ID: rawID(2), Method: "thread/realtime/start", Params: json.RawMessage(`{"thread_id":"x"}`)})

	frames := transport.snapshot()
	var resp protocol.RPCResponse
	json.Unmarshal(frames[len(frames)-1], &resp)
	if resp.Error == nil || resp.Error.Code != protocol.ErrInvalidRequest {
		t.Fatalf("expected realtime-disabled -32600, got %+v", resp.Error)
	}
}

func TestThreadUnsubscribeEmitsClosed(t *testing.T) {
	srv, transport := newTestServer(t)
	ctx := context.Background()
	srv.handleRequest(ctx, protocol.RPCRequest{JSONRPC: "2.0", ID: rawID(1), Method: "initialize"})
	srv.handleRequest(ctx, protocol.RPCRequest{JSONRPC: "2.0", ID: rawID(2), Method: "thread/start", Params: json.RawMessage(`{"cwd":"/work","model":"test-model"}`)})

	var started threadResult
	for _, f := range transport.snapshot() {
		var probe struct{ ID json.RawMessage }
		json.Unmarshal(f, &probe)
		if string(probe.ID) == string(rawID(2)) {
			var resp protocol.RPCResponse
			json.Unmarshal(f, &resp)
			json.Unmarshal(resp.Result, &started)
		}
	}

	unsubParams, _ := json.Marshal(threadUnsubscribeParams{ThreadID: started.ThreadID})
	srv.handleRequest(ctx, protocol.RPCRequest{JSONRPC: "2.0", ID: rawID(3), Method: "thread/unsubscribe", Params: unsubParams})

	closed := transport.notificationsOf("thread/closed")
	if len(closed) != 1 {
		t.Fatalf("expected one thread/closed notification, got %d", len(closed))
	}
}

func TestApprovalRequestRoundTrips(t *testing.T) {
	srv, transport := newTestServer(t)

	type answerResult struct {
		answer toolorch.Answer
		err    error
	}
	resCh := make(chan answerResult, 1)
	go func() {
		a, err := srv.RequestApproval(context.Background(), toolorch.Request{
			ThreadID: "t1", CallID: "c1", ToolName: "execute_command", Category: toolorch.CategoryCommand, Explanation: "run ls",
		})
		resCh <- answerResult{a, err}
	}()

	var reqFrame json.RawMessage
	deadline := time.After(2 * time.Second)
	for reqFrame == nil {
		for _, f := range transport.snapshot() {
			var probe struct{ Method string }
			json.Unmarshal(f, &probe)
			if probe.Method == "approval/request" {
				reqFrame = f
				break
			}
		}
		select {
		case <-deadline:
			t.Fatalf("approval/request never arrived")
		default:
			if reqFrame == nil {
				time.Sleep(time.Millisecond)
			}
		}
	}

	var req protocol.RPCRequest
	if err := json.Unmarshal(reqFrame, &req); err != nil {
		t.Fatalf("unmarshal approval request: %v", err)
	}

	answerRaw, _ := json.Marshal(approvalAnswer{Answer: string(toolorch.AnswerApproved)})
	resp := protocol.RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: answerRaw}
	respFrame, _ := json.Marshal(resp)
	srv.handleFrame(context.Background(), respFrame)

	select {
	case got := <-resCh:
		if got.err != nil {
			t.Fatalf("RequestApproval: %v", got.err)
		}
		if got.answer != toolorch.AnswerApproved {
			t.Fatalf("answer = %v, want approved", got.answer)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("RequestApproval did not return")
	}
}
