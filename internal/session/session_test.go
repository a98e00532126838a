package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/corerun/agentcore/internal/contextmgr"
	"github.com/corerun/agentcore/internal/protocol"
	"github.com/corerun/agentcore/internal/rollout"
	"github.com/corerun/agentcore/internal/sandbox"
	"github.com/corerun/agentcore/internal/toolorch"
	"github.com/corerun/agentcore/internal/wireclient"
)

type fakeProvider struct {
	mu     sync.Mutex
	rounds [][]wireclient.StreamChunk
	i      int
	block  bool
	compactResp *wireclient.CompactResponse
}

func (f *fakeProvider) ChatStream(ctx context.Context, req wireclient.ChatRequest) (<-chan wireclient.StreamChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.block {
		// Never produces a chunk; the caller must cancel ctx itself.
		ch := make(chan wireclient.StreamChunk)
		return ch, nil
	}
	if f.i >= len(f.rounds) {
		ch := make(chan wireclient.StreamChunk, 1)
		ch <- wireclient.StreamChunk{Type: wireclient.ChunkDone}
		close(ch)
		return ch, nil
	}
	chunks := f.rounds[f.i]
	f.i++
	ch := make(chan wireclient.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Compact(ctx context.Context, req wireclient.CompactRequest) (*wireclient.CompactResponse, error) {
	return f.compactResp, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *fakeNotifier) Notify(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *fakeNotifier) snapshot() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Event, len(n.events))
	copy(out, n.events)
	return out
}

type echoHandler struct{ kind string }

func (h echoHandler) Kind() string            { return h.kind }
func (h echoHandler) PrefersNoSandbox() bool  { return true }
func (h echoHandler) EscalateOnFailure() bool { return false }
func (h echoHandler) Handle(ctx context.Context, inv toolorch.Invocation) (toolorch.Output, *toolorch.CallError) {
	return toolorch.Output{Content: "ok"}, nil
}

func newTestSession(t *testing.T, provider *fakeProvider, notifier *fakeNotifier, registerEcho bool) *Session {
	t.Helper()
	dir := t.TempDir()
	threadID := protocol.NewThreadID()
	rec, err := rollout.Create(dir, threadID, dir, "test-model", time.Now())
	if err != nil {
		t.Fatalf("rollout.Create: %v", err)
	}
	t.Cleanup(func() { rec.Close() })

	registry := toolorch.NewRegistry()
	if registerEcho {
		registry.Register(echoHandler{kind: "execute_command"})
	}
	mgr := sandbox.NewManager(nil)
	orch := toolorch.NewOrchestrator(registry, mgr, nil)

	return New(Config{
		ThreadID:     threadID,
		Context:      contextmgr.NewManager(0, 0),
		Recorder:     rec,
		Orchestrator: orch,
		Provider:     provider,
		Notifier:     notifier,
	})
}

func turnContext() protocol.TurnContext {
	return protocol.TurnContext{
		Cwd:               "/tmp",
		ApprovalPolicy:    protocol.ApprovalOnRequest,
		SandboxPolicy:     protocol.ReadOnlySandbox(),
		Model:             "test-model",
		CollaborationMode: protocol.CollaborationInteractive,
		ParallelToolCalls: false,
		EscalateOnFailure: false,
	}
}

func TestRunTurnSimpleMessage(t *testing.T) {
	provider := &fakeProvider{rounds: [][]wireclient.StreamChunk{
		{{Type: wireclient.ChunkTextDelta, Text: "Hello"}, {Type: wireclient.ChunkDone}},
	}}
	notifier := &fakeNotifier{}
	s := newTestSession(t, provider, notifier, false)

	if err := s.RunTurn(context.Background(), turnContext(), []protocol.ResponseItem{protocol.NewUserMessage("hi")}); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if got := s.Status(); got != protocol.StatusIdle {
		t.Fatalf("status after turn = %s, want idle", got)
	}

	events := notifier.snapshot()
	var sawStarted, sawCompleted bool
	var lastMsg string
	var lastMsgTokens int
	for _, e := range events {
		switch e.Type {
		case EventTurnStarted:
			sawStarted = true
		case EventTurnCompleted:
			sawCompleted = true
			lastMsg = e.LastAssistantMessage
			lastMsgTokens = e.LastAssistantMessageTokens
		}
	}
	if !sawStarted || !sawCompleted {
		t.Fatalf("expected turn/started and turn/completed, got %+v", events)
	}
	if lastMsg != "Hello" {
		t.Fatalf("LastAssistantMessage = %q, want Hello", lastMsg)
	}
	if lastMsgTokens <= 0 {
		t.Fatalf("LastAssistantMessageTokens = %d, want > 0 for non-empty message", lastMsgTokens)
	}
}

func TestRunTurnWithToolCall(t *testing.T) {
	callID := protocol.NewCallID()
	provider := &fakeProvider{rounds: [][]wireclient.StreamChunk{
		{{Type: wireclient.ChunkToolCall, ToolCall: &protocol.FunctionCallItem{
			CallID: callID, Name: "execute_command", Arguments: `{"command":"ls"}`,
		}}, {Type: wireclient.ChunkDone}},
		{{Type: wireclient.ChunkTextDelta, Text: "done"}, {Type: wireclient.ChunkDone}},
	}}
	notifier := &fakeNotifier{}
	s := newTestSession(t, provider, notifier, true)

	if err := s.RunTurn(context.Background(), turnContext(), []protocol.ResponseItem{protocol.NewUserMessage("run ls")}); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	var sawCommandDone bool
	for _, e := range notifier.snapshot() {
		if e.Type == EventItemCompleted && e.Item != nil && e.Item.Kind == protocol.ItemCommandExecution {
			if e.Item.CommandExecution.Status == protocol.CommandCompleted {
				sawCommandDone = true
			}
		}
	}
	if !sawCommandDone {
		t.Fatalf("expected a completed CommandExecution item")
	}
}

func TestRunTurnRejectsWhenNotIdle(t *testing.T) {
	provider := &fakeProvider{}
	notifier := &fakeNotifier{}
	s := newTestSession(t, provider, notifier, false)
	s.mu.Lock()
	s.status = protocol.StatusRunning
	s.mu.Unlock()

	err := s.RunTurn(context.Background(), turnContext(), nil)
	if err == nil {
		t.Fatalf("expected an error when the session is not idle")
	}
}

func TestSessionInterruptCancelsTurn(t *testing.T) {
	provider := &fakeProvider{block: true}
	notifier := &fakeNotifier{}
	s := newTestSession(t, provider, notifier, false)

	done := make(chan error, 1)
	go func() {
		done <- s.RunTurn(context.Background(), turnContext(), []protocol.ResponseItem{protocol.NewUserMessage("hi")})
	}()

	// Give RunTurn a moment to reach Running and register its cancel func.
	deadline := time.After(2 * time.Second)
	for s.Status() != protocol.StatusRunning {
		select {
		case <-deadline:
			t.Fatalf("session never reached Running")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	s.Interrupt()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunTurn returned an error on interrupt: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("RunTurn did not return after Interrupt")
	}

	if got := s.Status(); got != protocol.StatusIdle {
		t.Fatalf("status after interrupted turn = %s, want idle", got)
	}
}

func TestRecorderPathIncludesThreadID(t *testing.T) {
	provider := &fakeProvider{}
	notifier := &fakeNotifier{}
	s := newTestSession(t, provider, notifier, false)
	if filepath.Ext(s.recorder.Path()) != ".jsonl" {
		t.Fatalf("rollout path = %q, want .jsonl suffix", s.recorder.Path())
	}
}
