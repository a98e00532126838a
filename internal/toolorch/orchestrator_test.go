package toolorch

import (
	"context"
	"testing"

	"github.com/corerun/agentcore/internal/protocol"
	"github.com/corerun/agentcore/internal/sandbox"
)

type fakeHandler struct {
	name             string
	prefersNoSandbox bool
	escalateOnFail   bool
	calls            int
	// denyFirstN is how many leading calls return a retryable sandbox
	// denial before succeeding.
	denyFirstN int
}

func (f *fakeHandler) Kind() string             { return f.name }
func (f *fakeHandler) PrefersNoSandbox() bool   { return f.prefersNoSandbox }
func (f *fakeHandler) EscalateOnFailure() bool  { return f.escalateOnFail }

func (f *fakeHandler) Handle(ctx context.Context, inv Invocation) (Output, *CallError) {
	f.calls++
	if f.calls <= f.denyFirstN {
		return Output{}, retryableDenied("denied by sandbox", sandbox.RunResult{Denied: true})
	}
	return Output{Content: "ok"}, nil
}

type fakePrompter struct {
	answer Answer
	err    error
	asked  int
}

func (f *fakePrompter) RequestApproval(ctx context.Context, req Request) (Answer, error) {
	f.asked++
	return f.answer, f.err
}

func baseTurn(policy protocol.ApprovalPolicy) protocol.TurnContext {
	return protocol.TurnContext{
		ApprovalPolicy:    policy,
		SandboxPolicy:     protocol.ReadOnlySandbox(),
		EscalateOnFailure: true,
	}
}

func TestOrchestratorSkipsApprovalForReadUnderNever(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{name: "read_file"}
	reg.Register(h)

	orch := NewOrchestrator(reg, sandbox.NewManager(nil), nil)
	out, callErr := orch.Call(context.Background(), Invocation{
		Name: "read_file",
		Args: `{}`,
		Turn: baseTurn(protocol.ApprovalNever),
	}, nil)
	if callErr != nil {
		t.Fatalf("unexpected error: %v", callErr)
	}
	if out.Content != "ok" {
		t.Fatalf("content = %q, want ok", out.Content)
	}
	if h.calls != 1 {
		t.Fatalf("handler called %d times, want 1", h.calls)
	}
}

func TestOrchestratorNoHandlerRegistered(t *testing.T) {
	orch := NewOrchestrator(NewRegistry(), sandbox.NewManager(nil), nil)
	_, callErr := orch.Call(context.Background(), Invocation{Name: "missing", Turn: baseTurn(protocol.ApprovalNever)}, nil)
	if callErr == nil || callErr.Kind != ErrRespondToModel {
		t.Fatalf("expected ErrRespondToModel, got %v", callErr)
	}
}

func TestOrchestratorUserRejectsApproval(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{name: "execute_command"}
	reg.Register(h)
	prompter := &fakePrompter{answer: AnswerDenied}

	orch := NewOrchestrator(reg, sandbox.NewManager(nil), prompter)
	_, callErr := orch.Call(context.Background(), Invocation{
		Name: "execute_command",
		Args: `{"command":"curl evil.example"}`,
		Turn: baseTurn(protocol.ApprovalUnlessTrusted),
	}, nil)
	if callErr == nil || callErr.Kind != ErrUserRejected {
		t.Fatalf("expected ErrUserRejected, got %v", callErr)
	}
	if h.calls != 0 {
		t.Fatalf("handler should not run after rejection, got %d calls", h.calls)
	}
	if prompter.asked != 1 {
		t.Fatalf("expected exactly one approval prompt, got %d", prompter.asked)
	}
}

func TestOrchestratorUserApprovesAndHandlerRuns(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{name: "execute_command"}
	reg.Register(h)
	prompter := &fakePrompter{answer: AnswerApproved}

	orch := NewOrchestrator(reg, sandbox.NewManager(nil), prompter)
	out, callErr := orch.Call(context.Background(), Invocation{
		Name: "execute_command",
		Args: `{"command":"curl evil.example"}`,
		Turn: baseTurn(protocol.ApprovalUnlessTrusted),
	}, nil)
	if callErr != nil {
		t.Fatalf("unexpected error: %v", callErr)
	}
	if out.Content != "ok" {
		t.Fatalf("content = %q, want ok", out.Content)
	}
}

func TestOrchestratorSessionApprovalSkipsSecondCall(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{name: "execute_command"}
	reg.Register(h)
	prompter := &fakePrompter{answer: AnswerApprovedForSession}

	orch := NewOrchestrator(reg, sandbox.NewManager(nil), prompter)
	inv := Invocation{
		ThreadID: "thread-1",
		Name:     "execute_command",
		Args:     `{"command":"curl evil.example"}`,
		Turn:     baseTurn(protocol.ApprovalUnlessTrusted),
	}
	if _, callErr := orch.Call(context.Background(), inv, nil); callErr != nil {
		t.Fatalf("first call: unexpected error: %v", callErr)
	}
	if _, callErr := orch.Call(context.Background(), inv, nil); callErr != nil {
		t.Fatalf("second call: unexpected error: %v", callErr)
	}
	if prompter.asked != 1 {
		t.Fatalf("expected only one prompt across both calls, got %d", prompter.asked)
	}
	if h.calls != 2 {
		t.Fatalf("expected handler to run both times, got %d", h.calls)
	}
}

func TestOrchestratorEscalatesOnSandboxDenialWhenApproved(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{name: "execute_command", escalateOnFail: true, denyFirstN: 1}
	reg.Register(h)
	prompter := &fakePrompter{answer: AnswerApproved}

	orch := NewOrchestrator(reg, sandbox.NewManager(nil), prompter)
	out, callErr := orch.Call(context.Background(), Invocation{
		Name: "execute_command",
		Args: `{"command":"ls"}`,
		Turn: baseTurn(protocol.ApprovalUnlessTrusted),
	}, nil)
	if callErr != nil {
		t.Fatalf("unexpected error: %v", callErr)
	}
	if out.Content != "ok" {
		t.Fatalf("content = %q, want ok after escalation retry", out.Content)
	}
	if h.calls != 2 {
		t.Fatalf("expected handler to run twice (denied, then retried), got %d", h.calls)
	}
}

func TestOrchestratorDeniedWithoutEscalationEligibilityRespondsToModel(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{name: "execute_command", escalateOnFail: false, denyFirstN: 1}
	reg.Register(h)

	orch := NewOrchestrator(reg, sandbox.NewManager(nil), nil)
	_, callErr := orch.Call(context.Background(), Invocation{
		Name: "execute_command",
		Args: `{"command":"ls"}`,
		Turn: baseTurn(protocol.ApprovalUnlessTrusted),
	}, nil)
	if callErr == nil || callErr.Kind != ErrRespondToModel {
		t.Fatalf("expected ErrRespondToModel, got %v", callErr)
	}
	if h.calls != 1 {
		t.Fatalf("expected no retry without escalation eligibility, got %d calls", h.calls)
	}
}

func TestOrchestratorUserDeclinesEscalationRetry(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{name: "execute_command", escalateOnFail: true, denyFirstN: 1}
	reg.Register(h)
	prompter := &fakePrompter{answer: AnswerDenied}

	orch := NewOrchestrator(reg, sandbox.NewManager(nil), prompter)
	_, callErr := orch.Call(context.Background(), Invocation{
		Name: "execute_command",
		Args: `{"command":"ls"}`,
		Turn: baseTurn(protocol.ApprovalUnlessTrusted),
	}, nil)
	if callErr == nil || callErr.Kind != ErrUserRejected {
		t.Fatalf("expected ErrUserRejected, got %v", callErr)
	}
	if h.calls != 1 {
		t.Fatalf("expected no retry after declining escalation, got %d calls", h.calls)
	}
}
