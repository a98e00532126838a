package commandtool

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/corerun/agentcore/internal/protocol"
	"github.com/corerun/agentcore/internal/sandbox"
	"github.com/corerun/agentcore/internal/toolorch"
)

func testInvocation(t *testing.T, args string) toolorch.Invocation {
	t.Helper()
	return toolorch.Invocation{
		ThreadID: "t1",
		CallID:   "c1",
		Name:     "execute_command",
		Args:     args,
		Turn: protocol.TurnContext{
			Cwd:           ".",
			SandboxPolicy: protocol.ReadOnlySandbox(),
		},
		Sandbox: sandbox.KindNone,
	}
}

func TestHandleRunsCommand(t *testing.T) {
	h := New(sandbox.NewManager(nil))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, callErr := h.Handle(ctx, testInvocation(t, `{"command":"echo hello-command"}`))
	if callErr != nil {
		t.Fatalf("Handle: %+v", callErr)
	}
	if out.IsError {
		t.Fatalf("IsError = true, want false; content: %s", out.Content)
	}
	if !strings.Contains(out.Content, "hello-command") {
		t.Fatalf("content = %q, want it to contain hello-command", out.Content)
	}
}

func TestHandleNonZeroExitIsErrorOutput(t *testing.T) {
	h := New(sandbox.NewManager(nil))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, callErr := h.Handle(ctx, testInvocation(t, `{"command":"exit 7"}`))
	if callErr != nil {
		t.Fatalf("Handle: %+v", callErr)
	}
	if !out.IsError {
		t.Fatalf("IsError = false, want true for a nonzero exit")
	}
	if !strings.Contains(out.Content, "7") {
		t.Fatalf("content = %q, want it to mention the exit status", out.Content)
	}
}

func TestHandleRejectsSedFileModification(t *testing.T) {
	h := New(sandbox.NewManager(nil))

	_, callErr := h.Handle(context.Background(), testInvocation(t, `{"command":"sed -i 's/a/b/' file.txt"}`))
	if callErr == nil {
		t.Fatalf("expected a CallError for a sed -i invocation")
	}
	if callErr.Kind != toolorch.ErrRespondToModel {
		t.Fatalf("Kind = %v, want ErrRespondToModel", callErr.Kind)
	}
}

func TestHandleInvalidArgsRespondsToModel(t *testing.T) {
	h := New(sandbox.NewManager(nil))

	_, callErr := h.Handle(context.Background(), testInvocation(t, `not json`))
	if callErr == nil || callErr.Kind != toolorch.ErrRespondToModel {
		t.Fatalf("expected ErrRespondToModel for malformed arguments, got %+v", callErr)
	}
}
