package sandbox

import (
	"testing"

	"github.com/corerun/agentcore/internal/protocol"
)

func TestSelectDangerFullAccessAlwaysNone(t *testing.T) {
	got := Select(protocol.DangerFullAccessSandbox(), "linux", false)
	if got != KindNone {
		t.Fatalf("expected KindNone for DangerFullAccess, got %v", got)
	}
}

func TestSelectToolPreferenceOverridesPlatform(t *testing.T) {
	got := Select(protocol.ReadOnlySandbox(), "linux", true)
	if got != KindNone {
		t.Fatalf("expected KindNone when tool prefers no sandbox, got %v", got)
	}
}

func TestSelectLinuxWorkspaceWriteWithManagedNetwork(t *testing.T) {
	policy := protocol.WorkspaceWriteSandbox([]string{"."}, true)
	got := Select(policy, "linux", false)
	if got != KindLinuxBwrap {
		t.Fatalf("expected KindLinuxBwrap for managed-network workspace write on linux, got %v", got)
	}
}

func TestSelectLinuxReadOnlyUsesSeccomp(t *testing.T) {
	got := Select(protocol.ReadOnlySandbox(), "linux", false)
	if got != KindLinuxSeccomp {
		t.Fatalf("expected KindLinuxSeccomp, got %v", got)
	}
}

func TestSelectDarwinUsesSeatbelt(t *testing.T) {
	got := Select(protocol.WorkspaceWriteSandbox([]string{"."}, false), "darwin", false)
	if got != KindSeatbelt {
		t.Fatalf("expected KindSeatbelt, got %v", got)
	}
}

func TestManagerDegradesToNoneWithoutHelper(t *testing.T) {
	m := NewManager(nil)
	m.goos = "linux"
	kind := m.SelectInitial(protocol.ReadOnlySandbox(), false)
	if kind != KindNone {
		t.Fatalf("expected degrade to KindNone without a configured helper, got %v", kind)
	}
}

func TestManagedNetworkDetection(t *testing.T) {
	if !ManagesNetwork(protocol.WorkspaceWriteSandbox(nil, true)) {
		t.Fatalf("expected managed network true")
	}
	if ManagesNetwork(protocol.ReadOnlySandbox()) {
		t.Fatalf("expected managed network false for ReadOnly")
	}
}
