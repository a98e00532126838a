package toolorch

import (
	"testing"

	"github.com/corerun/agentcore/internal/protocol"
)

func TestDecideApprovalNeverForbidsUntrustedCommand(t *testing.T) {
	got := decideApproval(protocol.ApprovalNever, CategoryCommand, "rm -rf /tmp/x", false)
	if got.kind != decisionForbidden {
		t.Fatalf("kind = %v, want forbidden", got.kind)
	}
}

func TestDecideApprovalNeverSkipsReads(t *testing.T) {
	got := decideApproval(protocol.ApprovalNever, CategoryRead, "", false)
	if got.kind != decisionSkip {
		t.Fatalf("kind = %v, want skip", got.kind)
	}
}

func TestDecideApprovalUnlessTrustedSkipsSafeCommand(t *testing.T) {
	got := decideApproval(protocol.ApprovalUnlessTrusted, CategoryCommand, "ls -la", false)
	if got.kind != decisionSkip {
		t.Fatalf("kind = %v, want skip for a trusted command", got.kind)
	}
}

func TestDecideApprovalUnlessTrustedAsksForUntrustedCommand(t *testing.T) {
	got := decideApproval(protocol.ApprovalUnlessTrusted, CategoryCommand, "curl evil.example", false)
	if got.kind != decisionNeedsApproval {
		t.Fatalf("kind = %v, want needs_approval", got.kind)
	}
}

func TestDecideApprovalOnFailureAlwaysSkipsInitially(t *testing.T) {
	got := decideApproval(protocol.ApprovalOnFailure, CategoryCommand, "curl evil.example", false)
	if got.kind != decisionSkip {
		t.Fatalf("kind = %v, want skip (escalation happens only after a failure)", got.kind)
	}
}

func TestDecideApprovalOnRequestSkipsReadsAsksForEdits(t *testing.T) {
	if got := decideApproval(protocol.ApprovalOnRequest, CategoryRead, "", false); got.kind != decisionSkip {
		t.Fatalf("read: kind = %v, want skip", got.kind)
	}
	if got := decideApproval(protocol.ApprovalOnRequest, CategoryEdit, "", false); got.kind != decisionNeedsApproval {
		t.Fatalf("edit: kind = %v, want needs_approval", got.kind)
	}
}

func TestDecideApprovalSessionApprovalSkips(t *testing.T) {
	got := decideApproval(protocol.ApprovalUnlessTrusted, CategoryCommand, "curl evil.example", true)
	if got.kind != decisionSkip {
		t.Fatalf("kind = %v, want skip when already approved for session", got.kind)
	}
}

func TestMayEscalateUnlessTrustedAlwaysEligible(t *testing.T) {
	if !mayEscalate(protocol.ApprovalUnlessTrusted, true, false) {
		t.Fatalf("expected UnlessTrusted with escalateOnFailure=true to be eligible")
	}
	if mayEscalate(protocol.ApprovalUnlessTrusted, false, false) {
		t.Fatalf("expected escalateOnFailure=false to never be eligible")
	}
}

func TestMayEscalateOnRequestOnlyForNetworkBlock(t *testing.T) {
	if mayEscalate(protocol.ApprovalOnRequest, true, false) {
		t.Fatalf("expected OnRequest with no network block to be ineligible")
	}
	if !mayEscalate(protocol.ApprovalOnRequest, true, true) {
		t.Fatalf("expected OnRequest with a network block to be eligible")
	}
}

func TestMayEscalateNeverIneligible(t *testing.T) {
	if mayEscalate(protocol.ApprovalNever, true, true) {
		t.Fatalf("expected ApprovalNever to never permit escalation")
	}
}

func TestAnswerAccepted(t *testing.T) {
	for _, a := range []Answer{AnswerApproved, AnswerApprovedForSession, AnswerApprovedExecpolicyAmendment} {
		if !a.Accepted() {
			t.Errorf("expected %v to be accepted", a)
		}
	}
	for _, a := range []Answer{AnswerDenied, AnswerAbort} {
		if a.Accepted() {
			t.Errorf("expected %v to not be accepted", a)
		}
	}
}

func TestSessionApprovalsRememberPerThread(t *testing.T) {
	s := newSessionApprovals()
	if s.isApproved("t1", "ls") {
		t.Fatalf("expected no approval recorded yet")
	}
	s.remember("t1", "ls")
	if !s.isApproved("t1", "ls") {
		t.Fatalf("expected ls to be remembered for t1")
	}
	if s.isApproved("t2", "ls") {
		t.Fatalf("expected approval to not leak across threads")
	}
}
