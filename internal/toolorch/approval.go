package toolorch

import (
	"context"

	"github.com/corerun/agentcore/internal/protocol"
)

// Answer is the user's response to an approval prompt.
type Answer string

const (
	AnswerApproved                    Answer = "approved"
	AnswerApprovedForSession          Answer = "approved_for_session"
	AnswerApprovedExecpolicyAmendment Answer = "approved_execpolicy_amendment"
	AnswerDenied                      Answer = "denied"
	AnswerAbort                       Answer = "abort"
)

// Accepted reports whether an answer counts as approval to proceed.
func (a Answer) Accepted() bool {
	return a == AnswerApproved || a == AnswerApprovedForSession || a == AnswerApprovedExecpolicyAmendment
}

// Request is the approval prompt the orchestrator sends through the
// app-server to the user.
type Request struct {
	ThreadID    protocol.ThreadID
	CallID      protocol.CallID
	ToolName    string
	Category    Category
	Explanation string
	// RetryReason is set only for an escalation (post-denial) prompt: a
	// network-host string or the generic "command failed; retry without
	// sandbox?" text spec.md §4.5 specifies.
	RetryReason string
}

// Prompter asks the user an approval question and waits for their answer,
// the server→client request half of the app-server surface (spec.md §4.1).
type Prompter interface {
	RequestApproval(ctx context.Context, req Request) (Answer, error)
}

// decisionKind tags the variant carried by a policyDecision.
type decisionKind string

const (
	decisionSkip           decisionKind = "skip"
	decisionNeedsApproval  decisionKind = "needs_approval"
	decisionForbidden      decisionKind = "forbidden"
)

// policyDecision is the approval pipeline's first-stage outcome, per
// spec.md §4.5's three-way Skip / NeedsApproval{reason} / Forbidden{reason}
// result.
type policyDecision struct {
	kind   decisionKind
	reason string
}

// sessionApprovals tracks commands the user approved "for the rest
// of this session" (AnswerApprovedForSession), keyed by thread so a repeat
// of the same command auto-skips approval for the remainder of the thread.
type sessionApprovals struct {
	approvedCommands map[protocol.ThreadID]map[string]bool
}

func newSessionApprovals() *sessionApprovals {
	return &sessionApprovals{approvedCommands: make(map[protocol.ThreadID]map[string]bool)}
}

func (s *sessionApprovals) remember(threadID protocol.ThreadID, command string) {
	if s.approvedCommands[threadID] == nil {
		s.approvedCommands[threadID] = make(map[string]bool)
	}
	s.approvedCommands[threadID][command] = true
}

func (s *sessionApprovals) isApproved(threadID protocol.ThreadID, command string) bool {
	return s.approvedCommands[threadID] != nil && s.approvedCommands[threadID][command]
}

// decideApproval evaluates spec.md §4.5's per-(policy, classification)
// table: for each ApprovalPolicy and each call's category/trust/mutation
// classification, it returns Skip, NeedsApproval, or Forbidden.
func decideApproval(policy protocol.ApprovalPolicy, category Category, command string, alreadyApprovedForSession bool) policyDecision {
	if alreadyApprovedForSession {
		return policyDecision{kind: decisionSkip}
	}

	trusted := category != CategoryCommand || IsSafeCommand(command)
	mutating := category == CategoryEdit || (category == CategoryCommand && !IsSafeCommand(command))

	switch policy {
	case protocol.ApprovalNever:
		if mutating && category == CategoryCommand {
			return policyDecision{kind: decisionForbidden, reason: "command execution is disabled by policy"}
		}
		return policyDecision{kind: decisionSkip}

	case protocol.ApprovalUnlessTrusted:
		if trusted {
			return policyDecision{kind: decisionSkip}
		}
		return policyDecision{kind: decisionNeedsApproval, reason: "command is not on the trusted list"}

	case protocol.ApprovalOnFailure:
		// Run first; the orchestrator only asks on a later failure/denial
		// (handled by the escalation path), so the initial decision is
		// always Skip.
		return policyDecision{kind: decisionSkip}

	case protocol.ApprovalOnRequest:
		fallthrough
	default:
		if !mutating {
			return policyDecision{kind: decisionSkip}
		}
		return policyDecision{kind: decisionNeedsApproval, reason: "this action modifies the workspace"}
	}
}

// mayEscalate reports whether a sandbox denial is eligible for a
// no-sandbox retry, per spec.md §4.5's "Denial → escalation" rule: the
// tool must be marked escalate_on_failure, and the policy must permit
// escalation (UnlessTrusted always does; OnRequest only for a
// network-policy block).
func mayEscalate(policy protocol.ApprovalPolicy, escalateOnFailure bool, networkBlocked bool) bool {
	if !escalateOnFailure {
		return false
	}
	switch policy {
	case protocol.ApprovalUnlessTrusted:
		return true
	case protocol.ApprovalOnRequest:
		return networkBlocked
	default:
		return false
	}
}
