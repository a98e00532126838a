package toolorch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corerun/agentcore/internal/otelobs"
	"github.com/corerun/agentcore/internal/sandbox"
)

// Orchestrator runs spec.md §4.5's per-call pipeline: Approval Decision →
// Select Sandbox → Run → (on denial) escalation eligibility → optional
// approval request → retry with sandbox=None.
type Orchestrator struct {
	registry *Registry
	sandbox  *sandbox.Manager
	prompter Prompter
	approved *sessionApprovals
	metrics  *otelobs.ApprovalCounter
}

// NewOrchestrator builds an Orchestrator. prompter may be nil only for
// policies that can never produce a NeedsApproval decision in practice
// (callers under ApprovalNever with no mutating tools registered); any
// other use of a nil prompter fails a call with ErrFatal rather than
// blocking forever.
func NewOrchestrator(registry *Registry, mgr *sandbox.Manager, prompter Prompter) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		sandbox:  mgr,
		prompter: prompter,
		approved: newSessionApprovals(),
		metrics:  otelobs.Global(),
	}
}

// commandArgs is the subset of a command-tool's JSON arguments the
// orchestrator inspects for trusted-command classification; handlers remain
// free to interpret the full argument payload however they need.
type commandArgs struct {
	Command string `json:"command"`
}

func extractCommand(args string) string {
	var parsed commandArgs
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		return ""
	}
	return parsed.Command
}

// Call runs one tool invocation through the full approval/sandbox/execution
// pipeline and returns either a successful Output or a CallError describing
// exactly how it failed, per spec.md §9's sum-type error design.
func (o *Orchestrator) Call(ctx context.Context, inv Invocation, out sandbox.OutputSink) (Output, *CallError) {
	handler, ok := o.registry.Lookup(inv.Name)
	if !ok {
		return Output{}, errNoHandler(inv.Name)
	}

	category := GetCategory(inv.Name)
	command := extractCommand(inv.Args)

	decision := decideApproval(inv.Turn.ApprovalPolicy, category, command, o.approved.isApproved(inv.ThreadID, command))
	o.record(ctx, inv, string(decision.kind), "policy")

	switch decision.kind {
	case decisionForbidden:
		return Output{}, respondToModel(fmt.Sprintf("refused: %s", decision.reason))

	case decisionNeedsApproval:
		answer, err := o.askApproval(ctx, inv, Request{
			ThreadID:    inv.ThreadID,
			CallID:      inv.CallID,
			ToolName:    inv.Name,
			Category:    category,
			Explanation: decision.reason,
		})
		if err != nil {
			return Output{}, fatalf(fmt.Sprintf("approval request failed: %v", err))
		}
		if !answer.Accepted() {
			if answer == AnswerAbort {
				return Output{}, fatalf("user aborted the turn during an approval prompt")
			}
			return Output{}, userRejected("the user declined this action")
		}
		if answer == AnswerApprovedForSession {
			o.approved.remember(inv.ThreadID, command)
		}
	}

	inv.Sandbox = o.sandbox.SelectInitial(inv.Turn.SandboxPolicy, handler.PrefersNoSandbox())

	output, callErr := handler.Handle(ctx, inv)
	if callErr == nil {
		return output, nil
	}
	if callErr.Kind != ErrRetryableSandboxDenied {
		return Output{}, callErr
	}

	// The handler ran under kind and was denied by its sandbox; decide
	// whether escalation to an unsandboxed retry is available.
	networkBlocked := callErr.Denial != nil && callErr.Denial.NetworkPolicyDecision != nil && callErr.Denial.NetworkPolicyDecision.Blocked
	escalatable := inv.Turn.EscalateOnFailure && handler.EscalateOnFailure()
	if !mayEscalate(inv.Turn.ApprovalPolicy, escalatable, networkBlocked) {
		return Output{}, respondToModel(fmt.Sprintf("sandboxed execution was denied: %s", callErr.Message))
	}

	retryReason := callErr.Message
	if networkBlocked {
		retryReason = fmt.Sprintf("network access to %s was blocked", callErr.Denial.NetworkPolicyDecision.Host)
	}
	answer, err := o.askApproval(ctx, inv, Request{
		ThreadID:    inv.ThreadID,
		CallID:      inv.CallID,
		ToolName:    inv.Name,
		Category:    category,
		Explanation: "retry without a sandbox?",
		RetryReason: retryReason,
	})
	if err != nil {
		return Output{}, fatalf(fmt.Sprintf("escalation approval request failed: %v", err))
	}
	if !answer.Accepted() {
		return Output{}, userRejected("the user declined to retry without a sandbox")
	}

	inv.Sandbox = sandbox.KindNone
	return handler.Handle(ctx, inv)
}

func (o *Orchestrator) askApproval(ctx context.Context, inv Invocation, req Request) (Answer, error) {
	if o.prompter == nil {
		return AnswerDenied, fmt.Errorf("no approval prompter configured")
	}
	answer, err := o.prompter.RequestApproval(ctx, req)
	if err == nil {
		o.record(ctx, inv, string(answer), "user")
	}
	return answer, err
}

func (o *Orchestrator) record(ctx context.Context, inv Invocation, decision, source string) {
	o.metrics.RecordDecision(ctx, inv.Name, string(inv.CallID), decision, source)
}
