// Package otelobs carries the one piece of ambient observability spec.md
// §4.5 names explicitly: a per-decision counter for the tool orchestrator's
// approval outcomes, tagged by tool name, call id, decision, and decision
// source. The teacher's own core module carries no observability library;
// this is enriched from the sibling pack's go.mod, which pulls the same
// go.opentelemetry.io/otel family for this kind of counter.
package otelobs

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ApprovalCounter records one tool-call approval decision.
type ApprovalCounter struct {
	counter metric.Int64Counter
}

var (
	global     *ApprovalCounter
	globalOnce sync.Once
)

// Global returns the process-wide ApprovalCounter, initializing it lazily
// on first use from the global otel MeterProvider (a no-op meter until the
// host process wires a real one — export is explicitly out of scope per
// spec.md's Non-goals, only the counter itself is ambient scope).
func Global() *ApprovalCounter {
	globalOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("github.com/corerun/agentcore/toolorch")
		counter, err := meter.Int64Counter(
			"agentcore.tool_orchestrator.approval_decisions",
			metric.WithDescription("Count of tool-call approval decisions by tool, decision, and source"),
		)
		if err != nil {
			log.Printf("[otelobs] failed to create approval counter: %v", err)
			counter = nil
		}
		global = &ApprovalCounter{counter: counter}
	})
	return global
}

// RecordDecision tags and increments the counter once per approval
// decision made by the tool orchestrator.
func (a *ApprovalCounter) RecordDecision(ctx context.Context, toolName, callID, decision, source string) {
	if a == nil || a.counter == nil {
		return
	}
	a.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", toolName),
		attribute.String("call_id", callID),
		attribute.String("decision", decision),
		attribute.String("source", source),
	))
}
