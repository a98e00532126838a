package otelobs

import (
	"context"
	"testing"
)

func TestRecordDecisionDoesNotPanicWithoutExporter(t *testing.T) {
	c := Global()
	// No MeterProvider has been installed for this test binary; Global()
	// must still hand back a counter that's safe to record against.
	c.RecordDecision(context.Background(), "shell", "call-1", "Approved", "User")
}

func TestRecordDecisionNilReceiverIsSafe(t *testing.T) {
	var c *ApprovalCounter
	c.RecordDecision(context.Background(), "shell", "call-1", "Denied", "Config")
}
