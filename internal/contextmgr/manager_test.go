package contextmgr

import (
	"testing"

	"github.com/corerun/agentcore/internal/protocol"
)

func TestForPromptSynthesizesPlaceholderForIncompleteCall(t *testing.T) {
	m := NewManager(0, 0)
	callID := protocol.NewCallID()
	m.RecordItems(
		protocol.NewUserMessage("list files"),
		protocol.NewFunctionCall(callID, "list_dir", `{"path":"."}`),
	)

	prompt := m.ForPrompt()
	if len(prompt) != 3 {
		t.Fatalf("expected call + synthesized output appended, got %d items", len(prompt))
	}
	last := prompt[len(prompt)-1]
	if !last.IsOutputItem() {
		t.Fatalf("expected last item to be a synthesized output, got %v", last.Type)
	}
	gotID, ok := last.CallID()
	if !ok || gotID != callID {
		t.Fatalf("synthesized output call id = %v, want %v", gotID, callID)
	}
}

func TestForPromptDropsOrphanOutput(t *testing.T) {
	m := NewManager(0, 0)
	orphanID := protocol.NewCallID()
	m.RecordItems(
		protocol.NewUserMessage("hi"),
		protocol.NewFunctionCallOutput(orphanID, "result with no call", false),
	)

	prompt := m.ForPrompt()
	for _, item := range prompt {
		if id, ok := item.CallID(); ok && id == orphanID {
			t.Fatalf("expected orphan output to be dropped from for_prompt()")
		}
	}
}

func TestForPromptPreservesClosedPairs(t *testing.T) {
	m := NewManager(0, 0)
	callID := protocol.NewCallID()
	m.RecordItems(
		protocol.NewUserMessage("hi"),
		protocol.NewFunctionCall(callID, "read_file", `{}`),
		protocol.NewFunctionCallOutput(callID, "contents", false),
	)

	prompt := m.ForPrompt()
	if len(prompt) != 3 {
		t.Fatalf("expected no items added/removed for an already-closed pair, got %d", len(prompt))
	}
}

func TestShouldCompactAbsoluteLimit(t *testing.T) {
	m := NewManager(1000, 0)
	m.UpdateUsage(protocol.TokenUsageInfo{TotalTokens: 1500})
	if !m.ShouldCompact() {
		t.Fatalf("expected ShouldCompact true when usage exceeds the absolute limit")
	}

	m2 := NewManager(1000, 0)
	m2.UpdateUsage(protocol.TokenUsageInfo{TotalTokens: 500})
	if m2.ShouldCompact() {
		t.Fatalf("expected ShouldCompact false when usage is below the absolute limit")
	}
}

func TestShouldCompactContextWindowPercentage(t *testing.T) {
	m := NewManager(0, 0.5)
	m.UpdateUsage(protocol.TokenUsageInfo{TotalTokens: 600, ContextWindowTokens: 1000})
	if !m.ShouldCompact() {
		t.Fatalf("expected ShouldCompact true at 60%% of a 1000-token window with a 50%% threshold")
	}
}

func TestShouldCompactNeverTriggersWithoutLimitOrWindow(t *testing.T) {
	m := NewManager(0, 0)
	m.windowPercent = 0 // force: no absolute limit, no window reported
	m.UpdateUsage(protocol.TokenUsageInfo{TotalTokens: 1_000_000})
	if m.ShouldCompact() {
		t.Fatalf("expected ShouldCompact false with no configured limit and no reported window")
	}
}

func TestBeginCompactionIsExclusive(t *testing.T) {
	m := NewManager(0, 0)
	if !m.BeginCompaction() {
		t.Fatalf("expected first BeginCompaction to succeed")
	}
	if m.BeginCompaction() {
		t.Fatalf("expected second concurrent BeginCompaction to fail while one is in flight")
	}
	m.EndCompaction()
	if !m.BeginCompaction() {
		t.Fatalf("expected BeginCompaction to succeed again after EndCompaction")
	}
}

func TestApplyLocalCompactionRetainsPreambleAndSuffix(t *testing.T) {
	m := NewManager(0, 0)
	m.RecordItems(
		protocol.NewScaffoldingUserMessage("environment context"),
		protocol.NewUserMessage("u1"),
		protocol.NewAssistantMessage("a1"),
		protocol.NewAssistantMessage("a2"),
		protocol.NewUserMessage("u2"),
		protocol.NewAssistantMessage("a3"),
	)

	m.ApplyLocalCompaction("condensed summary")
	items := m.Items()

	if items[0].Type != protocol.ResponseItemMessage || !items[0].Message.Scaffolding {
		t.Fatalf("expected preamble (scaffolding message) preserved first, got %+v", items[0])
	}
	if items[1].Message == nil || items[1].Message.Role != protocol.RoleAssistant {
		t.Fatalf("expected synthetic assistant summary second, got %+v", items[1])
	}
	last := items[len(items)-1]
	if last.Message == nil || last.Message.Content[0].Text != "a3" {
		t.Fatalf("expected the latest turn retained as suffix, got %+v", last)
	}
}

func TestDropLastNUserTurns(t *testing.T) {
	items := []protocol.ResponseItem{
		protocol.NewUserMessage("u1"),
		protocol.NewAssistantMessage("a1"),
		protocol.NewAssistantMessage("a2"),
		protocol.NewUserMessage("u2"),
		protocol.NewAssistantMessage("a3"),
	}

	got := DropLastNUserTurns(items, 1)
	if len(got) != 3 {
		t.Fatalf("drop 1: expected [u1,a1,a2] (3 items), got %d", len(got))
	}

	got2 := DropLastNUserTurns(items, 2)
	if len(got2) != 0 {
		t.Fatalf("drop 2: expected empty history, got %d items", len(got2))
	}

	got0 := DropLastNUserTurns(items, 0)
	if len(got0) != len(items) {
		t.Fatalf("drop 0: expected no-op, got %d items", len(got0))
	}
}
