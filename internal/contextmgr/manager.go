// Package contextmgr owns a thread's in-memory transcript: recording new
// items, projecting a model-safe prompt from them, estimating token usage,
// and triggering/performing compaction when the estimate crosses a
// threshold.
package contextmgr

import (
	"sync"

	"github.com/corerun/agentcore/internal/protocol"
)

// defaultWindowPercent is the fraction of a provider-reported context
// window at which auto-compaction fires when no explicit AutoCompactLimit
// is configured. spec.md leaves the exact percentage an open question and
// asks implementers to expose it as a configurable constant; NewManager's
// windowPercent argument (config key window_percent) overrides it.
const defaultWindowPercent = 0.75

// placeholderOutput is the text synthesized for a FunctionCall/CustomToolCall
// that has no matching output yet, so for_prompt() always hands the model
// closed call/output pairs even mid-turn (e.g. after a cancellation).
const placeholderOutput = "[no output recorded: turn ended before this call completed]"

// Manager holds one thread's transcript and the policy used to decide
// when it needs compacting.
type Manager struct {
	mu               sync.Mutex
	items            []protocol.ResponseItem
	contextWindow    int
	windowPercent    float64
	autoCompactLimit int
	lastUsage        protocol.TokenUsageInfo
	compacting       bool
}

// NewManager builds a Manager. autoCompactLimit, if > 0, is an absolute
// token-count trigger. windowPercent (defaulting to defaultWindowPercent
// when <= 0) is used instead whenever a provider-reported context window
// is known and no absolute limit was configured.
func NewManager(autoCompactLimit int, windowPercent float64) *Manager {
	if windowPercent <= 0 {
		windowPercent = defaultWindowPercent
	}
	return &Manager{autoCompactLimit: autoCompactLimit, windowPercent: windowPercent}
}

// RecordItems appends new transcript entries in order.
func (m *Manager) RecordItems(items ...protocol.ResponseItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, items...)
}

// Items returns a copy of the full recorded transcript, including any
// currently-incomplete calls or orphaned outputs.
func (m *Manager) Items() []protocol.ResponseItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.ResponseItem, len(m.items))
	copy(out, m.items)
	return out
}

// Replace swaps the whole transcript, used by compaction and by the
// rollback operations in rollback.go.
func (m *Manager) Replace(items []protocol.ResponseItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
}

// ForPrompt projects the recorded transcript into the exact sequence sent
// to the model, enforcing the two normalization invariants spec.md §4.4
// requires:
//
//  1. Call completeness: a FunctionCall/CustomToolCall with no matching
//     output anywhere in the transcript gets a synthesized placeholder
//     output appended immediately after it, so the model always sees
//     closed call/output pairs.
//  2. No orphan outputs: an output whose call was dropped (by compaction
//     or explicit truncation) is removed.
//
// GhostSnapshot items are filtered out; they exist for local introspection
// only and are never shown to the model.
func (m *Manager) ForPrompt() []protocol.ResponseItem {
	items := m.Items()

	callSeen := make(map[protocol.CallID]bool)
	outputSeen := make(map[protocol.CallID]bool)
	for _, item := range items {
		if id, ok := item.CallID(); ok {
			if item.IsCallItem() {
				callSeen[id] = true
			} else if item.IsOutputItem() {
				outputSeen[id] = true
			}
		}
	}

	out := make([]protocol.ResponseItem, 0, len(items))
	for _, item := range items {
		if item.Type == protocol.ResponseItemGhostSnapshot {
			continue
		}
		id, hasID := item.CallID()
		if hasID && item.IsOutputItem() && !callSeen[id] {
			// Orphan output with no matching call: drop.
			continue
		}
		out = append(out, item)
		if hasID && item.IsCallItem() && !outputSeen[id] {
			out = append(out, placeholderFor(item, id))
		}
	}
	return out
}

func placeholderFor(call protocol.ResponseItem, id protocol.CallID) protocol.ResponseItem {
	if call.Type == protocol.ResponseItemCustomToolCall {
		return protocol.ResponseItem{
			Type: protocol.ResponseItemCustomToolCallOutput,
			CustomToolCallOutput: &protocol.CustomToolCallOutputItem{
				CallID: id,
				Output: placeholderOutput,
			},
		}
	}
	return protocol.NewFunctionCallOutput(id, placeholderOutput, true)
}

// UpdateUsage records the latest TokenUsageInfo reported by (or estimated
// from) a model response, used as the running total ShouldCompact checks.
func (m *Manager) UpdateUsage(usage protocol.TokenUsageInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUsage = usage
	if usage.ContextWindowTokens > 0 {
		m.contextWindow = usage.ContextWindowTokens
	}
}

// LastUsage returns the most recently recorded TokenUsageInfo.
func (m *Manager) LastUsage() protocol.TokenUsageInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUsage
}

// EstimatedTokens reports the byte-based token estimate over the full
// recorded transcript. This is the runtime's own lower bound, independent
// of whatever the provider last reported. ShouldCompact compares the larger
// of this estimate and the last reported total against the limit; nothing
// from the estimate (reasoning bytes included) is added to the reported
// usage.
func (m *Manager) EstimatedTokens() int {
	return EstimateTotalTokens(m.Items())
}

// effectiveLimit resolves the configured autoCompactLimit against a
// provider-reported context window, in priority order: an explicit
// absolute limit wins; otherwise a percentage of the reported window;
// otherwise compaction never triggers (limit <= 0).
func (m *Manager) effectiveLimit() int {
	if m.autoCompactLimit > 0 {
		return m.autoCompactLimit
	}
	if m.contextWindow > 0 {
		return int(float64(m.contextWindow) * m.windowPercent)
	}
	return 0
}

// ShouldCompact reports whether the running total (the larger of the last
// reported usage and the live byte-based estimate) has crossed the
// configured auto_compact_limit.
func (m *Manager) ShouldCompact() bool {
	m.mu.Lock()
	limit := m.effectiveLimit()
	last := m.lastUsage.TotalTokens
	m.mu.Unlock()
	if limit <= 0 {
		return false
	}
	total := last
	if est := m.EstimatedTokens(); est > total {
		total = est
	}
	return total > limit
}

// BeginCompaction attempts to take the at-most-one-in-flight compaction
// lock for this thread; it returns false if a compaction is already
// running. Callers must call EndCompaction when done.
func (m *Manager) BeginCompaction() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.compacting {
		return false
	}
	m.compacting = true
	return true
}

// EndCompaction releases the compaction lock taken by BeginCompaction.
func (m *Manager) EndCompaction() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compacting = false
}
