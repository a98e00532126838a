package contextmgr

import "github.com/corerun/agentcore/internal/protocol"

// compactionPrompt is the canned synthetic user turn issued for local
// summarization compaction, per spec.md §4.4.
const compactionPrompt = "You are performing a CONTEXT CHECKPOINT COMPACTION. Summarize the " +
	"conversation above into a compact checkpoint that preserves every " +
	"decision, file change, and open thread needed to continue the task " +
	"without the original messages."

// RetainedSuffixTurns is how many trailing user turns survive a local
// compaction untouched, alongside the preamble and the synthetic summary.
const RetainedSuffixTurns = 1

// CompactionPrompt returns the synthetic user-turn text used to ask the
// model for a local summarization. Exposed so the turn driver can build
// exactly this ResponseItem before replaying it through the wire client.
func CompactionPrompt() string { return compactionPrompt }

// ApplyLocalCompaction replaces the manager's transcript with: every item
// up to (not including) the first user-turn boundary (the preamble — e.g.
// instructions/environment scaffolding), a single synthetic assistant
// message carrying summary, then the retained suffix (the latest
// RetainedSuffixTurns user turns and everything after them). It returns
// the protocol.CompactionItem recorded alongside for rollout/audit
// purposes.
func (m *Manager) ApplyLocalCompaction(summary string) protocol.CompactionItem {
	m.mu.Lock()
	items := make([]protocol.ResponseItem, len(m.items))
	copy(items, m.items)
	m.mu.Unlock()

	bounds := UserTurnBoundaries(items)
	preambleEnd := len(items)
	if len(bounds) > 0 {
		preambleEnd = bounds[0]
	}
	preamble := items[:preambleEnd]

	var suffix []protocol.ResponseItem
	if len(bounds) > RetainedSuffixTurns {
		suffix = items[bounds[len(bounds)-RetainedSuffixTurns]:]
	} else if len(bounds) > 0 {
		suffix = items[bounds[0]:]
		preamble = items[:bounds[0]]
	}

	summaryItem := protocol.NewAssistantMessage(summary)

	replacement := make([]protocol.ResponseItem, 0, len(preamble)+1+len(suffix))
	replacement = append(replacement, preamble...)
	replacement = append(replacement, summaryItem)
	replacement = append(replacement, suffix...)

	before := EstimateTotalTokens(items)
	m.Replace(replacement)
	after := EstimateTotalTokens(replacement)

	return protocol.CompactionItem{
		Summary:       summary,
		ReplacedItems: len(items) - len(replacement),
		TokensBefore:  before,
		TokensAfter:   after,
		RemoteCompact: false,
	}
}

// ApplyRemoteCompaction replaces the entire transcript with replacement,
// per spec.md §4.4's remote-compaction variant. The session passes a single
// assistant message carrying the summary the provider's Compact endpoint
// returned; no other provider-built items are involved.
func (m *Manager) ApplyRemoteCompaction(summary string, replacement []protocol.ResponseItem) protocol.CompactionItem {
	m.mu.Lock()
	before := EstimateTotalTokens(m.items)
	m.mu.Unlock()

	m.Replace(replacement)
	after := EstimateTotalTokens(replacement)

	return protocol.CompactionItem{
		Summary:       summary,
		ReplacedItems: 0,
		TokensBefore:  before,
		TokensAfter:   after,
		RemoteCompact: true,
	}
}
