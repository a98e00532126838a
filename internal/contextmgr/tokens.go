package contextmgr

import (
	"log"
	"sync"

	"github.com/corerun/agentcore/internal/protocol"
	"github.com/pkoukk/tiktoken-go"
)

// encryptedReasoningNumerator, encryptedReasoningDenominator and
// encryptedReasoningOverhead implement the byte-based estimate for a
// reasoning item whose content arrives only as an opaque encrypted blob (no
// plaintext to count): bytes*3/4 minus a fixed envelope overhead of 650,
// floored at zero, instead of the plain bytes/4 used for other items.
const (
	encryptedReasoningNumerator   = 3
	encryptedReasoningDenominator = 4
	encryptedReasoningOverhead    = 650
)

// EstimateItemTokens is the authoritative, byte-based token estimate the
// compaction trigger relies on. It never depends on an external
// tokenizer, so it is cheap and deterministic across providers.
func EstimateItemTokens(item protocol.ResponseItem) int {
	if item.Type == protocol.ResponseItemReasoning && item.Reasoning != nil && len(item.Reasoning.EncryptedContent) > 0 {
		bytes := len(item.Reasoning.EncryptedContent)
		est := bytes*encryptedReasoningNumerator/encryptedReasoningDenominator - encryptedReasoningOverhead
		if est < 0 {
			est = 0
		}
		return est
	}
	return estimateBytesHeuristic(itemTextBytes(item))
}

// estimateBytesHeuristic applies a plain 4-bytes-per-token heuristic, used
// for every item type other than encrypted reasoning.
func estimateBytesHeuristic(byteCount int) int {
	return byteCount / 4
}

func itemTextBytes(item protocol.ResponseItem) int {
	switch item.Type {
	case protocol.ResponseItemMessage:
		total := 0
		for _, c := range item.Message.Content {
			total += len(c.Text) + len(c.ImageURL)
		}
		return total
	case protocol.ResponseItemReasoning:
		total := 0
		for _, c := range item.Reasoning.Summary {
			total += len(c.Text)
		}
		return total
	case protocol.ResponseItemFunctionCall:
		return len(item.FunctionCall.Name) + len(item.FunctionCall.Arguments)
	case protocol.ResponseItemFunctionCallOutput:
		return len(item.FunctionCallOutput.Output)
	case protocol.ResponseItemCustomToolCall:
		return len(item.CustomToolCall.Name) + len(item.CustomToolCall.Input)
	case protocol.ResponseItemCustomToolCallOutput:
		return len(item.CustomToolCallOutput.Output)
	case protocol.ResponseItemLocalShellCall:
		total := 0
		for _, c := range item.LocalShellCall.Command {
			total += len(c)
		}
		return total
	case protocol.ResponseItemWebSearchCall:
		return len(item.WebSearchCall.Query)
	case protocol.ResponseItemCompaction:
		return len(item.Compaction.Summary)
	default:
		return 0
	}
}

// EstimateTotalTokens sums the byte-based estimate across a transcript.
func EstimateTotalTokens(items []protocol.ResponseItem) int {
	total := 0
	for _, item := range items {
		total += EstimateItemTokens(item)
	}
	return total
}

// auxiliary token estimation below is a secondary, human-facing display
// figure layered over the byte-based estimate above; it is never used to
// decide whether to compact.

var (
	tkm     *tiktoken.Tiktoken
	tkmOnce sync.Once
)

func auxTokenizer() *tiktoken.Tiktoken {
	tkmOnce.Do(func() {
		var err error
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Printf("[contextmgr] failed to load tiktoken encoding: %v; auxiliary estimate falls back to heuristic", err)
		}
	})
	return tkm
}

// EstimateAuxTokens returns a tiktoken-backed estimate of text for display
// purposes, falling back to the same bytes/4 heuristic if the encoding
// failed to load. Session.RunTurn calls this on the final assistant message
// of each turn to populate turn/completed's last_assistant_message_tokens,
// a richer human-facing count than the compaction estimate above.
func EstimateAuxTokens(text string) int {
	if text == "" {
		return 0
	}
	if tok := auxTokenizer(); tok != nil {
		return len(tok.Encode(text, nil, nil))
	}
	return len(text) / 4
}
