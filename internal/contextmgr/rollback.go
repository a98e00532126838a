package contextmgr

import "github.com/corerun/agentcore/internal/protocol"

// UserTurnBoundaries returns the indices into items where a genuine
// (non-scaffolding) user turn begins, in ascending order. The Thread
// Manager's fork/rollback points are restricted to these indices.
func UserTurnBoundaries(items []protocol.ResponseItem) []int {
	var bounds []int
	for i, item := range items {
		if item.IsUserTurnBoundary() {
			bounds = append(bounds, i)
		}
	}
	return bounds
}

// DropLastNUserTurns returns items truncated to drop the last n genuine
// user turns (and everything recorded after the boundary immediately
// preceding them). n <= 0 returns items unchanged; n >= the number of user
// turns present returns an empty slice.
func DropLastNUserTurns(items []protocol.ResponseItem, n int) []protocol.ResponseItem {
	if n <= 0 {
		return items
	}
	bounds := UserTurnBoundaries(items)
	if n >= len(bounds) {
		return nil
	}
	cut := bounds[len(bounds)-n]
	out := make([]protocol.ResponseItem, cut)
	copy(out, items[:cut])
	return out
}

// RemoveFirstItem drops the oldest transcript entry, used to make room
// when a single item (e.g. a giant tool output) is itself blocking
// progress toward the compaction threshold.
func RemoveFirstItem(items []protocol.ResponseItem) []protocol.ResponseItem {
	if len(items) == 0 {
		return items
	}
	out := make([]protocol.ResponseItem, len(items)-1)
	copy(out, items[1:])
	return out
}

// ReplaceLastTurnImages strips input-image content from every user message
// in the transcript except the most recent user turn, replacing each
// removed image with a short text placeholder. Providers charge heavily
// for image tokens, and only the latest turn's images are ever relevant to
// the model's next response.
func ReplaceLastTurnImages(items []protocol.ResponseItem) []protocol.ResponseItem {
	bounds := UserTurnBoundaries(items)
	if len(bounds) == 0 {
		return items
	}
	lastBoundary := bounds[len(bounds)-1]

	out := make([]protocol.ResponseItem, len(items))
	copy(out, items)
	for i := 0; i < lastBoundary; i++ {
		item := out[i]
		if item.Type != protocol.ResponseItemMessage || item.Message == nil || item.Message.Role != protocol.RoleUser {
			continue
		}
		if !hasImageContent(item.Message.Content) {
			continue
		}
		msg := *item.Message
		msg.Content = stripImages(msg.Content)
		item.Message = &msg
		out[i] = item
	}
	return out
}

func hasImageContent(content []protocol.ContentItem) bool {
	for _, c := range content {
		if c.Type == protocol.ContentInputImage {
			return true
		}
	}
	return false
}

func stripImages(content []protocol.ContentItem) []protocol.ContentItem {
	out := make([]protocol.ContentItem, 0, len(content))
	for _, c := range content {
		if c.Type == protocol.ContentInputImage {
			out = append(out, protocol.ContentItem{
				Type: protocol.ContentInputText,
				Text: "[image removed from earlier turn]",
			})
			continue
		}
		out = append(out, c)
	}
	return out
}
