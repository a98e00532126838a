package protocol

import "time"

// RolloutItemType tags the variant carried by a RolloutItem — the on-disk
// JSONL record, a strict superset of what ResponseItem carries since it
// also records session metadata and turn-context changes.
type RolloutItemType string

const (
	RolloutSessionMeta  RolloutItemType = "session_meta"
	RolloutTurnContext  RolloutItemType = "turn_context"
	RolloutResponseItem RolloutItemType = "response_item"
	RolloutEventMsg     RolloutItemType = "event_msg"
	RolloutCompacted    RolloutItemType = "compacted"
)

// SessionMetaLine is the first line written to a rollout file.
type SessionMetaLine struct {
	ThreadID  ThreadID  `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
	Cwd       string    `json:"cwd"`
	Model     string    `json:"model"`
}

// EventMsgLine records a notable non-transcript event (e.g. a thread
// status change) for audit/debugging purposes.
type EventMsgLine struct {
	Message string `json:"message"`
}

// CompactedLine records that a compaction occurred, duplicating the
// ResponseItem-level CompactionItem for rollout readers that don't want to
// walk the transcript to find it.
type CompactedLine struct {
	Summary       string `json:"summary"`
	RemoteCompact bool   `json:"remote_compact"`
}

// RolloutItem is one line of a rollout-*.jsonl file.
type RolloutItem struct {
	Timestamp time.Time `json:"timestamp"`
	Type      RolloutItemType `json:"type"`

	SessionMeta  *SessionMetaLine `json:"session_meta,omitempty"`
	TurnContext  *TurnContext     `json:"turn_context,omitempty"`
	ResponseItem *ResponseItem    `json:"response_item,omitempty"`
	EventMsg     *EventMsgLine    `json:"event_msg,omitempty"`
	Compacted    *CompactedLine   `json:"compacted,omitempty"`
}

// NewSessionMetaRollout builds the header line written at thread creation.
func NewSessionMetaRollout(threadID ThreadID, cwd, model string, createdAt time.Time) RolloutItem {
	return RolloutItem{
		Timestamp: createdAt,
		Type:      RolloutSessionMeta,
		SessionMeta: &SessionMetaLine{
			ThreadID:  threadID,
			CreatedAt: createdAt,
			Cwd:       cwd,
			Model:     model,
		},
	}
}

// NewResponseItemRollout wraps a transcript entry for persistence.
func NewResponseItemRollout(item ResponseItem, at time.Time) RolloutItem {
	return RolloutItem{Timestamp: at, Type: RolloutResponseItem, ResponseItem: &item}
}

// NewTurnContextRollout records a (possibly changed) turn context.
func NewTurnContextRollout(tc TurnContext, at time.Time) RolloutItem {
	return RolloutItem{Timestamp: at, Type: RolloutTurnContext, TurnContext: &tc}
}

// NewCompactedRollout records a compaction event.
func NewCompactedRollout(summary string, remote bool, at time.Time) RolloutItem {
	return RolloutItem{
		Timestamp: at,
		Type:      RolloutCompacted,
		Compacted: &CompactedLine{Summary: summary, RemoteCompact: remote},
	}
}
