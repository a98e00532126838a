// Package session is the Session & Turn Driver (spec.md §4.3): the state
// machine that drives one thread through repeated user turns, dispatching
// tool calls through the orchestrator, persisting every produced item, and
// notifying subscribers of progress.
package session

import "github.com/corerun/agentcore/internal/protocol"

// EventType names one of the server→client notifications spec.md §4.1
// lists.
type EventType string

const (
	EventTurnStarted   EventType = "turn/started"
	EventTurnCompleted EventType = "turn/completed"
	EventItemStarted   EventType = "item/started"
	EventItemCompleted EventType = "item/completed"
	EventStatusChanged EventType = "thread/status/changed"
	EventError         EventType = "error"
)

// Event is the single notification envelope the Session emits; the
// rpcserver package translates one of these into the matching JSON-RPC
// notification frame.
type Event struct {
	Type     EventType
	ThreadID protocol.ThreadID
	TurnID   protocol.TurnID

	Item        *protocol.ThreadItem
	TurnContext *protocol.TurnContext
	Status      protocol.ThreadStatus

	// LastAssistantMessage and Cancelled are carried by turn/completed.
	LastAssistantMessage string
	Cancelled            bool

	// LastAssistantMessageTokens is a tiktoken-backed, human-facing token
	// count for LastAssistantMessage (e.g. for a CLI status line) — a
	// secondary display figure, never the byte-based estimate compaction
	// decisions are made from. See contextmgr.EstimateAuxTokens.
	LastAssistantMessageTokens int

	// Message carries the human-readable text for an error event.
	Message string
}

// Notifier receives every Event a Session produces. Implementations must
// not block the turn loop for long; the app-server front end's
// implementation writes each notification frame straight to its
// transport.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }
