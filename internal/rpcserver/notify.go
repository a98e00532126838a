package rpcserver

import "github.com/corerun/agentcore/internal/session"

// turnStartedParams mirrors turn/started's payload: just enough to let the
// client correlate the notification with the turn it asked for.
type turnStartedParams struct {
	ThreadID string `json:"thread_id"`
	TurnID   string `json:"turn_id"`
}

type turnCompletedParams struct {
	ThreadID                   string `json:"thread_id"`
	TurnID                     string `json:"turn_id"`
	LastAssistantMessage       string `json:"last_assistant_message"`
	LastAssistantMessageTokens int    `json:"last_assistant_message_tokens"`
	Cancelled                  bool   `json:"cancelled"`
}

type itemParams struct {
	ThreadID string              `json:"thread_id"`
	TurnID   string              `json:"turn_id"`
	Item     interface{}         `json:"item"`
}

type statusChangedParams struct {
	ThreadID string `json:"thread_id"`
	Status   string `json:"status"`
}

type errorParams struct {
	ThreadID string `json:"thread_id"`
	TurnID   string `json:"turn_id"`
	Message  string `json:"message"`
}

// translateEvent maps a session.Event onto its JSON-RPC notification
// method and parameter payload. ok is false for an Event type this server
// does not forward (there are none today, but new EventTypes should fail
// closed rather than panic on a nil Item).
func translateEvent(e session.Event) (method string, params interface{}, ok bool) {
	switch e.Type {
	case session.EventTurnStarted:
		return string(e.Type), turnStartedParams{ThreadID: string(e.ThreadID), TurnID: string(e.TurnID)}, true
	case session.EventTurnCompleted:
		return string(e.Type), turnCompletedParams{
			ThreadID:                   string(e.ThreadID),
			TurnID:                     string(e.TurnID),
			LastAssistantMessage:       e.LastAssistantMessage,
			LastAssistantMessageTokens: e.LastAssistantMessageTokens,
			Cancelled:                  e.Cancelled,
		}, true
	case session.EventItemStarted, session.EventItemCompleted:
		if e.Item == nil {
			return "", nil, false
		}
		return string(e.Type), itemParams{ThreadID: string(e.ThreadID), TurnID: string(e.TurnID), Item: e.Item}, true
	case session.EventStatusChanged:
		return string(e.Type), statusChangedParams{ThreadID: string(e.ThreadID), Status: string(e.Status)}, true
	case session.EventError:
		return string(e.Type), errorParams{ThreadID: string(e.ThreadID), TurnID: string(e.TurnID), Message: e.Message}, true
	default:
		return "", nil, false
	}
}
