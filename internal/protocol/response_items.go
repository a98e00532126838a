package protocol

// ResponseItemType tags the variant carried by a ResponseItem.
type ResponseItemType string

const (
	ResponseItemMessage              ResponseItemType = "message"
	ResponseItemReasoning            ResponseItemType = "reasoning"
	ResponseItemFunctionCall         ResponseItemType = "function_call"
	ResponseItemFunctionCallOutput   ResponseItemType = "function_call_output"
	ResponseItemCustomToolCall       ResponseItemType = "custom_tool_call"
	ResponseItemCustomToolCallOutput ResponseItemType = "custom_tool_call_output"
	ResponseItemLocalShellCall       ResponseItemType = "local_shell_call"
	ResponseItemWebSearchCall        ResponseItemType = "web_search_call"
	ResponseItemCompaction           ResponseItemType = "compaction"
	ResponseItemGhostSnapshot        ResponseItemType = "ghost_snapshot"
)

// ContentItemType tags the variant carried by a ContentItem.
type ContentItemType string

const (
	ContentInputText  ContentItemType = "input_text"
	ContentOutputText ContentItemType = "output_text"
	ContentInputImage ContentItemType = "input_image"
)

// ContentItem is one piece of a Message's content array.
type ContentItem struct {
	Type ContentItemType `json:"type"`
	Text string          `json:"text,omitempty"`
	// ImageURL carries a data: URL or a remote URL for ContentInputImage.
	ImageURL string `json:"image_url,omitempty"`
}

// Role identifies the speaker of a MessageItem.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageItem is a plain turn of conversation (user input or assistant
// text output).
type MessageItem struct {
	Role    Role          `json:"role"`
	Content []ContentItem `json:"content"`
	// Scaffolding marks a user-role message injected by the runtime itself
	// rather than typed by a human — user-instructions, skill-instructions,
	// environment-context, or a shell-command preamble. Thread rollback
	// points are keyed to genuine user turns, so scaffolding messages are
	// excluded from the user-turn-boundary rule.
	Scaffolding bool `json:"scaffolding,omitempty"`
}

// ReasoningItem carries a model's chain-of-thought, possibly with an
// encrypted/opaque payload the provider returns for later replay.
type ReasoningItem struct {
	Summary          []ContentItem `json:"summary,omitempty"`
	EncryptedContent []byte        `json:"encrypted_content,omitempty"`
}

// FunctionCallItem is a request from the model to invoke a named tool.
type FunctionCallItem struct {
	CallID    CallID `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionCallOutputItem is the result fed back to the model for a prior
// FunctionCallItem with the same CallID.
type FunctionCallOutputItem struct {
	CallID CallID `json:"call_id"`
	Output string `json:"output"`
	Error  bool   `json:"error,omitempty"`
}

// CustomToolCallItem mirrors FunctionCallItem for providers whose wire
// format distinguishes "custom" tools (freeform input) from JSON-schema
// function tools.
type CustomToolCallItem struct {
	CallID CallID `json:"call_id"`
	Name   string `json:"name"`
	Input  string `json:"input"`
}

// CustomToolCallOutputItem pairs with CustomToolCallItem.
type CustomToolCallOutputItem struct {
	CallID CallID `json:"call_id"`
	Output string `json:"output"`
}

// LocalShellCallItem is a provider-native shell-execution request (as
// opposed to a tool the orchestrator dispatches itself).
type LocalShellCallItem struct {
	CallID  CallID   `json:"call_id"`
	Command []string `json:"command"`
	Status  string   `json:"status"`
}

// WebSearchCallItem records a provider-native web search invocation.
type WebSearchCallItem struct {
	CallID CallID `json:"call_id"`
	Query  string `json:"query"`
}

// CompactionItem is a synthetic record marking that the context manager
// replaced a span of transcript with a summary.
type CompactionItem struct {
	Summary        string `json:"summary"`
	ReplacedItems  int    `json:"replaced_items"`
	TokensBefore   int    `json:"tokens_before"`
	TokensAfter    int    `json:"tokens_after"`
	RemoteCompact  bool   `json:"remote_compact"`
}

// GhostSnapshotItem records a point-in-time workspace snapshot taken
// outside the model's visible transcript (used for rollback safety, not
// shown to the model).
type GhostSnapshotItem struct {
	SnapshotID string `json:"snapshot_id"`
}

// ResponseItem is a tagged union over every transcript entry variant the
// model-facing history can hold. Exactly one of the pointer fields
// matching Type is non-nil; this mirrors the "Kind string + payload"
// envelope idiom used throughout this codebase's wire types rather than a
// closed Go sum type, since Go has none.
type ResponseItem struct {
	Type ResponseItemType `json:"type"`

	Message              *MessageItem              `json:"message,omitempty"`
	Reasoning            *ReasoningItem            `json:"reasoning,omitempty"`
	FunctionCall         *FunctionCallItem         `json:"function_call,omitempty"`
	FunctionCallOutput   *FunctionCallOutputItem   `json:"function_call_output,omitempty"`
	CustomToolCall       *CustomToolCallItem       `json:"custom_tool_call,omitempty"`
	CustomToolCallOutput *CustomToolCallOutputItem `json:"custom_tool_call_output,omitempty"`
	LocalShellCall       *LocalShellCallItem       `json:"local_shell_call,omitempty"`
	WebSearchCall        *WebSearchCallItem        `json:"web_search_call,omitempty"`
	Compaction           *CompactionItem           `json:"compaction,omitempty"`
	GhostSnapshot        *GhostSnapshotItem        `json:"ghost_snapshot,omitempty"`
}

// IsCallItem reports whether the item is a call awaiting a paired output
// (FunctionCall or CustomToolCall), used by the context manager's
// call/output pairing invariant.
func (r ResponseItem) IsCallItem() bool {
	return r.Type == ResponseItemFunctionCall || r.Type == ResponseItemCustomToolCall
}

// IsOutputItem reports whether the item is an output paired to a prior
// call item.
func (r ResponseItem) IsOutputItem() bool {
	return r.Type == ResponseItemFunctionCallOutput || r.Type == ResponseItemCustomToolCallOutput
}

// CallID returns the call identifier carried by a call or output item, and
// false for any other item type.
func (r ResponseItem) CallID() (CallID, bool) {
	switch r.Type {
	case ResponseItemFunctionCall:
		return r.FunctionCall.CallID, true
	case ResponseItemCustomToolCall:
		return r.CustomToolCall.CallID, true
	case ResponseItemFunctionCallOutput:
		return r.FunctionCallOutput.CallID, true
	case ResponseItemCustomToolCallOutput:
		return r.CustomToolCallOutput.CallID, true
	default:
		return "", false
	}
}

// NewUserMessage builds a user-role ResponseItem carrying plain text.
func NewUserMessage(text string) ResponseItem {
	return ResponseItem{
		Type: ResponseItemMessage,
		Message: &MessageItem{
			Role:    RoleUser,
			Content: []ContentItem{{Type: ContentInputText, Text: text}},
		},
	}
}

// NewScaffoldingUserMessage builds a user-role ResponseItem injected by the
// runtime (not typed by a human) — excluded from the user-turn-boundary
// rule used for rollback/fork points.
func NewScaffoldingUserMessage(text string) ResponseItem {
	return ResponseItem{
		Type: ResponseItemMessage,
		Message: &MessageItem{
			Role:        RoleUser,
			Content:     []ContentItem{{Type: ContentInputText, Text: text}},
			Scaffolding: true,
		},
	}
}

// IsUserTurnBoundary reports whether this item marks the start of a
// genuine (non-scaffolding) user turn.
func (r ResponseItem) IsUserTurnBoundary() bool {
	return r.Type == ResponseItemMessage && r.Message != nil && r.Message.Role == RoleUser && !r.Message.Scaffolding
}

// NewAssistantMessage builds an assistant-role ResponseItem carrying plain
// text.
func NewAssistantMessage(text string) ResponseItem {
	return ResponseItem{
		Type: ResponseItemMessage,
		Message: &MessageItem{
			Role:    RoleAssistant,
			Content: []ContentItem{{Type: ContentOutputText, Text: text}},
		},
	}
}

// NewFunctionCall builds a FunctionCall ResponseItem.
func NewFunctionCall(callID CallID, name, arguments string) ResponseItem {
	return ResponseItem{
		Type:         ResponseItemFunctionCall,
		FunctionCall: &FunctionCallItem{CallID: callID, Name: name, Arguments: arguments},
	}
}

// NewFunctionCallOutput builds a FunctionCallOutput ResponseItem paired to
// callID.
func NewFunctionCallOutput(callID CallID, output string, isErr bool) ResponseItem {
	return ResponseItem{
		Type: ResponseItemFunctionCallOutput,
		FunctionCallOutput: &FunctionCallOutputItem{
			CallID: callID,
			Output: output,
			Error:  isErr,
		},
	}
}
