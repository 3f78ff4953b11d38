package types

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry in a session's conversation, ordered by Seq.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Seq       int64  `json:"seq"`
	Role      string `json:"role"` // "user" | "assistant" | "system"
	Content   string `json:"content"`
	Created   int64  `json:"created"`
}

// ToolCallStatus is the lifecycle state of a single tool invocation.
type ToolCallStatus string

const (
	ToolCallPending ToolCallStatus = "pending"
	ToolCallRunning ToolCallStatus = "running"
	ToolCallSuccess ToolCallStatus = "success"
	ToolCallError   ToolCallStatus = "error"
	ToolCallDenied  ToolCallStatus = "denied"
)

// ToolCall records a tool invocation requested by the runtime. It is created
// when the tool-use event arrives and resolved exactly once when the matching
// tool-result event (same ToolUseID) arrives.
type ToolCall struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	MessageID string         `json:"messageID,omitempty"`
	ToolUseID string         `json:"toolUseID"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input,omitempty"`
	Output    *string        `json:"output,omitempty"`
	Status    ToolCallStatus `json:"status"`
	Created   int64          `json:"created"`
	Resolved  *int64         `json:"resolved,omitempty"`
	// DurationMS is Resolved - Created, filled on resolution.
	DurationMS int64 `json:"durationMs,omitempty"`
}
