package event

import "github.com/wardenhq/warden/pkg/types"

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	Info *types.Session `json:"info"`
}

// SessionStatusData is the data for session.status events.
type SessionStatusData struct {
	SessionID string              `json:"sessionID"`
	From      types.SessionStatus `json:"from"`
	To        types.SessionStatus `json:"to"`
}

// SessionForkedData is the data for session.forked events.
type SessionForkedData struct {
	ParentID string         `json:"parentID"`
	Info     *types.Session `json:"info"`
}

// SessionArchivedData is the data for session.archived events.
type SessionArchivedData struct {
	SessionID string                 `json:"sessionID"`
	Archive   *types.ArchiveMetadata `json:"archive,omitempty"`
}

// MessageCreatedData is the data for message.created events.
type MessageCreatedData struct {
	Info *types.Message `json:"info"`
}

// ToolCallUpdatedData is the data for toolcall.updated events, published
// both when a call is opened and when it resolves.
type ToolCallUpdatedData struct {
	Info *types.ToolCall `json:"info"`
}

// PolicyDecidedData is the data for policy.decided events.
type PolicyDecidedData struct {
	Info *types.PolicyDecision `json:"info"`
}

// HookExecutedData is the data for hook.executed events, the broadcast
// form of one lifecycle event delivered to the hook pipeline.
type HookExecutedData struct {
	Event     string         `json:"event"`
	SessionID string         `json:"sessionID"`
	ToolName  string         `json:"toolName,omitempty"`
	ToolUseID string         `json:"toolUseID,omitempty"`
	Prompt    string         `json:"prompt,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}
