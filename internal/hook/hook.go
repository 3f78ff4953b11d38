// Package hook runs registered side-effecting observers for session
// lifecycle events. Hooks observe and annotate; they run regardless of
// policy verdicts, and a failing hook never blocks the tool call or the
// other hooks.
package hook

import "context"

// EventType names a lifecycle event hooks can subscribe to.
type EventType string

const (
	PreToolUse       EventType = "PreToolUse"
	PostToolUse      EventType = "PostToolUse"
	UserPromptSubmit EventType = "UserPromptSubmit"
	Stop             EventType = "Stop"
	SubagentStop     EventType = "SubagentStop"
	PreCompact       EventType = "PreCompact"
)

// AllEvents lists every lifecycle event, in firing order over a typical
// turn.
var AllEvents = []EventType{
	UserPromptSubmit,
	PreToolUse,
	PostToolUse,
	Stop,
	SubagentStop,
	PreCompact,
}

// Event is the payload delivered to hooks. Fields are populated per event
// type: tool fields for PreToolUse/PostToolUse, Prompt for
// UserPromptSubmit. Extra carries open-ended passthrough data, e.g. for a
// webhook receiver.
type Event struct {
	Type       EventType      `json:"event"`
	SessionID  string         `json:"sessionID"`
	ToolName   string         `json:"toolName,omitempty"`
	ToolUseID  string         `json:"toolUseID,omitempty"`
	ToolInput  map[string]any `json:"toolInput,omitempty"`
	ToolOutput string         `json:"toolOutput,omitempty"`
	Prompt     string         `json:"prompt,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Result is the merged output of a pipeline run. Hooks contribute keys;
// later hooks may overwrite earlier ones.
type Result map[string]any

// Continue reports whether processing should proceed. Only an explicit
// false stops it.
func (r Result) Continue() bool {
	c, ok := r["continue"].(bool)
	return !ok || c
}

// Reason returns the result's reason string, if a hook set one.
func (r Result) Reason() string {
	s, _ := r["reason"].(string)
	return s
}

// Hook is one observer. Run returns a map merged into the pipeline
// result; returning nil contributes nothing. Setting "continue" to false
// stops subsequent hooks for this event.
type Hook interface {
	Name() string
	// Priority orders execution; lower runs first.
	Priority() int
	Run(ctx context.Context, ev *Event) (Result, error)
}
