// Package runtime defines the boundary to the external agent runtime. The
// engine treats the runtime as opaque: it connects with a configuration and
// two callbacks, submits prompts, and consumes typed event streams.
package runtime

import (
	"context"

	"github.com/wardenhq/warden/pkg/types"
)

// Authorization is the verdict an Authorize callback returns for one tool
// invocation.
type Authorization struct {
	Allow  bool
	Reason string
}

// AuthorizeFunc decides whether the runtime may invoke a tool. The runtime
// calls it before every tool use; a deny resolves the tool use with an
// error result instead of executing it.
type AuthorizeFunc func(ctx context.Context, tool string, input map[string]any) Authorization

// NotifyFunc receives runtime-initiated lifecycle notifications that have
// no stream counterpart, such as a subagent stopping or an imminent
// context compaction.
type NotifyFunc func(ctx context.Context, event string, data map[string]any)

// ConnectOptions configures a new runtime connection.
type ConnectOptions struct {
	Model           string
	SystemPrompt    string
	AllowedTools    []string
	DisallowedTools []string
	PermissionMode  types.PermissionMode
	Directory       string
	MCPServers      map[string]types.MCPServerConfig

	Authorize AuthorizeFunc
	Notify    NotifyFunc
}

// Runtime is the external agent runtime.
type Runtime interface {
	// Connect opens a session-scoped connection. Transient failures are
	// reported as *ConnectError and may be retried by the caller.
	Connect(ctx context.Context, opts ConnectOptions) (Conn, error)
}

// Conn is the single live handle to the runtime for one session.
type Conn interface {
	// Query submits a prompt and returns the stream of events for the
	// resulting turn. The stream ends with io.EOF.
	Query(ctx context.Context, prompt string) (*EventStream, error)

	// Close tears down the connection.
	Close() error
}

// ConnectError marks a transient connection failure eligible for retry.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return "runtime connect: " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Event is a typed notification from the runtime stream.
type Event interface {
	runtimeEvent()
}

// AssistantTextEvent carries assistant output text.
type AssistantTextEvent struct {
	Text string
}

// ToolUseEvent announces a tool invocation.
type ToolUseEvent struct {
	ToolUseID string
	Name      string
	Input     map[string]any
}

// ToolResultEvent resolves a prior tool use with the same ToolUseID.
// Denied is set when the authorization callback rejected the invocation;
// denied results always carry IsError.
type ToolResultEvent struct {
	ToolUseID string
	Output    string
	IsError   bool
	Denied    bool
}

// ResultEvent ends a turn with usage accounting.
type ResultEvent struct {
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	Turns        int
	Result       string
	IsError      bool
}

func (AssistantTextEvent) runtimeEvent() {}
func (ToolUseEvent) runtimeEvent()       {}
func (ToolResultEvent) runtimeEvent()    {}
func (ResultEvent) runtimeEvent()        {}
