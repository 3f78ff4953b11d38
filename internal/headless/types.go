package headless

import (
	"io"
	"time"

	"github.com/wardenhq/warden/internal/runtime"
	"github.com/wardenhq/warden/pkg/types"
)

// OutputFormat selects how a headless run writes its output.
type OutputFormat string

const (
	// OutputText streams human-readable progress lines.
	OutputText OutputFormat = "text"
	// OutputJSON prints a single JSON summary at the end.
	OutputJSON OutputFormat = "json"
	// OutputJSONL streams one JSON event per line.
	OutputJSONL OutputFormat = "jsonl"
)

// ExitCode is the process exit code of a headless run.
type ExitCode int

const (
	// ExitSuccess means the turn completed without error.
	ExitSuccess ExitCode = 0
	// ExitError indicates the turn failed, was rejected or timed out.
	ExitError ExitCode = 1
	// ExitInvalidInput indicates a bad prompt or unusable configuration.
	ExitInvalidInput ExitCode = 2
)

// Config holds configuration for a headless run.
type Config struct {
	// Prompt is the instruction to send.
	Prompt string
	// WorkDir is the session working directory.
	WorkDir string
	// ConfigFile is an explicit config file (--config).
	ConfigFile string
	// OutputFormat specifies the output format (text, json, jsonl).
	OutputFormat OutputFormat
	// Timeout bounds the whole run. Zero means no bound.
	Timeout time.Duration
	// ReadStdin appends a prompt read from Stdin.
	ReadStdin bool
	// Stdin is the reader used with ReadStdin. Defaults to os.Stdin.
	Stdin io.Reader
	// Model overrides the configured runtime model.
	Model string
	// Scenario overrides the configured scripted-runtime scenario file.
	Scenario string
	// Title is an optional session title.
	Title string
	// Archive archives the working directory after completion.
	Archive bool
	// Quiet suppresses progress output, only shows the reply.
	Quiet bool
	// Verbose shows all events.
	Verbose bool

	// Runtime lets callers inject a runtime. Nil selects the scripted
	// runtime built from the configured scenario.
	Runtime runtime.Runtime

	// LogOverride wins over the configuration file's log section. The
	// CLI sets it when explicit logging flags were given.
	LogOverride *types.LogConfig
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OutputFormat: OutputText,
		Timeout:      10 * time.Minute,
	}
}

// ToolCallSummary is one tool call in the result.
type ToolCallSummary struct {
	Tool       string `json:"tool"`
	Input      any    `json:"input,omitempty"`
	Status     string `json:"status"`
	Output     string `json:"output,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Result holds the final result of a headless run.
type Result struct {
	SessionID    string                 `json:"session_id"`
	Status       string                 `json:"status"` // "success", "error", "rejected", "timeout"
	Model        string                 `json:"model,omitempty"`
	DurationMS   int64                  `json:"duration_ms"`
	Turns        int                    `json:"turns"`
	InputTokens  int64                  `json:"input_tokens"`
	OutputTokens int64                  `json:"output_tokens"`
	CostUSD      float64                `json:"cost_usd"`
	ToolCalls    []ToolCallSummary      `json:"tool_calls,omitempty"`
	Reply        string                 `json:"reply,omitempty"`
	Archive      *types.ArchiveMetadata `json:"archive,omitempty"`
	Error        string                 `json:"error,omitempty"`
	ExitCode     ExitCode               `json:"exit_code"`
}

// Event is one line of jsonl output.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"ts"`
	Data      any       `json:"data"`
}

// NewEvent stamps data with the current time.
func NewEvent(eventType string, data any) *Event {
	return &Event{Type: eventType, Timestamp: time.Now(), Data: data}
}
