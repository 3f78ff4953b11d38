package headless

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/event"
	"github.com/wardenhq/warden/pkg/types"
)

// Printer handles event output in various formats for headless mode.
// Progress lines are written best-effort as bus events arrive; the
// authoritative reply and summary are printed by PrintFinalResult once
// the run is over.
type Printer struct {
	mu          sync.Mutex
	writer      io.Writer
	format      OutputFormat
	quiet       bool
	verbose     bool
	unsubscribe func()
	sessionID   string
	startTime   time.Time
	result      *Result
	toolCalls   []ToolCallSummary
	closed      bool
}

// NewPrinter creates a printer for one headless run.
func NewPrinter(writer io.Writer, format OutputFormat, quiet, verbose bool) *Printer {
	p := &Printer{
		writer:    writer,
		format:    format,
		quiet:     quiet,
		verbose:   verbose,
		startTime: time.Now(),
	}
	p.result = &Result{Status: "running", ExitCode: ExitSuccess}
	return p
}

// Subscribe starts listening to bus events for the printer's session.
func (p *Printer) Subscribe(sessionID string) {
	p.mu.Lock()
	p.sessionID = sessionID
	p.result.SessionID = sessionID
	p.mu.Unlock()
	p.unsubscribe = event.SubscribeSession(sessionID, p.handleEvent)
}

// Unsubscribe stops listening to events. Once it returns no further
// progress lines are written, even by handlers already in flight.
func (p *Printer) Unsubscribe() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// GetResult returns the current result.
func (p *Printer) GetResult() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Printer) snapshotLocked() *Result {
	p.result.DurationMS = time.Since(p.startTime).Milliseconds()
	p.result.ToolCalls = p.toolCalls
	return p.result
}

// SetResult updates the result with final values.
func (p *Printer) SetResult(status string, exitCode ExitCode, reply string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.result.Status = status
	p.result.ExitCode = exitCode
	p.result.Reply = reply
	if err != nil {
		p.result.Error = err.Error()
	}
	p.result.DurationMS = time.Since(p.startTime).Milliseconds()
}

// SetModel records the runtime model in the result.
func (p *Printer) SetModel(model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Model = model
}

// SetUsage records the turn usage in the result.
func (p *Printer) SetUsage(turns int, inputTokens, outputTokens int64, costUSD float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Turns = turns
	p.result.InputTokens = inputTokens
	p.result.OutputTokens = outputTokens
	p.result.CostUSD = costUSD
}

// SetArchive records the archive outcome in the result.
func (p *Printer) SetArchive(meta *types.ArchiveMetadata) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Archive = meta
}

// PrintFinalResult prints the reply and run summary. Called once by the
// runner after the turn completes; unlike the event handlers it is
// synchronous and always observed by the caller.
func (p *Printer) PrintFinalResult() {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := p.snapshotLocked()

	switch p.format {
	case OutputText:
		if result.Reply != "" {
			fmt.Fprintln(p.writer, result.Reply)
		}
		if p.quiet {
			return
		}
		if result.Error != "" {
			fmt.Fprintf(p.writer, "[error] %s\n", result.Error)
		}
		fmt.Fprintf(p.writer, "[done] session %s %s in %s (input: %d tokens, output: %d tokens)\n",
			shortID(result.SessionID), result.Status, formatDuration(time.Duration(result.DurationMS)*time.Millisecond),
			result.InputTokens, result.OutputTokens)
		if result.Archive != nil {
			fmt.Fprintf(p.writer, "[archive] %s: %s\n", result.Archive.Status, result.Archive.Path)
		}

	case OutputJSON:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return
		}
		fmt.Fprintln(p.writer, string(data))

	case OutputJSONL:
		data, err := json.Marshal(NewEvent("result", result))
		if err != nil {
			return
		}
		fmt.Fprintln(p.writer, string(data))
	}
}

// handleEvent processes incoming bus events according to the format.
func (p *Printer) handleEvent(e event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.trackEvent(e)

	switch p.format {
	case OutputText:
		p.handleTextEvent(e)
	case OutputJSONL:
		p.handleJSONLEvent(e)
	}
}

// handleTextEvent outputs progress lines in human-readable text format.
func (p *Printer) handleTextEvent(e event.Event) {
	if p.quiet {
		return
	}

	switch e.Type {
	case event.SessionStatus:
		if data, ok := e.Data.(event.SessionStatusData); ok && p.verbose {
			fmt.Fprintf(p.writer, "[status] %s -> %s\n", data.From, data.To)
		}

	case event.ToolCallUpdated:
		if data, ok := e.Data.(event.ToolCallUpdatedData); ok && data.Info != nil {
			p.handleToolCallText(data.Info)
		}

	case event.PolicyDecided:
		if data, ok := e.Data.(event.PolicyDecidedData); ok && data.Info != nil && p.verbose {
			dec := data.Info
			fmt.Fprintf(p.writer, "[policy] %s %s (%s)", dec.Decision, dec.Tool, dec.DecidedBy)
			if dec.Reason != "" {
				fmt.Fprintf(p.writer, ": %s", dec.Reason)
			}
			fmt.Fprintln(p.writer)
		}

	case event.HookExecuted:
		if data, ok := e.Data.(event.HookExecutedData); ok && p.verbose {
			fmt.Fprintf(p.writer, "[hook] %s\n", data.Event)
		}
	}
}

// handleToolCallText outputs tool call progress in text format.
func (p *Printer) handleToolCallText(call *types.ToolCall) {
	switch call.Status {
	case types.ToolCallPending:
		info := formatToolInfo(call.Name, call.Input)
		if info != "" {
			fmt.Fprintf(p.writer, "[tool:%s] %s\n", call.Name, info)
		} else {
			fmt.Fprintf(p.writer, "[tool:%s] Running...\n", call.Name)
		}
	case types.ToolCallSuccess:
		if p.verbose {
			fmt.Fprintf(p.writer, "[tool:%s] Done (%dms)\n", call.Name, call.DurationMS)
		}
	case types.ToolCallDenied:
		fmt.Fprintf(p.writer, "[tool:%s] Denied: %s\n", call.Name, derefOutput(call))
	case types.ToolCallError:
		fmt.Fprintf(p.writer, "[tool:%s] Error: %s\n", call.Name, clip(derefOutput(call), 200))
	}
}

// handleJSONLEvent outputs events in JSONL format.
func (p *Printer) handleJSONLEvent(e event.Event) {
	if !p.verbose && !isImportantEvent(e.Type) {
		return
	}

	data, err := json.Marshal(NewEvent(string(e.Type), e.Data))
	if err != nil {
		return
	}
	fmt.Fprintln(p.writer, string(data))
}

// trackEvent folds events into the final result.
func (p *Printer) trackEvent(e event.Event) {
	if e.Type != event.ToolCallUpdated {
		return
	}
	data, ok := e.Data.(event.ToolCallUpdatedData)
	if !ok || data.Info == nil || data.Info.Status == types.ToolCallPending {
		return
	}

	p.toolCalls = append(p.toolCalls, ToolCallSummary{
		Tool:       data.Info.Name,
		Input:      data.Info.Input,
		Status:     string(data.Info.Status),
		Output:     clip(derefOutput(data.Info), 500),
		DurationMS: data.Info.DurationMS,
	})
}

// Helper functions

func derefOutput(call *types.ToolCall) string {
	if call.Output == nil {
		return ""
	}
	return *call.Output
}

// shortID trims session ids for progress lines.
func shortID(id string) string {
	const n = 12
	if len(id) <= n {
		return id
	}
	return id[:n]
}

// clip bounds tool output carried in progress lines and summaries.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func formatDuration(d time.Duration) string {
	if d >= time.Minute {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// formatToolInfo produces a one-line summary of a tool invocation.
func formatToolInfo(tool string, input map[string]any) string {
	str := func(key string) string {
		s, _ := input[key].(string)
		return s
	}

	switch tool {
	case "bash":
		if cmd := str("command"); cmd != "" {
			cmd, _, _ = strings.Cut(cmd, "\n")
			return "$ " + clip(cmd, 60)
		}
	case "read":
		if path := str("file_path"); path != "" {
			return "Reading " + path
		}
	case "write":
		if path := str("file_path"); path != "" {
			return "Writing " + path
		}
	case "edit":
		if path := str("file_path"); path != "" {
			return "Editing " + path
		}
	case "glob", "grep":
		if pattern := str("pattern"); pattern != "" {
			return "Searching: " + pattern
		}
	}

	return ""
}

func isImportantEvent(eventType event.EventType) bool {
	switch eventType {
	case event.SessionCreated,
		event.SessionStatus,
		event.MessageCreated,
		event.ToolCallUpdated,
		event.PolicyDecided,
		event.SessionArchived:
		return true
	default:
		return false
	}
}
