package hook

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/pkg/types"
)

// Pipeline dispatches lifecycle events to the hooks registered for them.
// Execution order is by ascending priority; registration order breaks
// ties.
type Pipeline struct {
	store store.Store
	log   zerolog.Logger

	mu    sync.RWMutex
	hooks map[EventType][]Hook
}

// NewPipeline creates an empty pipeline. The store receives one
// HookExecutionRecord per hook invocation; a nil store disables
// recording.
func NewPipeline(st store.Store) *Pipeline {
	return &Pipeline{
		store: st,
		log:   logging.Component("hook"),
		hooks: make(map[EventType][]Hook),
	}
}

// Register adds a hook for the given event types. Registration happens at
// startup, execution many times, so each slice is kept sorted for reads.
func (p *Pipeline) Register(h Hook, events ...EventType) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ev := range events {
		hooks := append([]Hook{}, p.hooks[ev]...)
		hooks = append(hooks, h)
		sort.SliceStable(hooks, func(i, j int) bool {
			return hooks[i].Priority() < hooks[j].Priority()
		})
		p.hooks[ev] = hooks
	}
}

// Hooks returns the hooks registered for an event type, in execution
// order.
func (p *Pipeline) Hooks(ev EventType) []Hook {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hooks[ev]
}

// Execute runs the hooks registered for ev.Type and returns the merged
// result. The result starts as {continue: true}; a hook setting continue
// to false stops the remaining hooks. A hook error is recorded and
// skipped; it never fails the pipeline.
func (p *Pipeline) Execute(ctx context.Context, ev *Event) Result {
	result := Result{"continue": true}

	hooks := p.Hooks(ev.Type)
	if len(hooks) == 0 {
		return result
	}

	for _, h := range hooks {
		start := time.Now()
		out, err := h.Run(ctx, ev)
		p.record(ctx, h, ev, out, err, time.Since(start))

		if err != nil {
			p.log.Warn().Err(err).
				Str("hook", h.Name()).
				Str("event", string(ev.Type)).
				Str("sessionID", ev.SessionID).
				Msg("hook failed, continuing")
			continue
		}

		for k, v := range out {
			result[k] = v
		}
		if !result.Continue() {
			p.log.Debug().
				Str("hook", h.Name()).
				Str("event", string(ev.Type)).
				Msg("hook stopped the pipeline")
			break
		}
	}

	return result
}

// record appends the HookExecutionRecord for one invocation. Best-effort:
// a persistence failure is logged and swallowed.
func (p *Pipeline) record(ctx context.Context, h Hook, ev *Event, out Result, runErr error, took time.Duration) {
	if p.store == nil {
		return
	}

	rec := &types.HookExecutionRecord{
		SessionID:  ev.SessionID,
		Event:      string(ev.Type),
		HookName:   h.Name(),
		Input:      ev.ToolInput,
		Output:     out,
		DurationMS: took.Milliseconds(),
	}
	if ev.ToolUseID != "" {
		id := ev.ToolUseID
		rec.ToolUseID = &id
	}
	if runErr != nil {
		msg := runErr.Error()
		rec.Error = &msg
	}

	if err := p.store.AppendHookExecution(ctx, rec); err != nil {
		p.log.Warn().Err(err).
			Str("hook", h.Name()).
			Str("sessionID", ev.SessionID).
			Msg("failed to append hook execution")
	}
}
