package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wardenhq/warden/internal/event"
	"github.com/wardenhq/warden/internal/hook"
	"github.com/wardenhq/warden/internal/runtime"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/pkg/types"
)

// consumeStream ingests one turn's event stream: assistant text becomes
// sequenced messages, tool-use/tool-result pairs become ToolCall records
// matched by tool-use id, and the terminal result fills the turn usage.
func (o *Orchestrator) consumeStream(ctx context.Context, sessionID string, stream *runtime.EventStream) (*TurnResult, error) {
	turn := &TurnResult{SessionID: sessionID}

	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return turn, nil
		}
		if err != nil {
			return nil, fmt.Errorf("runtime stream: %w", err)
		}

		switch e := ev.(type) {
		case runtime.AssistantTextEvent:
			if _, err := o.appendMessage(ctx, sessionID, types.RoleAssistant, e.Text); err != nil {
				return nil, fmt.Errorf("persisting assistant message: %w", err)
			}
			turn.Messages++
			turn.Reply = e.Text

		case runtime.ToolUseEvent:
			if err := o.openToolCall(ctx, sessionID, e); err != nil {
				return nil, err
			}
			turn.ToolCalls++

		case runtime.ToolResultEvent:
			if err := o.resolveToolCall(ctx, sessionID, e); err != nil {
				return nil, err
			}

		case runtime.ResultEvent:
			turn.Turns += e.Turns
			turn.InputTokens += e.InputTokens
			turn.OutputTokens += e.OutputTokens
			turn.CostUSD += e.CostUSD
			turn.IsError = e.IsError
			if turn.Reply == "" {
				turn.Reply = e.Result
			}

		default:
			o.log.Debug().
				Str("sessionID", sessionID).
				Msgf("ignoring runtime event %T", ev)
		}
	}
}

// openToolCall records a pending ToolCall for a tool-use event.
func (o *Orchestrator) openToolCall(ctx context.Context, sessionID string, e runtime.ToolUseEvent) error {
	call := &types.ToolCall{
		SessionID: sessionID,
		ToolUseID: e.ToolUseID,
		Name:      e.Name,
		Input:     e.Input,
		Status:    types.ToolCallPending,
	}
	if err := o.store.CreateToolCall(ctx, call); err != nil {
		return fmt.Errorf("recording tool call: %w", err)
	}

	event.Publish(event.Event{
		Type:      event.ToolCallUpdated,
		SessionID: sessionID,
		Data:      event.ToolCallUpdatedData{Info: call},
	})
	return nil
}

// resolveToolCall matches a tool-result to its pending ToolCall and
// resolves it, then runs the PostToolUse hooks. A result with no
// matching pending call is logged and discarded.
func (o *Orchestrator) resolveToolCall(ctx context.Context, sessionID string, e runtime.ToolResultEvent) error {
	call, err := o.store.GetPendingToolCall(ctx, sessionID, e.ToolUseID)
	if errors.Is(err, store.ErrNotFound) {
		o.log.Warn().
			Str("sessionID", sessionID).
			Str("toolUseID", e.ToolUseID).
			Msg("tool result without matching pending call, discarding")
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up pending tool call: %w", err)
	}

	now := time.Now().UnixMilli()
	output := e.Output
	call.Output = &output
	call.Resolved = &now
	call.DurationMS = now - call.Created
	switch {
	case e.Denied:
		call.Status = types.ToolCallDenied
	case e.IsError:
		call.Status = types.ToolCallError
	default:
		call.Status = types.ToolCallSuccess
	}

	if err := o.store.UpdateToolCall(ctx, call); err != nil {
		return fmt.Errorf("resolving tool call: %w", err)
	}

	event.Publish(event.Event{
		Type:      event.ToolCallUpdated,
		SessionID: sessionID,
		Data:      event.ToolCallUpdatedData{Info: call},
	})

	o.hooks.Execute(ctx, &hook.Event{
		Type:       hook.PostToolUse,
		SessionID:  sessionID,
		ToolName:   call.Name,
		ToolUseID:  call.ToolUseID,
		ToolInput:  call.Input,
		ToolOutput: e.Output,
	})
	return nil
}
