package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/wardenhq/warden/internal/event"
	"github.com/wardenhq/warden/internal/hook"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/pool"
	"github.com/wardenhq/warden/internal/runtime"
	"github.com/wardenhq/warden/internal/session"
	"github.com/wardenhq/warden/pkg/types"
)

// TurnResult summarizes one completed send-message turn.
type TurnResult struct {
	SessionID    string
	Reply        string
	Messages     int
	ToolCalls    int
	Turns        int
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	IsError      bool
}

// SendMessage runs the send-message protocol: ensure the session is
// connected, transition it to PROCESSING, submit the prompt and ingest
// the resulting event stream. On success the session returns to ACTIVE;
// on any failure after the status gate it transitions to FAILED with the
// error persisted, and the error is returned without automatic retry.
func (o *Orchestrator) SendMessage(ctx context.Context, sessionID, content string) (*TurnResult, error) {
	if !o.beginSend(sessionID) {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, sessionID)
	}
	defer o.endSend(sessionID)

	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sendable(sess.Status) {
		return nil, notActive(sessionID, sess.Status)
	}

	if sess.Status == types.StatusCreated {
		if sess, err = o.sessions.Transition(ctx, sessionID, types.StatusConnecting); err != nil {
			return nil, err
		}
	}
	if sess.Status == types.StatusConnecting {
		if sess, err = o.connect(ctx, sess); err != nil {
			return nil, err
		}
	}

	if _, err = o.sessions.Transition(ctx, sessionID, types.StatusProcessing); err != nil {
		return nil, err
	}

	res := o.hooks.Execute(ctx, &hook.Event{
		Type:      hook.UserPromptSubmit,
		SessionID: sessionID,
		Prompt:    content,
	})
	if !res.Continue() {
		if _, terr := o.sessions.Transition(ctx, sessionID, types.StatusActive); terr != nil {
			o.log.Error().Err(terr).Str("sessionID", sessionID).Msg("failed to reactivate session after veto")
		}
		reason := res.Reason()
		if reason == "" {
			reason = "no reason given"
		}
		return nil, fmt.Errorf("%w: %s", ErrPromptRejected, reason)
	}

	if _, err := o.appendMessage(ctx, sessionID, types.RoleUser, content); err != nil {
		return nil, o.failTurn(ctx, sessionID, fmt.Errorf("persisting user message: %w", err))
	}

	client, err := o.pool.GetClient(sessionID)
	if err != nil {
		return nil, o.failTurn(ctx, sessionID, err)
	}

	// Disconnecting the client aborts the in-flight turn.
	qctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(client.Context(), cancel)
	defer stop()

	stream, err := client.Query(qctx, content)
	if err != nil {
		return nil, o.failTurn(ctx, sessionID, fmt.Errorf("querying runtime: %w", err))
	}
	defer stream.Close()

	turn, err := o.consumeStream(qctx, sessionID, stream)
	if err != nil {
		return nil, o.failTurn(ctx, sessionID, err)
	}
	turn.Messages++ // the user message

	if err := o.sessions.AddMetrics(ctx, sessionID, session.MetricsDelta{
		Messages:     turn.Messages,
		ToolCalls:    turn.ToolCalls,
		Turns:        turn.Turns,
		InputTokens:  turn.InputTokens,
		OutputTokens: turn.OutputTokens,
		CostUSD:      turn.CostUSD,
	}); err != nil {
		o.log.Warn().Err(err).Str("sessionID", sessionID).Msg("failed to accumulate session metrics")
	}

	if _, err := o.sessions.Transition(ctx, sessionID, types.StatusActive); err != nil {
		return nil, err
	}

	o.hooks.Execute(ctx, &hook.Event{Type: hook.Stop, SessionID: sessionID})
	return turn, nil
}

// connect creates the pooled client for a CONNECTING session and
// transitions it to ACTIVE. A connection failure marks the session
// FAILED.
func (o *Orchestrator) connect(ctx context.Context, sess *types.Session) (*types.Session, error) {
	if _, err := o.pool.GetClient(sess.ID); errors.Is(err, pool.ErrClientNotFound) {
		if _, err := o.pool.CreateClient(ctx, sess, o.authorizer(sess), o.notifier(sess.ID)); err != nil {
			return nil, o.failTurn(ctx, sess.ID, fmt.Errorf("connecting session: %w", err))
		}
	}
	return o.sessions.Transition(ctx, sess.ID, types.StatusActive)
}

// authorizer builds the tool-authorization callback wired into the
// runtime connection: PreToolUse hooks first, then the policy engine.
func (o *Orchestrator) authorizer(sess *types.Session) runtime.AuthorizeFunc {
	sessionID := sess.ID
	directory := sess.Directory

	return func(ctx context.Context, tool string, input map[string]any) runtime.Authorization {
		res := o.hooks.Execute(ctx, &hook.Event{
			Type:      hook.PreToolUse,
			SessionID: sessionID,
			ToolName:  tool,
			ToolInput: input,
		})
		if !res.Continue() {
			reason := res.Reason()
			if reason == "" {
				reason = "blocked by hook"
			}
			return runtime.Authorization{Allow: false, Reason: reason}
		}

		verdict := o.policies.Evaluate(ctx, &policy.Request{
			SessionID: sessionID,
			Tool:      tool,
			Input:     input,
			Directory: directory,
		})
		return runtime.Authorization{Allow: verdict.Allow, Reason: verdict.Reason}
	}
}

// notifier builds the callback for runtime-initiated notifications,
// dispatching them to their hook events.
func (o *Orchestrator) notifier(sessionID string) runtime.NotifyFunc {
	return func(ctx context.Context, name string, data map[string]any) {
		var evType hook.EventType
		switch hook.EventType(name) {
		case hook.SubagentStop:
			evType = hook.SubagentStop
		case hook.PreCompact:
			evType = hook.PreCompact
		default:
			o.log.Debug().
				Str("event", name).
				Str("sessionID", sessionID).
				Msg("ignoring unknown runtime notification")
			return
		}

		o.hooks.Execute(ctx, &hook.Event{
			Type:      evType,
			SessionID: sessionID,
			Extra:     data,
		})
	}
}

// appendMessage persists one conversation message at the next sequence
// number and broadcasts it.
func (o *Orchestrator) appendMessage(ctx context.Context, sessionID, role, content string) (*types.Message, error) {
	seq, err := o.store.NextSequence(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	msg := &types.Message{
		SessionID: sessionID,
		Seq:       seq,
		Role:      role,
		Content:   content,
	}
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	event.Publish(event.Event{
		Type:      event.MessageCreated,
		SessionID: sessionID,
		Data:      event.MessageCreatedData{Info: msg},
	})
	return msg, nil
}
