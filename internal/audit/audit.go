// Package audit appends compliance events to the store. Writes are
// best-effort: a failed append is logged and swallowed so that auditing
// never blocks or fails the operation being audited.
package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/pkg/types"
)

// Event types recorded by the engine.
const (
	TypeSessionCreated  = "session.created"
	TypeSessionStatus   = "session.status"
	TypeSessionForked   = "session.forked"
	TypeSessionArchived = "session.archived"
	TypeClientConnected = "client.connected"
	TypeClientClosed    = "client.disconnected"
	TypePolicyDecision  = "policy.decision"
	TypeHookError       = "hook.error"
	TypeArchiveResult   = "archive.result"
)

// Recorder writes audit events. A nil Recorder is valid and records nothing.
type Recorder struct {
	store store.Store
	log   zerolog.Logger
}

func New(s store.Store) *Recorder {
	return &Recorder{
		store: s,
		log:   logging.Component("audit"),
	}
}

// Log appends an audit event. sessionID may be empty for engine-level
// events. Failures are logged, never returned.
func (r *Recorder) Log(ctx context.Context, eventType, sessionID string, details map[string]any) {
	if r == nil || r.store == nil {
		return
	}

	ev := &types.AuditEvent{
		Type:    eventType,
		Details: details,
	}
	if sessionID != "" {
		ev.SessionID = &sessionID
	}

	if err := r.store.AppendAuditEvent(ctx, ev); err != nil {
		r.log.Warn().Err(err).
			Str("type", eventType).
			Str("sessionID", sessionID).
			Msg("failed to append audit event")
	}
}
