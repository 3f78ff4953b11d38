// Package orchestrator composes the session service, connection pool,
// policy engine, hook pipeline and archiver into the send-message
// protocol and the session lifecycle operations.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/archive"
	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/event"
	"github.com/wardenhq/warden/internal/hook"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/pool"
	"github.com/wardenhq/warden/internal/session"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/pkg/types"
)

var (
	// ErrSessionNotActive is returned when an operation requires a session
	// that can accept messages.
	ErrSessionNotActive = errors.New("session not active")
	// ErrSessionBusy is returned when a session is already processing a
	// message.
	ErrSessionBusy = errors.New("session busy")
	// ErrPromptRejected is returned when a UserPromptSubmit hook vetoed the
	// prompt.
	ErrPromptRejected = errors.New("prompt rejected by hook")
)

// Orchestrator drives sessions through their lifecycle against the
// external runtime.
type Orchestrator struct {
	sessions *session.Service
	store    store.Store
	pool     *pool.Pool
	policies *policy.Engine
	hooks    *hook.Pipeline
	archiver archive.Archiver
	audit    *audit.Recorder
	log      zerolog.Logger

	mu      sync.Mutex
	sending map[string]bool
}

// New creates the orchestrator.
func New(
	sessions *session.Service,
	st store.Store,
	clients *pool.Pool,
	policies *policy.Engine,
	hooks *hook.Pipeline,
	archiver archive.Archiver,
	rec *audit.Recorder,
) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		store:    st,
		pool:     clients,
		policies: policies,
		hooks:    hooks,
		archiver: archiver,
		audit:    rec,
		log:      logging.Component("orchestrator"),
		sending:  make(map[string]bool),
	}
}

// CreateSession creates a session in CREATED.
func (o *Orchestrator) CreateSession(ctx context.Context, opts session.CreateOptions) (*types.Session, error) {
	return o.sessions.Create(ctx, opts)
}

// Session returns the current session record.
func (o *Orchestrator) Session(ctx context.Context, sessionID string) (*types.Session, error) {
	return o.sessions.Get(ctx, sessionID)
}

// Fork creates a new session from the parent's configuration. The fork
// starts with an empty conversation; parent history is not replayed into
// the new connection.
func (o *Orchestrator) Fork(ctx context.Context, parentID string) (*types.Session, error) {
	return o.sessions.Fork(ctx, parentID)
}

// Pause suspends an active session.
func (o *Orchestrator) Pause(ctx context.Context, sessionID string) (*types.Session, error) {
	return o.sessions.Transition(ctx, sessionID, types.StatusPaused)
}

// Resume reactivates a paused session.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (*types.Session, error) {
	return o.sessions.Transition(ctx, sessionID, types.StatusActive)
}

// Terminate ends a session and disconnects its pooled client. Only legal
// from non-terminal states that allow termination; a processing session
// must finish or fail first.
func (o *Orchestrator) Terminate(ctx context.Context, sessionID string) (*types.Session, error) {
	sess, err := o.sessions.Transition(ctx, sessionID, types.StatusTerminated)
	if err != nil {
		return nil, err
	}
	o.pool.DisconnectClient(sessionID)
	return sess, nil
}

// Complete marks a session COMPLETED with its result payload and
// disconnects the pooled client.
func (o *Orchestrator) Complete(ctx context.Context, sessionID, result string) (*types.Session, error) {
	sess, err := o.sessions.Transition(ctx, sessionID, types.StatusCompleted)
	if err != nil {
		return nil, err
	}
	if result != "" {
		if err := o.sessions.SetResult(ctx, sessionID, result); err != nil {
			o.log.Warn().Err(err).Str("sessionID", sessionID).Msg("failed to persist session result")
		}
	}
	o.pool.DisconnectClient(sessionID)
	return sess, nil
}

// Archive disconnects the session's client if present, archives its
// working directory and marks it ARCHIVED. An archival failure is
// captured in the returned metadata and the audit log; it does not
// prevent the session from being marked archived.
func (o *Orchestrator) Archive(ctx context.Context, sessionID string) (*types.ArchiveMetadata, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.CanTransition(sess.Status, types.StatusArchived) {
		return nil, &session.InvalidTransitionError{From: sess.Status, To: types.StatusArchived}
	}

	o.pool.DisconnectClient(sessionID)

	meta := o.archiver.ArchiveWorkingDirectory(ctx, sessionID, sess.Directory)

	details := map[string]any{
		"status": string(meta.Status),
		"path":   meta.Path,
		"files":  meta.FileCount,
		"bytes":  meta.SizeBytes,
	}
	if meta.Reason != "" {
		details["reason"] = meta.Reason
	}
	o.audit.Log(ctx, audit.TypeArchiveResult, sessionID, details)

	if _, err := o.sessions.Transition(ctx, sessionID, types.StatusArchived); err != nil {
		return meta, err
	}

	event.Publish(event.Event{
		Type:      event.SessionArchived,
		SessionID: sessionID,
		Data:      event.SessionArchivedData{SessionID: sessionID, Archive: meta},
	})
	return meta, nil
}

// Shutdown disconnects every pooled client.
func (o *Orchestrator) Shutdown() {
	o.pool.CleanupAll()
}

// failTurn marks the session FAILED with the causing error and returns
// it. Send-message failures land here; they are never retried at this
// level. The status write must survive the cancellation or deadline that
// killed the turn.
func (o *Orchestrator) failTurn(ctx context.Context, sessionID string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	if _, err := o.sessions.Transition(ctx, sessionID, types.StatusFailed); err != nil {
		o.log.Error().Err(err).
			Str("sessionID", sessionID).
			Msg("failed to mark session failed")
	}
	if err := o.sessions.SetError(ctx, sessionID, cause.Error()); err != nil {
		o.log.Error().Err(err).
			Str("sessionID", sessionID).
			Msg("failed to persist session error")
	}
	return cause
}

// beginSend acquires the per-session send guard.
func (o *Orchestrator) beginSend(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sending[sessionID] {
		return false
	}
	o.sending[sessionID] = true
	return true
}

func (o *Orchestrator) endSend(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sending, sessionID)
}

// sendable reports whether a send may start from the given status.
func sendable(status types.SessionStatus) bool {
	switch status {
	case types.StatusCreated, types.StatusConnecting, types.StatusActive:
		return true
	default:
		return false
	}
}

// notActive builds the ErrSessionNotActive for a status gate failure.
func notActive(sessionID string, status types.SessionStatus) error {
	return fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, sessionID, status)
}
