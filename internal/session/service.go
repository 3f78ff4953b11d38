// Package session provides the session lifecycle: status transitions,
// creation, forking, and metric accounting.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/event"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/pkg/types"
)

// Service manages session records. Status changes go through Transition,
// which enforces the state machine; counter updates are always permitted.
type Service struct {
	store store.Store
	audit *audit.Recorder
	log   zerolog.Logger
}

// NewService creates a new session service.
func NewService(st store.Store, rec *audit.Recorder) *Service {
	return &Service{
		store: st,
		audit: rec,
		log:   logging.Component("session"),
	}
}

// CreateOptions configures a new session.
type CreateOptions struct {
	UserID    string
	Mode      types.SessionMode
	Directory string
	Title     string
	Config    types.RuntimeConfig
}

// Create creates a new session in CREATED status.
func (s *Service) Create(ctx context.Context, opts CreateOptions) (*types.Session, error) {
	now := time.Now().UnixMilli()

	if opts.Mode == "" {
		opts.Mode = types.ModeInteractive
	}
	if opts.Title == "" {
		opts.Title = "New Session"
	}

	sess := &types.Session{
		ID:        generateID(),
		UserID:    opts.UserID,
		Mode:      opts.Mode,
		Status:    types.StatusCreated,
		Directory: opts.Directory,
		Title:     opts.Title,
		Config:    opts.Config.Clone(),
		Time: types.SessionTime{
			Created: now,
			Updated: now,
		},
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.audit.Log(ctx, audit.TypeSessionCreated, sess.ID, map[string]any{
		"userID":    sess.UserID,
		"mode":      string(sess.Mode),
		"directory": sess.Directory,
	})

	event.Publish(event.Event{
		Type:      event.SessionCreated,
		SessionID: sess.ID,
		Data:      event.SessionCreatedData{Info: sess},
	})

	s.log.Info().
		Str("sessionID", sess.ID).
		Str("mode", string(sess.Mode)).
		Msg("session created")

	return sess, nil
}

// Get retrieves a session by ID.
func (s *Service) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// List lists sessions matching the filter.
func (s *Service) List(ctx context.Context, filter store.SessionFilter) ([]*types.Session, error) {
	return s.store.ListSessions(ctx, filter)
}

// Transition moves a session to the target status, persisting the change
// and broadcasting it. Fails with *InvalidTransitionError when the target
// is not reachable from the current status.
func (s *Service) Transition(ctx context.Context, sessionID string, to types.SessionStatus) (*types.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	from := sess.Status
	if err := applyTransition(sess, to); err != nil {
		return nil, err
	}

	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.audit.Log(ctx, audit.TypeSessionStatus, sess.ID, map[string]any{
		"from": string(from),
		"to":   string(to),
	})

	event.Publish(event.Event{
		Type:      event.SessionStatus,
		SessionID: sess.ID,
		Data:      event.SessionStatusData{SessionID: sess.ID, From: from, To: to},
	})

	s.log.Debug().
		Str("sessionID", sess.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("session status changed")

	return sess, nil
}

// Fork creates a new session inheriting the parent's configuration and
// working directory. The fork starts fresh in CREATED status with empty
// metrics; conversation history is not replayed into the new runtime
// connection.
func (s *Service) Fork(ctx context.Context, parentID string) (*types.Session, error) {
	parent, err := s.store.GetSession(ctx, parentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	child := &types.Session{
		ID:        generateID(),
		UserID:    parent.UserID,
		Mode:      types.ModeForked,
		Status:    types.StatusCreated,
		Directory: parent.Directory,
		ParentID:  &parent.ID,
		Title:     parent.Title + " (fork)",
		Config:    parent.Config.Clone(),
		Time: types.SessionTime{
			Created: now,
			Updated: now,
		},
	}

	if err := s.store.CreateSession(ctx, child); err != nil {
		return nil, fmt.Errorf("failed to save forked session: %w", err)
	}

	s.audit.Log(ctx, audit.TypeSessionForked, child.ID, map[string]any{
		"parentID": parent.ID,
	})

	event.Publish(event.Event{
		Type:      event.SessionForked,
		SessionID: child.ID,
		Data:      event.SessionForkedData{ParentID: parent.ID, Info: child},
	})

	s.log.Info().
		Str("sessionID", child.ID).
		Str("parentID", parent.ID).
		Msg("session forked without history replay")

	return child, nil
}

// SetError records a failure message on the session and bumps the error
// counter. Independent of the state machine.
func (s *Service) SetError(ctx context.Context, sessionID, message string) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	sess.Error = &message
	sess.Metrics.ErrorCount++
	sess.Time.Updated = time.Now().UnixMilli()

	return s.store.UpdateSession(ctx, sess)
}

// SetResult records the terminal result text on the session.
func (s *Service) SetResult(ctx context.Context, sessionID, result string) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	sess.Result = &result
	sess.Time.Updated = time.Now().UnixMilli()

	return s.store.UpdateSession(ctx, sess)
}

// MetricsDelta is an additive update to session metrics.
type MetricsDelta struct {
	Messages     int
	ToolCalls    int
	Turns        int
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	Retries      int
}

// AddMetrics applies a metrics delta. Independent of the state machine.
func (s *Service) AddMetrics(ctx context.Context, sessionID string, d MetricsDelta) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	sess.Metrics.MessageCount += d.Messages
	sess.Metrics.ToolCallCount += d.ToolCalls
	sess.Metrics.TurnCount += d.Turns
	sess.Metrics.InputTokens += d.InputTokens
	sess.Metrics.OutputTokens += d.OutputTokens
	sess.Metrics.CostUSD += d.CostUSD
	sess.Metrics.RetryCount += d.Retries
	sess.Time.Updated = time.Now().UnixMilli()

	return s.store.UpdateSession(ctx, sess)
}

// generateID generates a new ULID.
func generateID() string {
	return ulid.Make().String()
}
