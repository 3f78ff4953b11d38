// Package store defines the persistence boundary for sessions, messages,
// tool calls and the append-only decision/audit records.
package store

import (
	"context"
	"errors"

	"github.com/wardenhq/warden/pkg/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateID is returned when creating an entity whose id already exists.
var ErrDuplicateID = errors.New("duplicate id")

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// SessionFilter narrows ListSessions. Nil fields match everything.
type SessionFilter struct {
	UserID *string
	Status *types.SessionStatus
	Limit  int
}

// AuditFilter narrows ListAuditEvents. Nil fields match everything.
type AuditFilter struct {
	SessionID *string
	Type      *string
	Limit     int
}

// Store is the persistence boundary consumed by the engine. Implementations
// must be safe for concurrent use.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, sess *types.Session) error
	GetSession(ctx context.Context, id string) (*types.Session, error)
	UpdateSession(ctx context.Context, sess *types.Session) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]*types.Session, error)

	// Messages, ordered by a strictly increasing per-session sequence number
	AppendMessage(ctx context.Context, msg *types.Message) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*types.Message, error)
	NextSequence(ctx context.Context, sessionID string) (int64, error)

	// Tool calls
	CreateToolCall(ctx context.Context, call *types.ToolCall) error
	GetPendingToolCall(ctx context.Context, sessionID, toolUseID string) (*types.ToolCall, error)
	UpdateToolCall(ctx context.Context, call *types.ToolCall) error
	ListToolCalls(ctx context.Context, sessionID string, limit int) ([]*types.ToolCall, error)

	// Append-only decision and hook records
	AppendPolicyDecision(ctx context.Context, dec *types.PolicyDecision) error
	ListPolicyDecisions(ctx context.Context, sessionID string, limit int) ([]*types.PolicyDecision, error)
	AppendHookExecution(ctx context.Context, rec *types.HookExecutionRecord) error
	ListHookExecutions(ctx context.Context, sessionID string, limit int) ([]*types.HookExecutionRecord, error)

	// Audit trail
	AppendAuditEvent(ctx context.Context, ev *types.AuditEvent) error
	ListAuditEvents(ctx context.Context, filter AuditFilter) ([]*types.AuditEvent, error)

	// Close releases any resources held by the store
	Close() error
}

// normalizeLimit applies the default and hard cap for list queries.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
