package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/pkg/types"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements the Store interface using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite store at the given path.
// The schema is created idempotently and parent directories are created
// if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	log := logging.Component("store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	log.Info().Str("path", path).Msg("sqlite store initialized")
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			directory TEXT NOT NULL DEFAULT '',
			parent_id TEXT,
			title TEXT NOT NULL DEFAULT '',
			config_json TEXT NOT NULL DEFAULT '{}',
			metrics_json TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			started_at INTEGER,
			completed_at INTEGER,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			result TEXT,
			error TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_session_seq
			ON messages(session_id, seq);

		CREATE TABLE IF NOT EXISTS tool_calls (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			message_id TEXT,
			tool_use_id TEXT NOT NULL,
			name TEXT NOT NULL,
			input_json TEXT,
			output TEXT,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			resolved_at INTEGER,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_use_id
			ON tool_calls(session_id, tool_use_id);

		CREATE TABLE IF NOT EXISTS policy_decisions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			tool TEXT NOT NULL,
			input_json TEXT,
			context_json TEXT,
			decision TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			decided_by TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_policy_decisions_session
			ON policy_decisions(session_id);

		CREATE TABLE IF NOT EXISTS hook_executions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			event TEXT NOT NULL,
			hook_name TEXT NOT NULL,
			tool_use_id TEXT,
			input_json TEXT,
			output_json TEXT,
			error TEXT,
			created_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_hook_executions_session
			ON hook_executions(session_id);

		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			session_id TEXT,
			details_json TEXT,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_events_session ON audit_events(session_id);
		CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(type);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func generateID() string {
	return ulid.Make().String()
}

func nowMilli() int64 {
	return time.Now().UnixMilli()
}

// marshalMap encodes a detail map as a nullable JSON column value.
func marshalMap(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshaling json column: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalMap(ns sql.NullString) map[string]any {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil
	}
	return m
}

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

// --- Sessions ---

// CreateSession inserts a new session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *types.Session) error {
	configJSON, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("marshaling session config: %w", err)
	}
	metricsJSON, err := json.Marshal(sess.Metrics)
	if err != nil {
		return fmt.Errorf("marshaling session metrics: %w", err)
	}

	query := `
		INSERT INTO sessions (id, user_id, mode, status, directory, parent_id, title,
			config_json, metrics_json, created_at, updated_at, started_at, completed_at,
			duration_ms, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		sess.ID, sess.UserID, string(sess.Mode), string(sess.Status), sess.Directory,
		nullStr(sess.ParentID), sess.Title, string(configJSON), string(metricsJSON),
		sess.Time.Created, sess.Time.Updated, nullInt(sess.Time.Started),
		nullInt(sess.Time.Completed), sess.Time.DurationMS,
		nullStr(sess.Result), nullStr(sess.Error),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSession returns the session with the given id, or ErrNotFound.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	query := sessionSelect + " WHERE id = ?"
	row := s.db.QueryRowContext(ctx, query, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return sess, nil
}

// UpdateSession rewrites all mutable session columns.
func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *types.Session) error {
	configJSON, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("marshaling session config: %w", err)
	}
	metricsJSON, err := json.Marshal(sess.Metrics)
	if err != nil {
		return fmt.Errorf("marshaling session metrics: %w", err)
	}

	query := `
		UPDATE sessions
		SET user_id = ?, mode = ?, status = ?, directory = ?, parent_id = ?, title = ?,
			config_json = ?, metrics_json = ?, updated_at = ?, started_at = ?,
			completed_at = ?, duration_ms = ?, result = ?, error = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		sess.UserID, string(sess.Mode), string(sess.Status), sess.Directory,
		nullStr(sess.ParentID), sess.Title, string(configJSON), string(metricsJSON),
		sess.Time.Updated, nullInt(sess.Time.Started), nullInt(sess.Time.Completed),
		sess.Time.DurationMS, nullStr(sess.Result), nullStr(sess.Error), sess.ID,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSessions returns sessions matching the filter, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*types.Session, error) {
	query := sessionSelect + `
		WHERE (? IS NULL OR user_id = ?)
		  AND (? IS NULL OR status = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`
	var status *string
	if filter.Status != nil {
		v := string(*filter.Status)
		status = &v
	}
	rows, err := s.db.QueryContext(ctx, query,
		nullStr(filter.UserID), nullStr(filter.UserID),
		nullStr(status), nullStr(status),
		normalizeLimit(filter.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

const sessionSelect = `
	SELECT id, user_id, mode, status, directory, parent_id, title, config_json,
		metrics_json, created_at, updated_at, started_at, completed_at, duration_ms,
		result, error
	FROM sessions
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var sess types.Session
	var mode, status string
	var parentID, result, errMsg sql.NullString
	var configJSON, metricsJSON string
	var startedAt, completed sql.NullInt64
	err := row.Scan(
		&sess.ID, &sess.UserID, &mode, &status, &sess.Directory, &parentID,
		&sess.Title, &configJSON, &metricsJSON, &sess.Time.Created,
		&sess.Time.Updated, &startedAt, &completed, &sess.Time.DurationMS,
		&result, &errMsg,
	)
	if err != nil {
		return nil, err
	}
	sess.Mode = types.SessionMode(mode)
	sess.Status = types.SessionStatus(status)
	sess.ParentID = strPtr(parentID)
	sess.Time.Started = intPtr(startedAt)
	sess.Time.Completed = intPtr(completed)
	sess.Result = strPtr(result)
	sess.Error = strPtr(errMsg)
	if err := json.Unmarshal([]byte(configJSON), &sess.Config); err != nil {
		return nil, fmt.Errorf("unmarshaling session config: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &sess.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshaling session metrics: %w", err)
	}
	return &sess, nil
}

// --- Messages ---

// AppendMessage inserts a message. ID and Created are generated if unset.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *types.Message) error {
	if msg.ID == "" {
		msg.ID = generateID()
	}
	if msg.Created == 0 {
		msg.Created = nowMilli()
	}
	query := `
		INSERT INTO messages (id, session_id, seq, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.SessionID, msg.Seq, msg.Role, msg.Content, msg.Created,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages in sequence order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]*types.Message, error) {
	query := `
		SELECT id, session_id, seq, role, content, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY seq ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var out []*types.Message
	for rows.Next() {
		var msg types.Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Seq, &msg.Role, &msg.Content, &msg.Created); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

// NextSequence returns the next per-session sequence number, starting at 1.
func (s *SQLiteStore) NextSequence(ctx context.Context, sessionID string) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(seq) FROM messages WHERE session_id = ?", sessionID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("querying max sequence: %w", err)
	}
	return max.Int64 + 1, nil
}

// --- Tool calls ---

// CreateToolCall inserts a tool call record. ID and Created are generated
// if unset.
func (s *SQLiteStore) CreateToolCall(ctx context.Context, call *types.ToolCall) error {
	if call.ID == "" {
		call.ID = generateID()
	}
	if call.Created == 0 {
		call.Created = nowMilli()
	}
	inputJSON, err := marshalMap(call.Input)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO tool_calls (id, session_id, message_id, tool_use_id, name,
			input_json, output, status, created_at, resolved_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		call.ID, call.SessionID, call.MessageID, call.ToolUseID, call.Name,
		inputJSON, nullStr(call.Output), string(call.Status), call.Created,
		nullInt(call.Resolved), call.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting tool call: %w", err)
	}
	return nil
}

// GetPendingToolCall returns the unresolved tool call with the given
// tool-use id, or ErrNotFound.
func (s *SQLiteStore) GetPendingToolCall(ctx context.Context, sessionID, toolUseID string) (*types.ToolCall, error) {
	query := toolCallSelect + `
		WHERE session_id = ? AND tool_use_id = ? AND status IN ('pending', 'running')
		ORDER BY created_at ASC, rowid ASC
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, sessionID, toolUseID)
	call, err := scanToolCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying pending tool call: %w", err)
	}
	return call, nil
}

// UpdateToolCall rewrites a tool call's mutable columns.
func (s *SQLiteStore) UpdateToolCall(ctx context.Context, call *types.ToolCall) error {
	inputJSON, err := marshalMap(call.Input)
	if err != nil {
		return err
	}
	query := `
		UPDATE tool_calls
		SET message_id = ?, input_json = ?, output = ?, status = ?, resolved_at = ?,
			duration_ms = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		call.MessageID, inputJSON, nullStr(call.Output), string(call.Status),
		nullInt(call.Resolved), call.DurationMS, call.ID,
	)
	if err != nil {
		return fmt.Errorf("updating tool call: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating tool call: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListToolCalls returns a session's tool calls in creation order.
func (s *SQLiteStore) ListToolCalls(ctx context.Context, sessionID string, limit int) ([]*types.ToolCall, error) {
	query := toolCallSelect + `
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing tool calls: %w", err)
	}
	defer rows.Close()

	var out []*types.ToolCall
	for rows.Next() {
		call, err := scanToolCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tool call: %w", err)
		}
		out = append(out, call)
	}
	return out, rows.Err()
}

const toolCallSelect = `
	SELECT id, session_id, message_id, tool_use_id, name, input_json, output,
		status, created_at, resolved_at, duration_ms
	FROM tool_calls
`

func scanToolCall(row rowScanner) (*types.ToolCall, error) {
	var call types.ToolCall
	var status string
	var inputJSON, output sql.NullString
	var resolved sql.NullInt64
	err := row.Scan(
		&call.ID, &call.SessionID, &call.MessageID, &call.ToolUseID, &call.Name,
		&inputJSON, &output, &status, &call.Created, &resolved, &call.DurationMS,
	)
	if err != nil {
		return nil, err
	}
	call.Status = types.ToolCallStatus(status)
	call.Input = unmarshalMap(inputJSON)
	call.Output = strPtr(output)
	call.Resolved = intPtr(resolved)
	return &call, nil
}

// --- Policy decisions ---

// AppendPolicyDecision appends a decision record. ID and Created are
// generated if unset.
func (s *SQLiteStore) AppendPolicyDecision(ctx context.Context, dec *types.PolicyDecision) error {
	if dec.ID == "" {
		dec.ID = generateID()
	}
	if dec.Created == 0 {
		dec.Created = nowMilli()
	}
	inputJSON, err := marshalMap(dec.Input)
	if err != nil {
		return err
	}
	contextJSON, err := marshalMap(dec.Context)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO policy_decisions (id, session_id, tool, input_json, context_json,
			decision, reason, decided_by, created_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		dec.ID, dec.SessionID, dec.Tool, inputJSON, contextJSON,
		string(dec.Decision), dec.Reason, dec.DecidedBy, dec.Created, dec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting policy decision: %w", err)
	}
	return nil
}

// ListPolicyDecisions returns a session's decisions in creation order.
func (s *SQLiteStore) ListPolicyDecisions(ctx context.Context, sessionID string, limit int) ([]*types.PolicyDecision, error) {
	query := `
		SELECT id, session_id, tool, input_json, context_json, decision, reason,
			decided_by, created_at, duration_ms
		FROM policy_decisions
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing policy decisions: %w", err)
	}
	defer rows.Close()

	var out []*types.PolicyDecision
	for rows.Next() {
		var dec types.PolicyDecision
		var decision string
		var inputJSON, contextJSON sql.NullString
		err := rows.Scan(&dec.ID, &dec.SessionID, &dec.Tool, &inputJSON, &contextJSON,
			&decision, &dec.Reason, &dec.DecidedBy, &dec.Created, &dec.DurationMS)
		if err != nil {
			return nil, fmt.Errorf("scanning policy decision: %w", err)
		}
		dec.Decision = types.Decision(decision)
		dec.Input = unmarshalMap(inputJSON)
		dec.Context = unmarshalMap(contextJSON)
		out = append(out, &dec)
	}
	return out, rows.Err()
}

// --- Hook executions ---

// AppendHookExecution appends a hook record. ID and Created are generated
// if unset.
func (s *SQLiteStore) AppendHookExecution(ctx context.Context, rec *types.HookExecutionRecord) error {
	if rec.ID == "" {
		rec.ID = generateID()
	}
	if rec.Created == 0 {
		rec.Created = nowMilli()
	}
	inputJSON, err := marshalMap(rec.Input)
	if err != nil {
		return err
	}
	outputJSON, err := marshalMap(rec.Output)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO hook_executions (id, session_id, event, hook_name, tool_use_id,
			input_json, output_json, error, created_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.SessionID, rec.Event, rec.HookName, nullStr(rec.ToolUseID),
		inputJSON, outputJSON, nullStr(rec.Error), rec.Created, rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting hook execution: %w", err)
	}
	return nil
}

// ListHookExecutions returns a session's hook records in creation order.
func (s *SQLiteStore) ListHookExecutions(ctx context.Context, sessionID string, limit int) ([]*types.HookExecutionRecord, error) {
	query := `
		SELECT id, session_id, event, hook_name, tool_use_id, input_json,
			output_json, error, created_at, duration_ms
		FROM hook_executions
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing hook executions: %w", err)
	}
	defer rows.Close()

	var out []*types.HookExecutionRecord
	for rows.Next() {
		var rec types.HookExecutionRecord
		var toolUseID, inputJSON, outputJSON, errMsg sql.NullString
		err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Event, &rec.HookName,
			&toolUseID, &inputJSON, &outputJSON, &errMsg, &rec.Created, &rec.DurationMS)
		if err != nil {
			return nil, fmt.Errorf("scanning hook execution: %w", err)
		}
		rec.ToolUseID = strPtr(toolUseID)
		rec.Input = unmarshalMap(inputJSON)
		rec.Output = unmarshalMap(outputJSON)
		rec.Error = strPtr(errMsg)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// --- Audit events ---

// AppendAuditEvent appends an audit entry. ID and Created are generated
// if unset.
func (s *SQLiteStore) AppendAuditEvent(ctx context.Context, ev *types.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = generateID()
	}
	if ev.Created == 0 {
		ev.Created = nowMilli()
	}
	detailsJSON, err := marshalMap(ev.Details)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO audit_events (id, type, session_id, details_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		ev.ID, ev.Type, nullStr(ev.SessionID), detailsJSON, ev.Created,
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns audit entries matching the filter, newest first.
func (s *SQLiteStore) ListAuditEvents(ctx context.Context, filter AuditFilter) ([]*types.AuditEvent, error) {
	query := `
		SELECT id, type, session_id, details_json, created_at
		FROM audit_events
		WHERE (? IS NULL OR session_id = ?)
		  AND (? IS NULL OR type = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query,
		nullStr(filter.SessionID), nullStr(filter.SessionID),
		nullStr(filter.Type), nullStr(filter.Type),
		normalizeLimit(filter.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	var out []*types.AuditEvent
	for rows.Next() {
		var ev types.AuditEvent
		var sessionID, detailsJSON sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Type, &sessionID, &detailsJSON, &ev.Created); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		ev.SessionID = strPtr(sessionID)
		ev.Details = unmarshalMap(detailsJSON)
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// isUniqueViolation detects primary-key conflicts without depending on
// driver-specific error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
