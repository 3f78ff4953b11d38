package store

import (
	"context"
	"sort"
	"sync"

	"github.com/wardenhq/warden/pkg/types"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*types.Session
	messages  map[string][]*types.Message
	toolCalls map[string][]*types.ToolCall
	decisions map[string][]*types.PolicyDecision
	hooks     map[string][]*types.HookExecutionRecord
	audits    []*types.AuditEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*types.Session),
		messages:  make(map[string][]*types.Message),
		toolCalls: make(map[string][]*types.ToolCall),
		decisions: make(map[string][]*types.PolicyDecision),
		hooks:     make(map[string][]*types.HookExecutionRecord),
	}
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// copySession snapshots a session so callers never share mutable state
// with the store.
func copySession(sess *types.Session) *types.Session {
	out := *sess
	out.Config = sess.Config.Clone()
	out.ParentID = copyStr(sess.ParentID)
	out.Result = copyStr(sess.Result)
	out.Error = copyStr(sess.Error)
	out.Time.Started = copyInt(sess.Time.Started)
	out.Time.Completed = copyInt(sess.Time.Completed)
	return &out
}

func copyToolCall(call *types.ToolCall) *types.ToolCall {
	out := *call
	out.Output = copyStr(call.Output)
	out.Resolved = copyInt(call.Resolved)
	out.Input = copyMap(call.Input)
	return &out
}

func copyStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyInt(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// --- Sessions ---

func (s *MemoryStore) CreateSession(ctx context.Context, sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return ErrDuplicateID
	}
	s.sessions[sess.ID] = copySession(sess)
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(sess), nil
}

func (s *MemoryStore) UpdateSession(ctx context.Context, sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return ErrNotFound
	}
	s.sessions[sess.ID] = copySession(sess)
	return nil
}

func (s *MemoryStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Session
	for _, sess := range s.sessions {
		if filter.UserID != nil && sess.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && sess.Status != *filter.Status {
			continue
		}
		out = append(out, copySession(sess))
	}
	// Newest first, matching the sqlite ordering.
	sort.Slice(out, func(i, j int) bool {
		return out[i].Time.Created > out[j].Time.Created
	})
	if limit := normalizeLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Messages ---

func (s *MemoryStore) AppendMessage(ctx context.Context, msg *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = generateID()
	}
	if msg.Created == 0 {
		msg.Created = nowMilli()
	}
	copied := *msg
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], &copied)
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	out := make([]*types.Message, 0, len(msgs))
	for _, m := range msgs {
		copied := *m
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit := normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) NextSequence(ctx context.Context, sessionID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var maxSeq int64
	for _, m := range s.messages[sessionID] {
		if m.Seq > maxSeq {
			maxSeq = m.Seq
		}
	}
	return maxSeq + 1, nil
}

// --- Tool calls ---

func (s *MemoryStore) CreateToolCall(ctx context.Context, call *types.ToolCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if call.ID == "" {
		call.ID = generateID()
	}
	if call.Created == 0 {
		call.Created = nowMilli()
	}
	s.toolCalls[call.SessionID] = append(s.toolCalls[call.SessionID], copyToolCall(call))
	return nil
}

func (s *MemoryStore) GetPendingToolCall(ctx context.Context, sessionID, toolUseID string) (*types.ToolCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, call := range s.toolCalls[sessionID] {
		if call.ToolUseID != toolUseID {
			continue
		}
		if call.Status == types.ToolCallPending || call.Status == types.ToolCallRunning {
			return copyToolCall(call), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateToolCall(ctx context.Context, call *types.ToolCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	calls := s.toolCalls[call.SessionID]
	for i, existing := range calls {
		if existing.ID == call.ID {
			calls[i] = copyToolCall(call)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ListToolCalls(ctx context.Context, sessionID string, limit int) ([]*types.ToolCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	calls := s.toolCalls[sessionID]
	out := make([]*types.ToolCall, 0, len(calls))
	for _, call := range calls {
		out = append(out, copyToolCall(call))
	}
	if limit := normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Policy decisions ---

func (s *MemoryStore) AppendPolicyDecision(ctx context.Context, dec *types.PolicyDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dec.ID == "" {
		dec.ID = generateID()
	}
	if dec.Created == 0 {
		dec.Created = nowMilli()
	}
	copied := *dec
	copied.Input = copyMap(dec.Input)
	copied.Context = copyMap(dec.Context)
	s.decisions[dec.SessionID] = append(s.decisions[dec.SessionID], &copied)
	return nil
}

func (s *MemoryStore) ListPolicyDecisions(ctx context.Context, sessionID string, limit int) ([]*types.PolicyDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	decs := s.decisions[sessionID]
	out := make([]*types.PolicyDecision, 0, len(decs))
	for _, dec := range decs {
		copied := *dec
		copied.Input = copyMap(dec.Input)
		copied.Context = copyMap(dec.Context)
		out = append(out, &copied)
	}
	if limit := normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Hook executions ---

func (s *MemoryStore) AppendHookExecution(ctx context.Context, rec *types.HookExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = generateID()
	}
	if rec.Created == 0 {
		rec.Created = nowMilli()
	}
	copied := *rec
	copied.ToolUseID = copyStr(rec.ToolUseID)
	copied.Input = copyMap(rec.Input)
	copied.Output = copyMap(rec.Output)
	copied.Error = copyStr(rec.Error)
	s.hooks[rec.SessionID] = append(s.hooks[rec.SessionID], &copied)
	return nil
}

func (s *MemoryStore) ListHookExecutions(ctx context.Context, sessionID string, limit int) ([]*types.HookExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.hooks[sessionID]
	out := make([]*types.HookExecutionRecord, 0, len(recs))
	for _, rec := range recs {
		copied := *rec
		copied.ToolUseID = copyStr(rec.ToolUseID)
		copied.Input = copyMap(rec.Input)
		copied.Output = copyMap(rec.Output)
		copied.Error = copyStr(rec.Error)
		out = append(out, &copied)
	}
	if limit := normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Audit events ---

func (s *MemoryStore) AppendAuditEvent(ctx context.Context, ev *types.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == "" {
		ev.ID = generateID()
	}
	if ev.Created == 0 {
		ev.Created = nowMilli()
	}
	copied := *ev
	copied.SessionID = copyStr(ev.SessionID)
	copied.Details = copyMap(ev.Details)
	s.audits = append(s.audits, &copied)
	return nil
}

func (s *MemoryStore) ListAuditEvents(ctx context.Context, filter AuditFilter) ([]*types.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.AuditEvent
	// Newest first, matching the sqlite ordering.
	for i := len(s.audits) - 1; i >= 0; i-- {
		ev := s.audits[i]
		if filter.SessionID != nil {
			if ev.SessionID == nil || *ev.SessionID != *filter.SessionID {
				continue
			}
		}
		if filter.Type != nil && ev.Type != *filter.Type {
			continue
		}
		copied := *ev
		copied.SessionID = copyStr(ev.SessionID)
		copied.Details = copyMap(ev.Details)
		out = append(out, &copied)
		if len(out) >= normalizeLimit(filter.Limit) {
			break
		}
	}
	return out, nil
}
