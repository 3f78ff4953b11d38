package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/types"
)

// openStores returns both implementations so every test runs against each.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "warden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func testSession(id string) *types.Session {
	return &types.Session{
		ID:        id,
		UserID:    "user-1",
		Mode:      types.ModeInteractive,
		Status:    types.StatusCreated,
		Directory: "/tmp/work",
		Config: types.RuntimeConfig{
			Model:        "sonnet",
			AllowedTools: []string{"read", "bash"},
		},
		Time: types.SessionTime{Created: 1000, Updated: 1000},
	}
}

func TestSessionCRUD(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			sess := testSession("sess-1")
			require.NoError(t, s.CreateSession(ctx, sess))

			err := s.CreateSession(ctx, testSession("sess-1"))
			assert.ErrorIs(t, err, ErrDuplicateID)

			got, err := s.GetSession(ctx, "sess-1")
			require.NoError(t, err)
			assert.Equal(t, "user-1", got.UserID)
			assert.Equal(t, types.StatusCreated, got.Status)
			assert.Equal(t, []string{"read", "bash"}, got.Config.AllowedTools)

			got.Status = types.StatusActive
			got.Metrics.MessageCount = 3
			started := int64(2000)
			got.Time.Started = &started
			require.NoError(t, s.UpdateSession(ctx, got))

			updated, err := s.GetSession(ctx, "sess-1")
			require.NoError(t, err)
			assert.Equal(t, types.StatusActive, updated.Status)
			assert.Equal(t, 3, updated.Metrics.MessageCount)
			require.NotNil(t, updated.Time.Started)
			assert.Equal(t, int64(2000), *updated.Time.Started)

			_, err = s.GetSession(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			err = s.UpdateSession(ctx, testSession("missing"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestListSessionsFilter(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			a := testSession("sess-a")
			a.Time.Created = 1000
			b := testSession("sess-b")
			b.Time.Created = 2000
			b.Status = types.StatusActive
			c := testSession("sess-c")
			c.Time.Created = 3000
			c.UserID = "user-2"

			require.NoError(t, s.CreateSession(ctx, a))
			require.NoError(t, s.CreateSession(ctx, b))
			require.NoError(t, s.CreateSession(ctx, c))

			all, err := s.ListSessions(ctx, SessionFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			// Newest first.
			assert.Equal(t, "sess-c", all[0].ID)
			assert.Equal(t, "sess-a", all[2].ID)

			user1 := "user-1"
			byUser, err := s.ListSessions(ctx, SessionFilter{UserID: &user1})
			require.NoError(t, err)
			assert.Len(t, byUser, 2)

			active := types.StatusActive
			byStatus, err := s.ListSessions(ctx, SessionFilter{Status: &active})
			require.NoError(t, err)
			require.Len(t, byStatus, 1)
			assert.Equal(t, "sess-b", byStatus[0].ID)

			limited, err := s.ListSessions(ctx, SessionFilter{Limit: 1})
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestMessagesSequence(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.CreateSession(ctx, testSession("sess-1")))

			seq, err := s.NextSequence(ctx, "sess-1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), seq)

			require.NoError(t, s.AppendMessage(ctx, &types.Message{
				SessionID: "sess-1", Seq: 1, Role: types.RoleUser, Content: "hello",
			}))
			require.NoError(t, s.AppendMessage(ctx, &types.Message{
				SessionID: "sess-1", Seq: 2, Role: types.RoleAssistant, Content: "hi",
			}))

			seq, err = s.NextSequence(ctx, "sess-1")
			require.NoError(t, err)
			assert.Equal(t, int64(3), seq)

			msgs, err := s.ListMessages(ctx, "sess-1", 0)
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			assert.Equal(t, int64(1), msgs[0].Seq)
			assert.Equal(t, "hello", msgs[0].Content)
			assert.NotEmpty(t, msgs[0].ID)
			assert.Equal(t, int64(2), msgs[1].Seq)
		})
	}
}

func TestToolCallLifecycle(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.CreateSession(ctx, testSession("sess-1")))

			call := &types.ToolCall{
				SessionID: "sess-1",
				ToolUseID: "toolu_01",
				Name:      "bash",
				Input:     map[string]any{"command": "ls"},
				Status:    types.ToolCallPending,
			}
			require.NoError(t, s.CreateToolCall(ctx, call))
			assert.NotEmpty(t, call.ID)

			pending, err := s.GetPendingToolCall(ctx, "sess-1", "toolu_01")
			require.NoError(t, err)
			assert.Equal(t, "bash", pending.Name)
			assert.Equal(t, "ls", pending.Input["command"])

			output := "file.txt"
			resolved := pending.Created + 42
			pending.Status = types.ToolCallSuccess
			pending.Output = &output
			pending.Resolved = &resolved
			pending.DurationMS = 42
			require.NoError(t, s.UpdateToolCall(ctx, pending))

			_, err = s.GetPendingToolCall(ctx, "sess-1", "toolu_01")
			assert.ErrorIs(t, err, ErrNotFound)

			calls, err := s.ListToolCalls(ctx, "sess-1", 0)
			require.NoError(t, err)
			require.Len(t, calls, 1)
			assert.Equal(t, types.ToolCallSuccess, calls[0].Status)
			require.NotNil(t, calls[0].Output)
			assert.Equal(t, "file.txt", *calls[0].Output)
			assert.Equal(t, int64(42), calls[0].DurationMS)
		})
	}
}

func TestPolicyDecisions(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			dec := &types.PolicyDecision{
				SessionID: "sess-1",
				Tool:      "bash",
				Input:     map[string]any{"command": "rm -rf /"},
				Decision:  types.DecisionDeny,
				Reason:    "denied command pattern: rm -rf",
				DecidedBy: "command",
			}
			require.NoError(t, s.AppendPolicyDecision(ctx, dec))
			assert.NotEmpty(t, dec.ID)
			assert.NotZero(t, dec.Created)

			decs, err := s.ListPolicyDecisions(ctx, "sess-1", 0)
			require.NoError(t, err)
			require.Len(t, decs, 1)
			assert.Equal(t, types.DecisionDeny, decs[0].Decision)
			assert.Equal(t, "command", decs[0].DecidedBy)
			assert.Equal(t, "rm -rf /", decs[0].Input["command"])
		})
	}
}

func TestHookExecutions(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			toolUse := "toolu_01"
			errMsg := "webhook timeout"
			rec := &types.HookExecutionRecord{
				SessionID: "sess-1",
				Event:     "PreToolUse",
				HookName:  "webhook",
				ToolUseID: &toolUse,
				Input:     map[string]any{"tool": "bash"},
				Error:     &errMsg,
			}
			require.NoError(t, s.AppendHookExecution(ctx, rec))

			recs, err := s.ListHookExecutions(ctx, "sess-1", 0)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, "webhook", recs[0].HookName)
			require.NotNil(t, recs[0].ToolUseID)
			assert.Equal(t, "toolu_01", *recs[0].ToolUseID)
			require.NotNil(t, recs[0].Error)
			assert.Equal(t, "webhook timeout", *recs[0].Error)
		})
	}
}

func TestAuditEvents(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			sessA := "sess-a"
			require.NoError(t, s.AppendAuditEvent(ctx, &types.AuditEvent{
				Type: "session.created", SessionID: &sessA, Created: 1000,
			}))
			require.NoError(t, s.AppendAuditEvent(ctx, &types.AuditEvent{
				Type: "session.status", SessionID: &sessA, Created: 2000,
				Details: map[string]any{"from": "created", "to": "connecting"},
			}))
			sessB := "sess-b"
			require.NoError(t, s.AppendAuditEvent(ctx, &types.AuditEvent{
				Type: "session.created", SessionID: &sessB, Created: 3000,
			}))

			all, err := s.ListAuditEvents(ctx, AuditFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			// Newest first.
			assert.Equal(t, int64(3000), all[0].Created)

			bySession, err := s.ListAuditEvents(ctx, AuditFilter{SessionID: &sessA})
			require.NoError(t, err)
			assert.Len(t, bySession, 2)

			created := "session.created"
			byType, err := s.ListAuditEvents(ctx, AuditFilter{Type: &created})
			require.NoError(t, err)
			assert.Len(t, byType, 2)

			statusType := "session.status"
			both, err := s.ListAuditEvents(ctx, AuditFilter{SessionID: &sessA, Type: &statusType})
			require.NoError(t, err)
			require.Len(t, both, 1)
			assert.Equal(t, "connecting", both[0].Details["to"])
		})
	}
}
