package hook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/store"
)

type fakeHook struct {
	name     string
	priority int
	result   Result
	err      error

	ran  *[]string
	seen *Event
}

func (h *fakeHook) Name() string  { return h.name }
func (h *fakeHook) Priority() int { return h.priority }

func (h *fakeHook) Run(ctx context.Context, ev *Event) (Result, error) {
	if h.ran != nil {
		*h.ran = append(*h.ran, h.name)
	}
	h.seen = ev
	return h.result, h.err
}

func toolEvent() *Event {
	return &Event{
		Type:      PreToolUse,
		SessionID: "sess-1",
		ToolName:  "bash",
		ToolUseID: "toolu_01",
		ToolInput: map[string]any{"command": "ls"},
	}
}

func TestPipelineEmpty(t *testing.T) {
	st := store.NewMemoryStore()
	p := NewPipeline(st)

	result := p.Execute(context.Background(), toolEvent())
	assert.True(t, result.Continue())

	recs, err := st.ListHookExecutions(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	assert.Empty(t, recs, "no hooks means no store interaction")
}

func TestPipelinePriorityOrder(t *testing.T) {
	var ran []string
	p := NewPipeline(store.NewMemoryStore())
	p.Register(&fakeHook{name: "third", priority: 30, ran: &ran}, PreToolUse)
	p.Register(&fakeHook{name: "first", priority: 10, ran: &ran}, PreToolUse)
	p.Register(&fakeHook{name: "second", priority: 20, ran: &ran}, PreToolUse)

	p.Execute(context.Background(), toolEvent())
	assert.Equal(t, []string{"first", "second", "third"}, ran)
}

func TestPipelineStableTies(t *testing.T) {
	var ran []string
	p := NewPipeline(store.NewMemoryStore())
	p.Register(&fakeHook{name: "a", priority: 10, ran: &ran}, PreToolUse)
	p.Register(&fakeHook{name: "b", priority: 10, ran: &ran}, PreToolUse)
	p.Register(&fakeHook{name: "c", priority: 10, ran: &ran}, PreToolUse)

	p.Execute(context.Background(), toolEvent())
	assert.Equal(t, []string{"a", "b", "c"}, ran, "equal priorities run in registration order")
}

func TestPipelineEventTypeIsolation(t *testing.T) {
	var ran []string
	p := NewPipeline(store.NewMemoryStore())
	p.Register(&fakeHook{name: "pre", priority: 10, ran: &ran}, PreToolUse)
	p.Register(&fakeHook{name: "post", priority: 10, ran: &ran}, PostToolUse)

	p.Execute(context.Background(), toolEvent())
	assert.Equal(t, []string{"pre"}, ran)
}

func TestPipelineMergesResults(t *testing.T) {
	p := NewPipeline(store.NewMemoryStore())
	p.Register(&fakeHook{name: "a", priority: 10, result: Result{"note": "from a", "extra": 1}}, PreToolUse)
	p.Register(&fakeHook{name: "b", priority: 20, result: Result{"note": "from b"}}, PreToolUse)

	result := p.Execute(context.Background(), toolEvent())
	assert.True(t, result.Continue())
	assert.Equal(t, "from b", result["note"], "later hooks overwrite earlier keys")
	assert.Equal(t, 1, result["extra"])
}

func TestPipelineContinueFalseStops(t *testing.T) {
	var ran []string
	st := store.NewMemoryStore()
	p := NewPipeline(st)
	p.Register(&fakeHook{name: "vetoer", priority: 10, ran: &ran,
		result: Result{"continue": false, "reason": "blocked by hook"}}, PreToolUse)
	p.Register(&fakeHook{name: "never", priority: 20, ran: &ran}, PreToolUse)

	result := p.Execute(context.Background(), toolEvent())
	assert.False(t, result.Continue())
	assert.Equal(t, "blocked by hook", result.Reason())
	assert.Equal(t, []string{"vetoer"}, ran)

	recs, err := st.ListHookExecutions(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "skipped hooks produce no records")
}

func TestPipelineErrorContained(t *testing.T) {
	var ran []string
	st := store.NewMemoryStore()
	p := NewPipeline(st)
	p.Register(&fakeHook{name: "broken", priority: 10, ran: &ran,
		err: errors.New("receiver unreachable")}, PreToolUse)
	p.Register(&fakeHook{name: "after", priority: 20, ran: &ran,
		result: Result{"note": "still ran"}}, PreToolUse)

	result := p.Execute(context.Background(), toolEvent())
	assert.True(t, result.Continue(), "a failing hook never blocks processing")
	assert.Equal(t, "still ran", result["note"])
	assert.Equal(t, []string{"broken", "after"}, ran)

	recs, err := st.ListHookExecutions(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Creation order: the broken hook ran first.
	require.NotNil(t, recs[0].Error)
	assert.Contains(t, *recs[0].Error, "receiver unreachable")
	assert.Nil(t, recs[1].Error)
}

func TestPipelineRecordsExecution(t *testing.T) {
	st := store.NewMemoryStore()
	p := NewPipeline(st)
	p.Register(&fakeHook{name: "observer", priority: 10, result: Result{"seen": true}}, PreToolUse)

	p.Execute(context.Background(), toolEvent())

	recs, err := st.ListHookExecutions(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.Equal(t, "PreToolUse", rec.Event)
	assert.Equal(t, "observer", rec.HookName)
	require.NotNil(t, rec.ToolUseID)
	assert.Equal(t, "toolu_01", *rec.ToolUseID)
	assert.Equal(t, map[string]any{"command": "ls"}, rec.Input)
	assert.Equal(t, true, rec.Output["seen"])
	assert.NotZero(t, rec.Created)
}

func TestPipelineNilStore(t *testing.T) {
	p := NewPipeline(nil)
	p.Register(&fakeHook{name: "a", priority: 10}, Stop)

	result := p.Execute(context.Background(), &Event{Type: Stop, SessionID: "sess-1"})
	assert.True(t, result.Continue())
}

func TestResultContinue(t *testing.T) {
	assert.True(t, Result{}.Continue())
	assert.True(t, Result{"continue": true}.Continue())
	assert.True(t, Result{"continue": "yes"}.Continue(), "non-bool values do not veto")
	assert.False(t, Result{"continue": false}.Continue())
}
