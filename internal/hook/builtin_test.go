package hook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/event"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/pkg/types"
)

func TestWebhookHookPostsPayload(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"observed": true}`)
	}))
	defer srv.Close()

	h := NewWebhookHook(&types.WebhookConfig{URL: srv.URL})
	result, err := h.Run(context.Background(), toolEvent())
	require.NoError(t, err)

	assert.Equal(t, PreToolUse, got.Type)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "bash", got.ToolName)
	assert.Equal(t, "ls", got.ToolInput["command"])

	assert.Equal(t, true, result["observed"])
}

func TestWebhookHookVeto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"continue": false, "reason": "rejected by receiver"}`)
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	p := NewPipeline(st)
	p.Register(NewWebhookHook(&types.WebhookConfig{URL: srv.URL}), PreToolUse)

	result := p.Execute(context.Background(), toolEvent())
	assert.False(t, result.Continue())
	assert.Equal(t, "rejected by receiver", result.Reason())
}

func TestWebhookHookEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := NewWebhookHook(&types.WebhookConfig{URL: srv.URL})
	result, err := h.Run(context.Background(), toolEvent())
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestWebhookHookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewWebhookHook(&types.WebhookConfig{URL: srv.URL})
	_, err := h.Run(context.Background(), toolEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestWebhookHookTimeout(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	h := NewWebhookHook(&types.WebhookConfig{URL: srv.URL, TimeoutMS: 50})
	start := time.Now()
	_, err := h.Run(context.Background(), toolEvent())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestBroadcastHook(t *testing.T) {
	received := make(chan event.Event, 1)
	unsub := event.Subscribe(event.HookExecuted, func(ev event.Event) {
		received <- ev
	})
	defer unsub()

	h := NewBroadcastHook()
	result, err := h.Run(context.Background(), toolEvent())
	require.NoError(t, err)
	assert.Nil(t, result)

	select {
	case ev := <-received:
		assert.Equal(t, "sess-1", ev.SessionID)
		data, ok := ev.Data.(event.HookExecutedData)
		require.True(t, ok)
		assert.Equal(t, "PreToolUse", data.Event)
		assert.Equal(t, "bash", data.ToolName)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestLogHook(t *testing.T) {
	h := NewLogHook()
	result, err := h.Run(context.Background(), toolEvent())
	require.NoError(t, err)
	assert.Nil(t, result, "logging contributes nothing to the result")
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(store.NewMemoryStore(), &types.HookConfig{
		Log:       true,
		Broadcast: true,
		Webhook:   &types.WebhookConfig{URL: "http://localhost:1", Events: []string{"PreToolUse"}},
	})

	pre := p.Hooks(PreToolUse)
	require.Len(t, pre, 3)
	assert.Equal(t, "log", pre[0].Name())
	assert.Equal(t, "broadcast", pre[1].Name())
	assert.Equal(t, "webhook", pre[2].Name())

	// The webhook is limited to its configured events.
	stop := p.Hooks(Stop)
	require.Len(t, stop, 2)
	assert.Equal(t, "log", stop[0].Name())
	assert.Equal(t, "broadcast", stop[1].Name())
}

func TestFromConfigNil(t *testing.T) {
	p := FromConfig(store.NewMemoryStore(), nil)
	for _, ev := range AllEvents {
		assert.Empty(t, p.Hooks(ev))
	}
}
