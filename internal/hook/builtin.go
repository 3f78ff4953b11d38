package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/event"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/pkg/types"
)

var (
	_ Hook = (*LogHook)(nil)
	_ Hook = (*BroadcastHook)(nil)
	_ Hook = (*WebhookHook)(nil)
)

// LogHook writes one structured log line per lifecycle event.
type LogHook struct {
	log zerolog.Logger
}

// NewLogHook creates the hook.
func NewLogHook() *LogHook {
	return &LogHook{log: logging.Component("hook")}
}

func (h *LogHook) Name() string { return "log" }

func (h *LogHook) Priority() int { return 10 }

func (h *LogHook) Run(ctx context.Context, ev *Event) (Result, error) {
	entry := h.log.Info().
		Str("event", string(ev.Type)).
		Str("sessionID", ev.SessionID)
	if ev.ToolName != "" {
		entry = entry.Str("tool", ev.ToolName)
	}
	if ev.ToolUseID != "" {
		entry = entry.Str("toolUseID", ev.ToolUseID)
	}
	entry.Msg("lifecycle event")
	return nil, nil
}

// BroadcastHook forwards lifecycle events onto the event bus so stream
// subscribers see them alongside session and message events.
type BroadcastHook struct{}

// NewBroadcastHook creates the hook.
func NewBroadcastHook() *BroadcastHook {
	return &BroadcastHook{}
}

func (h *BroadcastHook) Name() string { return "broadcast" }

func (h *BroadcastHook) Priority() int { return 20 }

func (h *BroadcastHook) Run(ctx context.Context, ev *Event) (Result, error) {
	event.Publish(event.Event{
		Type:      event.HookExecuted,
		SessionID: ev.SessionID,
		Data: event.HookExecutedData{
			Event:     string(ev.Type),
			SessionID: ev.SessionID,
			ToolName:  ev.ToolName,
			ToolUseID: ev.ToolUseID,
			Prompt:    ev.Prompt,
			Extra:     ev.Extra,
		},
	})
	return nil, nil
}

const (
	defaultWebhookTimeout = 5 * time.Second
	maxWebhookResponse    = 1 << 20
)

// WebhookHook POSTs the event payload as JSON to an external receiver.
// A JSON object in the response body is merged into the pipeline result,
// so the receiver can veto processing by returning {"continue": false}.
type WebhookHook struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewWebhookHook creates the hook from config. TimeoutMS bounds the POST
// round trip, defaulting to 5s.
func NewWebhookHook(cfg *types.WebhookConfig) *WebhookHook {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookHook{
		url:     cfg.URL,
		timeout: timeout,
		client:  &http.Client{},
	}
}

func (h *WebhookHook) Name() string { return "webhook" }

func (h *WebhookHook) Priority() int { return 100 }

func (h *WebhookHook) Run(ctx context.Context, ev *Event) (Result, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	var out Result
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxWebhookResponse))
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("webhook response: %w", err)
	}
	return out, nil
}

// FromConfig builds a pipeline with the configured built-in hooks. A nil
// config yields an empty pipeline.
func FromConfig(st store.Store, cfg *types.HookConfig) *Pipeline {
	p := NewPipeline(st)
	if cfg == nil {
		return p
	}

	if cfg.Log {
		p.Register(NewLogHook(), AllEvents...)
	}
	if cfg.Broadcast {
		p.Register(NewBroadcastHook(), AllEvents...)
	}
	if cfg.Webhook != nil && cfg.Webhook.URL != "" {
		events := AllEvents
		if len(cfg.Webhook.Events) > 0 {
			events = make([]EventType, 0, len(cfg.Webhook.Events))
			for _, e := range cfg.Webhook.Events {
				events = append(events, EventType(e))
			}
		}
		p.Register(NewWebhookHook(cfg.Webhook), events...)
	}
	return p
}
