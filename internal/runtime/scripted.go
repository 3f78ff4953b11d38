package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/logging"
)

// Scenario is the YAML schema driving a ScriptedRuntime.
type Scenario struct {
	Settings ScenarioSettings `yaml:"settings"`
	Defaults ScenarioDefaults `yaml:"defaults"`
	Rules    []Rule           `yaml:"rules"`
}

// ScenarioSettings configures runtime-wide behavior.
type ScenarioSettings struct {
	// LagMS adds an artificial delay before each emitted event.
	LagMS int `yaml:"lag_ms"`
	// FailConnects fails the first N connect attempts with a transient
	// *ConnectError, for exercising retry behavior.
	FailConnects int `yaml:"fail_connects"`
}

// ScenarioDefaults defines fallback behavior when no rule matches.
type ScenarioDefaults struct {
	Fallback string       `yaml:"fallback"`
	Usage    *UsageConfig `yaml:"usage"`
}

// Rule maps a prompt to a scripted turn. Higher priority rules win.
type Rule struct {
	Name     string       `yaml:"name"`
	Match    MatchConfig  `yaml:"match"`
	Priority int          `yaml:"priority"`
	Response string       `yaml:"response"`
	Tools    []ToolStep   `yaml:"tools"`
	Notify   []Notice     `yaml:"notify"`
	Usage    *UsageConfig `yaml:"usage"`
}

// MatchConfig defines how to match a prompt. The first populated field is
// used; string matching is case-insensitive.
type MatchConfig struct {
	Exact       string   `yaml:"exact"`
	Contains    string   `yaml:"contains"`
	ContainsAll []string `yaml:"contains_all"`
	ContainsAny []string `yaml:"contains_any"`
	Regex       string   `yaml:"regex"`
}

// ToolStep scripts one tool invocation within a turn.
type ToolStep struct {
	// ID is the tool-use id; generated when empty.
	ID      string         `yaml:"id"`
	Tool    string         `yaml:"tool"`
	Input   map[string]any `yaml:"input"`
	Result  string         `yaml:"result"`
	IsError bool           `yaml:"is_error"`
}

// Notice scripts a runtime-initiated lifecycle notification delivered
// through the connection's Notify callback.
type Notice struct {
	Event string         `yaml:"event"`
	Data  map[string]any `yaml:"data"`
}

// UsageConfig configures the usage reported by a turn's terminal result.
type UsageConfig struct {
	InputTokens  int64   `yaml:"input_tokens"`
	OutputTokens int64   `yaml:"output_tokens"`
	CostUSD      float64 `yaml:"cost_usd"`
	Turns        int     `yaml:"turns"`
}

// Matches checks whether the prompt satisfies this match config.
func (m *MatchConfig) Matches(prompt string) bool {
	promptLower := strings.ToLower(prompt)

	if m.Exact != "" {
		return strings.EqualFold(prompt, m.Exact)
	}

	if m.Contains != "" {
		return strings.Contains(promptLower, strings.ToLower(m.Contains))
	}

	if len(m.ContainsAll) > 0 {
		for _, s := range m.ContainsAll {
			if !strings.Contains(promptLower, strings.ToLower(s)) {
				return false
			}
		}
		return true
	}

	if len(m.ContainsAny) > 0 {
		for _, s := range m.ContainsAny {
			if strings.Contains(promptLower, strings.ToLower(s)) {
				return true
			}
		}
		return false
	}

	if m.Regex != "" {
		matched, err := regexp.MatchString(m.Regex, prompt)
		return err == nil && matched
	}

	return false
}

// Validate checks the scenario for rules that could never fire.
func (s *Scenario) Validate() error {
	if s.Settings.FailConnects < 0 {
		return errors.New("settings.fail_connects must not be negative")
	}
	for i, rule := range s.Rules {
		name := rule.Name
		if name == "" {
			name = fmt.Sprintf("rules[%d]", i)
		}
		if rule.Match.Regex != "" {
			if _, err := regexp.Compile(rule.Match.Regex); err != nil {
				return fmt.Errorf("rule %s: invalid regex: %w", name, err)
			}
		}
		for j, step := range rule.Tools {
			if step.Tool == "" {
				return fmt.Errorf("rule %s: tools[%d] missing tool name", name, j)
			}
		}
	}
	return nil
}

// LoadScenario loads and validates a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// DefaultScenario returns a built-in scenario with common interactions.
func DefaultScenario() *Scenario {
	return &Scenario{
		Defaults: ScenarioDefaults{
			Fallback: "Understood.",
			Usage: &UsageConfig{
				InputTokens:  25,
				OutputTokens: 10,
				CostUSD:      0.0004,
				Turns:        1,
			},
		},
		Rules: []Rule{
			{
				Name:     "greeting",
				Match:    MatchConfig{Contains: "hello"},
				Response: "Hello! How can I help you today?",
				Priority: 1,
			},
			{
				Name:     "list-files",
				Match:    MatchConfig{Contains: "list files"},
				Response: "Listing the working directory.",
				Tools: []ToolStep{
					{
						Tool:   "bash",
						Input:  map[string]any{"command": "ls"},
						Result: "main.go\ngo.mod",
					},
				},
				Priority: 10,
			},
		},
	}
}

// match returns the highest-priority matching rule, or a fallback rule
// when nothing matches.
func (s *Scenario) match(prompt string) Rule {
	var best *Rule
	bestPriority := -1

	for i := range s.Rules {
		rule := &s.Rules[i]
		if rule.Match.Matches(prompt) && rule.Priority > bestPriority {
			best = rule
			bestPriority = rule.Priority
		}
	}

	if best == nil {
		return Rule{Name: "fallback", Response: s.Defaults.Fallback}
	}
	return *best
}

// usageFor resolves the usage reported for a rule's terminal result.
func (s *Scenario) usageFor(rule Rule) UsageConfig {
	usage := UsageConfig{}
	switch {
	case rule.Usage != nil:
		usage = *rule.Usage
	case s.Defaults.Usage != nil:
		usage = *s.Defaults.Usage
	}
	if usage.Turns <= 0 {
		usage.Turns = 1
	}
	return usage
}

// ScriptedRuntime is a Runtime driven by a scenario file. It serves unit
// tests, the e2e suite, and headless runs without a live agent backend.
type ScriptedRuntime struct {
	scenario *Scenario
	log      zerolog.Logger

	mu       sync.Mutex
	connects int
}

var _ Runtime = (*ScriptedRuntime)(nil)

// NewScriptedRuntime creates a runtime for the scenario. A nil scenario
// uses DefaultScenario.
func NewScriptedRuntime(scenario *Scenario) *ScriptedRuntime {
	if scenario == nil {
		scenario = DefaultScenario()
	}
	return &ScriptedRuntime{
		scenario: scenario,
		log:      logging.Component("runtime"),
	}
}

// Connect opens a scripted connection. The first Settings.FailConnects
// attempts fail with a transient *ConnectError.
func (r *ScriptedRuntime) Connect(ctx context.Context, opts ConnectOptions) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.connects++
	attempt := r.connects
	r.mu.Unlock()

	if attempt <= r.scenario.Settings.FailConnects {
		r.log.Debug().Int("attempt", attempt).Msg("scripted connect failure")
		return nil, &ConnectError{
			Err: fmt.Errorf("scripted failure on attempt %d", attempt),
		}
	}

	return &scriptedConn{
		scenario: r.scenario,
		opts:     opts,
		log:      r.log,
	}, nil
}

// ConnectAttempts reports how many connects were attempted, including
// scripted failures.
func (r *ScriptedRuntime) ConnectAttempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

type scriptedConn struct {
	scenario *Scenario
	opts     ConnectOptions
	log      zerolog.Logger
	closed   atomic.Bool
}

func (c *scriptedConn) Query(ctx context.Context, prompt string) (*EventStream, error) {
	if c.closed.Load() {
		return nil, errors.New("connection closed")
	}

	rule := c.scenario.match(prompt)
	c.log.Debug().Str("rule", rule.Name).Msg("scripted rule matched")

	stream := NewEventStream(16)
	go c.play(ctx, rule, stream)
	return stream, nil
}

func (c *scriptedConn) Close() error {
	c.closed.Store(true)
	return nil
}

// play emits the scripted turn onto the stream.
func (c *scriptedConn) play(ctx context.Context, rule Rule, stream *EventStream) {
	emit := func(ev Event) bool {
		if !c.pause(ctx) {
			return false
		}
		return stream.Push(ev)
	}

	text := rule.Response
	if text == "" && len(rule.Tools) == 0 {
		text = c.scenario.Defaults.Fallback
	}

	if text != "" {
		if !emit(AssistantTextEvent{Text: text}) {
			stream.Finish(ctx.Err())
			return
		}
	}

	for _, step := range rule.Tools {
		id := step.ID
		if id == "" {
			id = "toolu_" + ulid.Make().String()
		}

		if !emit(ToolUseEvent{ToolUseID: id, Name: step.Tool, Input: step.Input}) {
			stream.Finish(ctx.Err())
			return
		}

		result := ToolResultEvent{
			ToolUseID: id,
			Output:    step.Result,
			IsError:   step.IsError,
		}
		if c.opts.Authorize != nil {
			auth := c.opts.Authorize(ctx, step.Tool, step.Input)
			if !auth.Allow {
				reason := auth.Reason
				if reason == "" {
					reason = "denied by policy"
				}
				result = ToolResultEvent{
					ToolUseID: id,
					Output:    "Permission denied: " + reason,
					IsError:   true,
					Denied:    true,
				}
			}
		}

		if !emit(result) {
			stream.Finish(ctx.Err())
			return
		}
	}

	for _, notice := range rule.Notify {
		if c.opts.Notify != nil {
			c.opts.Notify(ctx, notice.Event, notice.Data)
		}
	}

	usage := c.scenario.usageFor(rule)
	final := ResultEvent{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      usage.CostUSD,
		Turns:        usage.Turns,
		Result:       text,
	}
	if !emit(final) {
		stream.Finish(ctx.Err())
		return
	}

	stream.Finish(nil)
}

// pause applies the scenario's artificial lag.
func (c *scriptedConn) pause(ctx context.Context) bool {
	lag := time.Duration(c.scenario.Settings.LagMS) * time.Millisecond
	if lag <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(lag):
		return true
	}
}
