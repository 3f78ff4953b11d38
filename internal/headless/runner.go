package headless

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wardenhq/warden/internal/archive"
	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/hook"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/orchestrator"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/pool"
	"github.com/wardenhq/warden/internal/runtime"
	"github.com/wardenhq/warden/internal/session"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/pkg/types"
)

// Runner executes one prompt against a fresh session in headless mode.
type Runner struct {
	config    *Config
	appConfig *types.Config
	printer   *Printer

	store store.Store
	orch  *orchestrator.Orchestrator
}

// NewRunner builds a runner for cfg. The engine is assembled inside Run.
func NewRunner(cfg *Config) *Runner {
	return &Runner{config: cfg}
}

// Run creates a session, sends the prompt and renders the result.
func (r *Runner) Run(ctx context.Context, writer io.Writer) (*Result, error) {
	r.printer = NewPrinter(writer, r.config.OutputFormat, r.config.Quiet, r.config.Verbose)
	defer r.printer.Unsubscribe()

	if err := r.loadConfig(); err != nil {
		return r.finish("error", ExitInvalidInput, "", err)
	}
	if err := r.buildEngine(); err != nil {
		return r.finish("error", ExitError, "", err)
	}
	defer func() {
		r.orch.Shutdown()
		_ = r.store.Close()
	}()

	prompt, err := r.getPrompt()
	if err != nil {
		return r.finish("error", ExitInvalidInput, "", err)
	}
	if prompt == "" {
		return r.finish("error", ExitInvalidInput, "", errors.New("prompt is required"))
	}

	sess, err := r.createSession(ctx)
	if err != nil {
		return r.finish("error", ExitError, "", err)
	}
	r.printer.Subscribe(sess.ID)
	r.printer.SetModel(sess.Config.Model)

	runCtx := ctx
	var cancel context.CancelFunc
	if r.config.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	turn, err := r.orch.SendMessage(runCtx, sess.ID, prompt)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return r.finish("timeout", ExitError, "", err)
		case errors.Is(err, orchestrator.ErrPromptRejected):
			return r.finish("rejected", ExitError, "", err)
		default:
			return r.finish("error", ExitError, "", err)
		}
	}
	r.printer.SetUsage(turn.Turns, turn.InputTokens, turn.OutputTokens, turn.CostUSD)

	if _, err := r.orch.Complete(ctx, sess.ID, turn.Reply); err != nil {
		return r.finish("error", ExitError, turn.Reply, fmt.Errorf("completing session: %w", err))
	}

	if r.config.Archive {
		meta, err := r.orch.Archive(ctx, sess.ID)
		if err != nil {
			return r.finish("error", ExitError, turn.Reply, fmt.Errorf("archiving session: %w", err))
		}
		r.printer.SetArchive(meta)
	}

	if turn.IsError {
		return r.finish("error", ExitError, turn.Reply, errors.New("runtime reported a failed turn"))
	}
	return r.finish("success", ExitSuccess, turn.Reply, nil)
}

// finish seals the result, prints it and returns it. Unsubscribing first
// keeps the final output after every progress line.
func (r *Runner) finish(status string, code ExitCode, reply string, err error) (*Result, error) {
	r.printer.Unsubscribe()
	r.printer.SetResult(status, code, reply, err)
	r.printer.PrintFinalResult()
	return r.printer.GetResult(), err
}

// loadConfig loads the layered configuration and applies overrides.
func (r *Runner) loadConfig() error {
	appConfig, err := config.Load(r.config.WorkDir, r.config.ConfigFile)
	if err != nil {
		return err
	}
	r.appConfig = appConfig

	if r.config.Model != "" {
		ensureRuntimeDefaults(appConfig).Model = r.config.Model
	}
	if r.config.Scenario != "" {
		ensureRuntimeDefaults(appConfig).Scenario = r.config.Scenario
	}

	logCfg := appConfig.Log
	if r.config.LogOverride != nil {
		logCfg = r.config.LogOverride
	}
	if logCfg != nil {
		logging.Init(logging.Config{
			Level:  logging.ParseLevel(logCfg.Level),
			Pretty: logCfg.Pretty,
		})
	}
	return nil
}

// buildEngine wires store, policies, hooks, pool, archiver and the
// orchestrator from the loaded configuration.
func (r *Runner) buildEngine() error {
	st, err := openStore(r.appConfig.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	r.store = st

	rec := audit.New(st)
	sessions := session.NewService(st, rec)

	rt := r.config.Runtime
	if rt == nil {
		rt, err = scriptedRuntime(r.appConfig.Runtime)
		if err != nil {
			_ = st.Close()
			return err
		}
	}

	archiveDir := ""
	if r.appConfig.Archive != nil {
		archiveDir = r.appConfig.Archive.Directory
	}

	r.orch = orchestrator.New(
		sessions,
		st,
		pool.New(rt, r.appConfig.Pool),
		policy.FromConfig(st, r.appConfig.Policies),
		hook.FromConfig(st, r.appConfig.Hooks),
		archive.NewTarArchiver(archiveDir),
		rec,
	)
	return nil
}

// openStore opens the configured persistence backend.
func openStore(cfg *types.StoreConfig) (store.Store, error) {
	if cfg == nil || cfg.Driver == "memory" {
		return store.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(cfg.Path)
}

// scriptedRuntime builds the scripted runtime from the configured
// scenario file, or the built-in scenario when none is set.
func scriptedRuntime(defaults *types.RuntimeDefaults) (runtime.Runtime, error) {
	if defaults == nil || defaults.Scenario == "" {
		return runtime.NewScriptedRuntime(nil), nil
	}
	scenario, err := runtime.LoadScenario(defaults.Scenario)
	if err != nil {
		return nil, fmt.Errorf("loading scenario: %w", err)
	}
	return runtime.NewScriptedRuntime(scenario), nil
}

// getPrompt retrieves the prompt from the flag and stdin sources.
func (r *Runner) getPrompt() (string, error) {
	var prompt string

	if r.config.ReadStdin {
		in := r.config.Stdin
		if in == nil {
			in = os.Stdin
		}
		scanner := bufio.NewScanner(in)
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		prompt = strings.Join(lines, "\n")
	}

	if r.config.Prompt != "" {
		if prompt != "" {
			prompt = r.config.Prompt + "\n\n" + prompt
		} else {
			prompt = r.config.Prompt
		}
	}

	return strings.TrimSpace(prompt), nil
}

// createSession creates the session this run operates on.
func (r *Runner) createSession(ctx context.Context) (*types.Session, error) {
	title := r.config.Title
	if title == "" {
		title = "Headless Session"
	}

	return r.orch.CreateSession(ctx, session.CreateOptions{
		UserID:    "headless",
		Mode:      types.ModeNonInteractive,
		Directory: r.config.WorkDir,
		Title:     title,
		Config:    runtimeConfig(r.appConfig.Runtime),
	})
}

// runtimeConfig maps the configured runtime defaults onto a session's
// runtime configuration.
func runtimeConfig(defaults *types.RuntimeDefaults) types.RuntimeConfig {
	if defaults == nil {
		return types.RuntimeConfig{}
	}
	return types.RuntimeConfig{
		Model:          defaults.Model,
		SystemPrompt:   defaults.SystemPrompt,
		PermissionMode: defaults.PermissionMode,
		MCPServers:     defaults.MCPServers,
	}
}

func ensureRuntimeDefaults(cfg *types.Config) *types.RuntimeDefaults {
	if cfg.Runtime == nil {
		cfg.Runtime = &types.RuntimeDefaults{}
	}
	return cfg.Runtime
}
