// Package testutil provides shared helpers for the e2e suite: a fully
// wired in-memory engine, scenario fixtures, and workspace fixtures.
package testutil

import (
	"context"
	"os"

	"github.com/wardenhq/warden/internal/archive"
	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/hook"
	"github.com/wardenhq/warden/internal/orchestrator"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/pool"
	"github.com/wardenhq/warden/internal/runtime"
	"github.com/wardenhq/warden/internal/session"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/pkg/types"
)

// Engine bundles a wired orchestrator with the pieces specs assert
// against. Everything runs in process: in-memory store, scripted runtime.
type Engine struct {
	Orch     *orchestrator.Orchestrator
	Store    *store.MemoryStore
	Runtime  *runtime.ScriptedRuntime
	Pool     *pool.Pool
	Hooks    *hook.Pipeline
	Policies *policy.Engine
	Sessions *session.Service

	archiveDir string
}

// Options configures NewEngine. Nil fields select defaults: the built-in
// scenario, no policies, no hooks, three fast connection attempts.
type Options struct {
	Scenario   *runtime.Scenario
	Policies   *types.PolicyConfig
	Hooks      *types.HookConfig
	Pool       *types.PoolConfig
	ArchiveDir string
}

// NewEngine wires the full engine stack for a spec.
func NewEngine(opts Options) (*Engine, error) {
	st := store.NewMemoryStore()
	rec := audit.New(st)
	sessions := session.NewService(st, rec)

	rt := runtime.NewScriptedRuntime(opts.Scenario)

	poolCfg := opts.Pool
	if poolCfg == nil {
		poolCfg = &types.PoolConfig{MaxAttempts: 3, BackoffBaseMS: 1, BackoffMaxMS: 5}
	}
	clients := pool.New(rt, poolCfg)

	policies := policy.FromConfig(st, opts.Policies)
	hooks := hook.FromConfig(st, opts.Hooks)

	archiveDir := opts.ArchiveDir
	ownDir := ""
	if archiveDir == "" {
		dir, err := os.MkdirTemp("", "warden-archives-*")
		if err != nil {
			return nil, err
		}
		archiveDir = dir
		ownDir = dir
	}

	orch := orchestrator.New(sessions, st, clients, policies, hooks, archive.NewTarArchiver(archiveDir), rec)

	return &Engine{
		Orch:       orch,
		Store:      st,
		Runtime:    rt,
		Pool:       clients,
		Hooks:      hooks,
		Policies:   policies,
		Sessions:   sessions,
		archiveDir: ownDir,
	}, nil
}

// Close disconnects all clients and releases the engine's resources.
func (e *Engine) Close() {
	e.Orch.Shutdown()
	e.Store.Close()
	if e.archiveDir != "" {
		os.RemoveAll(e.archiveDir)
	}
}

// CreateSession creates a session rooted at dir.
func (e *Engine) CreateSession(ctx context.Context, dir string) (*types.Session, error) {
	return e.Orch.CreateSession(ctx, session.CreateOptions{
		UserID:    "e2e",
		Mode:      types.ModeInteractive,
		Directory: dir,
		Title:     "E2E Session",
	})
}

// StatusTrail returns the chronological status sequence recorded in the
// audit trail for the session, starting with the initial state.
func (e *Engine) StatusTrail(ctx context.Context, sessionID string) ([]string, error) {
	statusType := audit.TypeSessionStatus
	events, err := e.Store.ListAuditEvents(ctx, store.AuditFilter{
		SessionID: &sessionID,
		Type:      &statusType,
	})
	if err != nil {
		return nil, err
	}

	// Audit events list newest first.
	var trail []string
	for i := len(events) - 1; i >= 0; i-- {
		from, _ := events[i].Details["from"].(string)
		to, _ := events[i].Details["to"].(string)
		if len(trail) == 0 {
			trail = append(trail, from)
		}
		trail = append(trail, to)
	}
	return trail, nil
}
