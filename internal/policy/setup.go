package policy

import (
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/pkg/types"
)

var (
	_ Policy = (*ToolAccessPolicy)(nil)
	_ Policy = (*CommandPolicy)(nil)
	_ Policy = (*WorkspacePolicy)(nil)
	_ Policy = (*RepeatGuardPolicy)(nil)
)

// FromConfig builds an engine with the built-in policies the
// configuration enables.
func FromConfig(st store.Store, cfg *types.PolicyConfig) *Engine {
	if cfg == nil {
		cfg = &types.PolicyConfig{}
	}

	engine := NewEngine(st, cfg.CacheDecisions)

	if len(cfg.AllowedTools) > 0 || len(cfg.DeniedTools) > 0 {
		engine.Register(NewToolAccessPolicy(cfg.AllowedTools, cfg.DeniedTools))
	}
	if len(cfg.DeniedCommands) > 0 || cfg.StrictCommands {
		engine.Register(NewCommandPolicy(cfg.DeniedCommands, cfg.StrictCommands))
	}
	if cfg.WorkspaceOnly {
		engine.Register(NewWorkspacePolicy())
	}
	if cfg.RepeatThreshold > 0 {
		engine.Register(NewRepeatGuardPolicy(cfg.RepeatThreshold))
	}

	return engine
}
