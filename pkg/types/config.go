package types

// Config is the Warden engine configuration, loaded from layered
// warden.json[c] files and WARDEN_* environment variables.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Runtime defaults applied to new sessions
	Runtime *RuntimeDefaults `json:"runtime,omitempty"`

	// Connection pool behavior
	Pool *PoolConfig `json:"pool,omitempty"`

	// Persistence backend
	Store *StoreConfig `json:"store,omitempty"`

	// Built-in policy configuration
	Policies *PolicyConfig `json:"policies,omitempty"`

	// Built-in hook configuration
	Hooks *HookConfig `json:"hooks,omitempty"`

	// Working-directory archival
	Archive *ArchiveConfig `json:"archive,omitempty"`

	// Logging
	Log *LogConfig `json:"log,omitempty"`
}

// RuntimeDefaults seeds the RuntimeConfig of sessions that do not set
// their own values.
type RuntimeDefaults struct {
	Model          string                     `json:"model,omitempty"`
	SystemPrompt   string                     `json:"systemPrompt,omitempty"`
	PermissionMode PermissionMode             `json:"permissionMode,omitempty"`
	MCPServers     map[string]MCPServerConfig `json:"mcpServers,omitempty"`
	// Scenario is the YAML scenario file for the scripted runtime.
	Scenario string `json:"scenario,omitempty"`
}

// PoolConfig bounds connection establishment.
type PoolConfig struct {
	// TimeoutSeconds bounds a single connection attempt. 0 means no bound.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
	// MaxAttempts is the total number of connection attempts before giving up.
	MaxAttempts int `json:"maxAttempts,omitempty"`
	// BackoffBaseMS is the initial retry delay; each retry doubles it.
	BackoffBaseMS int `json:"backoffBaseMs,omitempty"`
	// BackoffMaxMS caps the retry delay.
	BackoffMaxMS int `json:"backoffMaxMs,omitempty"`
}

// StoreConfig selects and locates the persistence backend.
type StoreConfig struct {
	Driver string `json:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `json:"path,omitempty"`   // sqlite database file
}

// PolicyConfig configures the built-in policies. Empty lists disable the
// corresponding policy.
type PolicyConfig struct {
	AllowedTools    []string `json:"allowedTools,omitempty"`
	DeniedTools     []string `json:"deniedTools,omitempty"`
	DeniedCommands  []string `json:"deniedCommands,omitempty"`
	StrictCommands  bool     `json:"strictCommands,omitempty"`
	WorkspaceOnly   bool     `json:"workspaceOnly,omitempty"`
	RepeatThreshold int      `json:"repeatThreshold,omitempty"`
	// CacheDecisions enables the per-session decision cache.
	CacheDecisions bool `json:"cacheDecisions,omitempty"`
}

// HookConfig configures the built-in hooks.
type HookConfig struct {
	Log       bool           `json:"log,omitempty"`
	Broadcast bool           `json:"broadcast,omitempty"`
	Webhook   *WebhookConfig `json:"webhook,omitempty"`
}

// WebhookConfig points the webhook hook at an external receiver.
type WebhookConfig struct {
	URL string `json:"url"`
	// Events limits delivery to the named hook events; empty means all.
	Events []string `json:"events,omitempty"`
	// TimeoutMS bounds the POST round trip.
	TimeoutMS int `json:"timeoutMs,omitempty"`
}

// ArchiveConfig locates session archives.
type ArchiveConfig struct {
	Directory string `json:"directory,omitempty"`
}

// LogConfig controls the zerolog setup.
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Pretty bool   `json:"pretty,omitempty"`
}
