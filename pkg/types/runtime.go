package types

// PermissionMode controls how the runtime asks for tool authorization.
type PermissionMode string

const (
	// PermissionDefault consults the policy callback on every tool use.
	PermissionDefault PermissionMode = "default"
	// PermissionAcceptEdits auto-approves file edits, still consulting the
	// callback for everything else.
	PermissionAcceptEdits PermissionMode = "acceptEdits"
	// PermissionBypass skips the authorization callback entirely.
	PermissionBypass PermissionMode = "bypassPermissions"
)

// RuntimeConfig is the per-session configuration handed to the external
// runtime when the pooled connection is created.
type RuntimeConfig struct {
	Model           string                     `json:"model,omitempty"`
	SystemPrompt    string                     `json:"systemPrompt,omitempty"`
	AllowedTools    []string                   `json:"allowedTools,omitempty"`
	DisallowedTools []string                   `json:"disallowedTools,omitempty"`
	PermissionMode  PermissionMode             `json:"permissionMode,omitempty"`
	MCPServers      map[string]MCPServerConfig `json:"mcpServers,omitempty"`
	MaxTurns        int                        `json:"maxTurns,omitempty"`
}

// MCPTransport identifies how an MCP server is reached.
type MCPTransport string

const (
	MCPTransportStdio  MCPTransport = "stdio"
	MCPTransportLocal  MCPTransport = "local"
	MCPTransportRemote MCPTransport = "remote"
)

// MCPServerConfig describes one MCP server entry in the session config.
// The engine passes these through to the runtime opaquely.
type MCPServerConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Type        MCPTransport      `json:"type,omitempty"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Command     []string          `json:"command,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	// Timeout in seconds for server startup and calls.
	Timeout int `json:"timeout,omitempty"`
}

// Clone returns a deep copy of the runtime configuration. Forked sessions
// must not share slices or maps with their parent.
func (c RuntimeConfig) Clone() RuntimeConfig {
	out := c
	if c.AllowedTools != nil {
		out.AllowedTools = append([]string(nil), c.AllowedTools...)
	}
	if c.DisallowedTools != nil {
		out.DisallowedTools = append([]string(nil), c.DisallowedTools...)
	}
	if c.MCPServers != nil {
		out.MCPServers = make(map[string]MCPServerConfig, len(c.MCPServers))
		for name, srv := range c.MCPServers {
			out.MCPServers[name] = srv.clone()
		}
	}
	return out
}

func (s MCPServerConfig) clone() MCPServerConfig {
	out := s
	if s.Headers != nil {
		out.Headers = make(map[string]string, len(s.Headers))
		for k, v := range s.Headers {
			out.Headers[k] = v
		}
	}
	if s.Command != nil {
		out.Command = append([]string(nil), s.Command...)
	}
	if s.Environment != nil {
		out.Environment = make(map[string]string, len(s.Environment))
		for k, v := range s.Environment {
			out.Environment[k] = v
		}
	}
	return out
}
