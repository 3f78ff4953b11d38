package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ToolAccessPolicy allows or denies tools by name pattern. The deny list
// is checked first; a non-empty allow list denies anything it does not
// match. Patterns support doublestar wildcards, e.g. "mcp__*" or
// "mcp__github__**".
type ToolAccessPolicy struct {
	allowed []string
	denied  []string
}

// NewToolAccessPolicy creates the policy. Empty lists impose nothing.
func NewToolAccessPolicy(allowed, denied []string) *ToolAccessPolicy {
	return &ToolAccessPolicy{allowed: allowed, denied: denied}
}

func (p *ToolAccessPolicy) Name() string { return "tool_access" }

func (p *ToolAccessPolicy) Priority() int { return 10 }

func (p *ToolAccessPolicy) AppliesTo(tool string) bool { return true }

func (p *ToolAccessPolicy) Evaluate(ctx context.Context, req *Request) (*Verdict, error) {
	for _, pattern := range p.denied {
		ok, err := doublestar.Match(pattern, req.Tool)
		if err != nil {
			return nil, fmt.Errorf("invalid tool pattern %q: %w", pattern, err)
		}
		if ok {
			return Deny("tool matches denied pattern: " + pattern), nil
		}
	}

	if len(p.allowed) > 0 {
		for _, pattern := range p.allowed {
			ok, err := doublestar.Match(pattern, req.Tool)
			if err != nil {
				return nil, fmt.Errorf("invalid tool pattern %q: %w", pattern, err)
			}
			if ok {
				return Allow("tool matches allowed pattern: " + pattern), nil
			}
		}
		return Deny("tool not in allowed list: " + req.Tool), nil
	}

	return Allow("no tool restrictions"), nil
}

// pathKeys are the input fields inspected for workspace containment.
var pathKeys = []string{"file_path", "path", "directory", "notebook_path"}

// WorkspacePolicy denies tool invocations whose path arguments escape the
// session's working directory. Inputs without path arguments pass.
type WorkspacePolicy struct{}

// NewWorkspacePolicy creates the policy.
func NewWorkspacePolicy() *WorkspacePolicy {
	return &WorkspacePolicy{}
}

func (p *WorkspacePolicy) Name() string { return "workspace" }

func (p *WorkspacePolicy) Priority() int { return 30 }

func (p *WorkspacePolicy) AppliesTo(tool string) bool { return true }

func (p *WorkspacePolicy) Evaluate(ctx context.Context, req *Request) (*Verdict, error) {
	if req.Directory == "" {
		return nil, nil
	}

	for _, key := range pathKeys {
		raw, ok := req.Input[key]
		if !ok {
			continue
		}
		path, ok := raw.(string)
		if !ok || path == "" {
			continue
		}

		resolved := path
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(req.Directory, resolved)
		}
		resolved = filepath.Clean(resolved)

		if !isWithinDir(resolved, req.Directory) {
			return Deny(fmt.Sprintf("path escapes workspace: %s", path)), nil
		}
	}

	return Allow("paths within workspace"), nil
}

// isWithinDir checks whether path is dir or under it.
func isWithinDir(path, dir string) bool {
	path = filepath.Clean(path)
	dir = filepath.Clean(dir)

	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
