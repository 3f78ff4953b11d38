// Package policy decides whether the external runtime may invoke a tool.
// Policies vote allow/deny in priority order; the first deny wins and a
// policy error discards that policy's vote rather than blocking the call.
package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Request describes one tool invocation under evaluation.
type Request struct {
	SessionID string
	Tool      string
	Input     map[string]any
	// Directory is the session's working directory, used for path
	// containment checks.
	Directory string
}

// Verdict is a policy's vote on a request.
type Verdict struct {
	Allow  bool
	Reason string
}

// Allow builds an allowing verdict.
func Allow(reason string) *Verdict {
	return &Verdict{Allow: true, Reason: reason}
}

// Deny builds a denying verdict.
func Deny(reason string) *Verdict {
	return &Verdict{Allow: false, Reason: reason}
}

// Policy votes on tool invocations. Evaluate may return a nil verdict to
// abstain. Implementations must be safe for concurrent use.
type Policy interface {
	Name() string
	// Priority orders evaluation; lower runs first.
	Priority() int
	AppliesTo(tool string) bool
	Evaluate(ctx context.Context, req *Request) (*Verdict, error)
}

// StableHash returns a deterministic digest of a tool invocation, used for
// decision caching and repeat detection. encoding/json sorts map keys, so
// equal inputs hash equally regardless of construction order.
func StableHash(tool string, input map[string]any) string {
	data, _ := json.Marshal(map[string]any{
		"tool":  tool,
		"input": input,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
