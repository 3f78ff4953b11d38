package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// shellTools are the tool names treated as shell executors.
var shellTools = map[string]bool{
	"bash":  true,
	"shell": true,
}

// Command is one parsed shell command with its arguments.
type Command struct {
	Name string
	Args []string
}

// CommandPolicy denies shell commands matching configured patterns.
// Patterns are space-separated prefix matches where "*" matches any single
// part: "rm -rf" denies "rm -rf /", "git push *" denies any git push, and
// "git" denies everything git. More specific patterns are reported first.
type CommandPolicy struct {
	patterns []string
	strict   bool
}

// NewCommandPolicy creates the policy. When strict is set, commands that
// cannot be parsed are denied rather than passed through.
func NewCommandPolicy(denied []string, strict bool) *CommandPolicy {
	patterns := make([]string, len(denied))
	copy(patterns, denied)
	// Most specific pattern first: more concrete parts, then more parts.
	sort.SliceStable(patterns, func(i, j int) bool {
		ci, ti := patternWeight(patterns[i])
		cj, tj := patternWeight(patterns[j])
		if ci != cj {
			return ci > cj
		}
		return ti > tj
	})
	return &CommandPolicy{patterns: patterns, strict: strict}
}

func patternWeight(pattern string) (concrete, total int) {
	parts := strings.Fields(pattern)
	for _, p := range parts {
		if p != "*" {
			concrete++
		}
	}
	return concrete, len(parts)
}

func (p *CommandPolicy) Name() string { return "command" }

func (p *CommandPolicy) Priority() int { return 20 }

func (p *CommandPolicy) AppliesTo(tool string) bool {
	return shellTools[strings.ToLower(tool)]
}

func (p *CommandPolicy) Evaluate(ctx context.Context, req *Request) (*Verdict, error) {
	raw, ok := req.Input["command"]
	if !ok {
		return nil, nil
	}
	command, ok := raw.(string)
	if !ok || strings.TrimSpace(command) == "" {
		return nil, nil
	}

	commands, err := ParseCommands(command)
	if err != nil {
		if p.strict {
			return Deny("command could not be parsed: " + err.Error()), nil
		}
		return Allow("command not parseable, strict mode off"), nil
	}

	for _, cmd := range commands {
		for _, pattern := range p.patterns {
			if matchCommandPattern(pattern, cmd) {
				return Deny("denied command pattern: " + pattern), nil
			}
		}
	}

	return Allow("no denied command pattern matched"), nil
}

// ParseCommands parses a shell command line into its individual commands,
// including both sides of pipes and command substitutions.
func ParseCommands(command string) ([]Command, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}

	var commands []Command
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})

	return commands, nil
}

// extractCommand extracts name and arguments from a call expression.
func extractCommand(call *syntax.CallExpr) *Command {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &Command{Name: wordToString(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		cmd.Args = append(cmd.Args, wordToString(arg))
	}
	return cmd
}

// wordToString flattens a shell word. Variable expansions and command
// substitutions become placeholders so they can never satisfy a literal
// pattern part.
func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// matchCommandPattern reports whether the pattern matches the command.
// Pattern parts match the command's leading parts positionally; "*"
// matches any single part; a trailing "*" is optional.
func matchCommandPattern(pattern string, cmd Command) bool {
	parts := strings.Fields(pattern)
	if len(parts) == 0 {
		return false
	}
	if parts[len(parts)-1] == "*" {
		parts = parts[:len(parts)-1]
		if len(parts) == 0 {
			return true
		}
	}

	cmdParts := append([]string{cmd.Name}, cmd.Args...)
	if len(parts) > len(cmdParts) {
		return false
	}

	for i, p := range parts {
		if p != "*" && p != cmdParts[i] {
			return false
		}
	}
	return true
}
