package testutil

import (
	"fmt"

	"github.com/wardenhq/warden/internal/runtime"
)

// Scenario returns the scripted scenario the e2e suite drives: a plain
// reply, a tool-using turn, a denied command, a repeating loop, and a
// ten-step checklist.
func Scenario() *runtime.Scenario {
	checklist := make([]runtime.ToolStep, 0, 10)
	for i := 1; i <= 10; i++ {
		checklist = append(checklist, runtime.ToolStep{
			ID:     fmt.Sprintf("toolu_step_%02d", i),
			Tool:   "bash",
			Input:  map[string]any{"command": fmt.Sprintf("echo step %d", i)},
			Result: fmt.Sprintf("step %d done", i),
		})
	}

	loop := make([]runtime.ToolStep, 0, 5)
	for i := 0; i < 5; i++ {
		loop = append(loop, runtime.ToolStep{
			Tool:   "bash",
			Input:  map[string]any{"command": "make build"},
			Result: "build failed",
		})
	}

	return &runtime.Scenario{
		Defaults: runtime.ScenarioDefaults{
			Fallback: "Acknowledged.",
			Usage: &runtime.UsageConfig{
				InputTokens:  18,
				OutputTokens: 7,
				CostUSD:      0.0002,
				Turns:        1,
			},
		},
		Rules: []runtime.Rule{
			{
				Name:     "greet",
				Match:    runtime.MatchConfig{Contains: "hello"},
				Response: "Hello! Ready to help.",
			},
			{
				Name:     "list-files",
				Match:    runtime.MatchConfig{Contains: "list files"},
				Response: "Here are the files.",
				Tools: []runtime.ToolStep{
					{
						ID:     "toolu_ls",
						Tool:   "bash",
						Input:  map[string]any{"command": "ls -la"},
						Result: "main.go\ngo.mod\n",
					},
				},
			},
			{
				Name:     "wipe",
				Match:    runtime.MatchConfig{Contains: "wipe"},
				Response: "Wiping the workspace.",
				Tools: []runtime.ToolStep{
					{
						ID:     "toolu_rm",
						Tool:   "bash",
						Input:  map[string]any{"command": "rm -rf /"},
						Result: "gone",
					},
				},
			},
			{
				Name:     "loop",
				Match:    runtime.MatchConfig{Contains: "keep building"},
				Response: "Retrying the build.",
				Tools:    loop,
			},
			{
				Name:     "checklist",
				Match:    runtime.MatchConfig{Contains: "run the checklist"},
				Response: "Working through the checklist.",
				Tools:    checklist,
			},
		},
	}
}

// FlakyScenario returns the suite scenario with the first failConnects
// connection attempts failing.
func FlakyScenario(failConnects int) *runtime.Scenario {
	s := Scenario()
	s.Settings.FailConnects = failConnects
	return s
}
