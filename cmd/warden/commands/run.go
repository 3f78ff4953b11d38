package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/headless"
	"github.com/wardenhq/warden/pkg/types"
)

var (
	runWorkDir      string
	runOutputFormat string
	runTimeout      string
	runStdin        bool
	runQuiet        bool
	runVerbose      bool
	runModel        string
	runScenario     string
	runTitle        string
	runArchive      bool
)

var runCmd = &cobra.Command{
	Use:   "run [prompt...]",
	Short: "Run a one-shot headless session",
	Long: `Run a one-shot headless session: create a session, send the prompt,
stream progress, and print the result.

Examples:
  # Simple prompt
  warden run "Refactor the auth module"

  # Read the prompt from stdin
  echo "Fix the failing test" | warden run --stdin

  # JSON result for programmatic consumption
  warden run -o json "Summarize recent changes"

  # Stream JSONL events
  warden run -o jsonl "Implement feature X" | jq -r '.type'

  # Archive the working directory when the session completes
  warden run --archive "Apply the migration"`,
	RunE: runHeadless,
}

func init() {
	runCmd.Flags().StringVarP(&runWorkDir, "workdir", "w", "", "Working directory")
	runCmd.Flags().BoolVar(&runStdin, "stdin", false, "Read prompt from stdin")
	runCmd.Flags().StringVarP(&runOutputFormat, "output-format", "o", "text", "Output format: text, json, jsonl")
	runCmd.Flags().StringVarP(&runTimeout, "timeout", "t", "10m", "Maximum execution time (e.g., 5m, 1h)")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress progress output, only show the reply")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Show all events")
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model override")
	runCmd.Flags().StringVar(&runScenario, "scenario", "", "Scripted-runtime scenario file")
	runCmd.Flags().StringVar(&runTitle, "title", "", "Session title")
	runCmd.Flags().BoolVar(&runArchive, "archive", false, "Archive the working directory after completion")
}

func runHeadless(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(runWorkDir)
	if err != nil {
		return err
	}

	timeout, err := time.ParseDuration(runTimeout)
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}

	var outputFormat headless.OutputFormat
	switch strings.ToLower(runOutputFormat) {
	case "text":
		outputFormat = headless.OutputText
	case "json":
		outputFormat = headless.OutputJSON
	case "jsonl":
		outputFormat = headless.OutputJSONL
	default:
		return fmt.Errorf("invalid output format: %s (must be text, json, or jsonl)", runOutputFormat)
	}

	prompt := strings.Join(args, " ")
	if prompt == "" && !runStdin {
		return fmt.Errorf("prompt required. Provide it as an argument or via --stdin")
	}

	cfg := &headless.Config{
		Prompt:       prompt,
		WorkDir:      workDir,
		ConfigFile:   configFile,
		OutputFormat: outputFormat,
		Timeout:      timeout,
		ReadStdin:    runStdin,
		Model:        runModel,
		Scenario:     runScenario,
		Title:        runTitle,
		Archive:      runArchive,
		Quiet:        runQuiet,
		Verbose:      runVerbose,
	}
	if logFlagsChanged() {
		cfg.LogOverride = &types.LogConfig{Level: logLevel, Pretty: prettyLogs}
	}

	runner := headless.NewRunner(cfg)
	result, err := runner.Run(cmd.Context(), os.Stdout)

	if result != nil {
		os.Exit(int(result.ExitCode))
	}
	return err
}
