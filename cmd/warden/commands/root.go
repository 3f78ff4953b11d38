// Package commands provides the CLI commands for Warden.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/pkg/types"
)

// Build metadata, overridden via -ldflags at release time.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Flags shared by every subcommand.
var (
	logLevel   string
	prettyLogs bool
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - session orchestration and policy enforcement",
	Long: `Warden brokers agent sessions against an external runtime, enforcing
tool policies, running lifecycle hooks, and keeping a persistent audit
trail of everything a session did.

Run 'warden run "your prompt"' for a one-shot headless session, or
'warden sessions list' to inspect past sessions.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		logging.Init(logging.Config{
			Level:  logging.ParseLevel(logLevel),
			Pretty: prettyLogs,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty-logs", false, "Human-readable log output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Explicit config file")

	rootCmd.SetVersionTemplate(fmt.Sprintf("warden %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(archiveCmd)
}

// Execute dispatches the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir resolves the session working directory: the flag value
// when given, otherwise the current directory.
func GetWorkDir(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	return dir, nil
}

// logFlagsChanged reports whether the user gave explicit logging flags.
func logFlagsChanged() bool {
	flags := rootCmd.PersistentFlags()
	return flags.Changed("log-level") || flags.Changed("pretty-logs")
}

// applyLogConfig re-initializes logging from the loaded configuration,
// unless explicit CLI flags already set it.
func applyLogConfig(appConfig *types.Config) {
	if logFlagsChanged() || appConfig.Log == nil {
		return
	}
	logging.Init(logging.Config{
		Level:  logging.ParseLevel(appConfig.Log.Level),
		Pretty: appConfig.Log.Pretty,
	})
}

// loadConfig loads the layered configuration for the given workdir,
// honoring the persistent --config flag.
func loadConfig(workDir string) (*types.Config, error) {
	appConfig, err := config.Load(workDir, configFile)
	if err != nil {
		return nil, err
	}
	applyLogConfig(appConfig)
	return appConfig, nil
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
