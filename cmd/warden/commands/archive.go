package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/archive"
	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/hook"
	"github.com/wardenhq/warden/internal/orchestrator"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/pool"
	"github.com/wardenhq/warden/internal/runtime"
	"github.com/wardenhq/warden/internal/session"
	"github.com/wardenhq/warden/pkg/types"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <session-id>",
	Short: "Archive a terminal session's working directory",
	Long: `Archive the working directory of a completed, failed or terminated
session and mark the session ARCHIVED. A session whose directory is gone
is still marked archived, with the failure recorded in the audit trail.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchiveSession,
}

func runArchiveSession(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	appConfig, err := loadConfig(workDir)
	if err != nil {
		return err
	}
	st, err := openStore(appConfig.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	rec := audit.New(st)
	sessions := session.NewService(st, rec)

	archiveDir := ""
	if appConfig.Archive != nil {
		archiveDir = appConfig.Archive.Directory
	}

	orch := orchestrator.New(
		sessions,
		st,
		pool.New(runtime.NewScriptedRuntime(nil), appConfig.Pool),
		policy.FromConfig(st, appConfig.Policies),
		hook.FromConfig(st, appConfig.Hooks),
		archive.NewTarArchiver(archiveDir),
		rec,
	)

	meta, err := orch.Archive(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if meta.Status == types.ArchiveOK {
		fmt.Printf("Archived %s (%d files, %d bytes)\n", meta.Path, meta.FileCount, meta.SizeBytes)
	} else {
		fmt.Printf("Archive failed: %s (session marked archived)\n", meta.Reason)
	}
	return nil
}
