package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/pkg/types"
)

var (
	sessionsStatus string
	sessionsUser   string
	sessionsLimit  int
	sessionsJSON   bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect persisted sessions",
	Long: `Inspect sessions recorded in the configured store.

Examples:
  warden sessions list
  warden sessions list --status failed
  warden sessions show 01JF8B2M9GQ0V4N8X5T3R7KDWZ`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session with its messages, tool calls and decisions",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

func init() {
	sessionsListCmd.Flags().StringVar(&sessionsStatus, "status", "", "Filter by status")
	sessionsListCmd.Flags().StringVar(&sessionsUser, "user", "", "Filter by user id")
	sessionsListCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum sessions to list")
	sessionsListCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")
	sessionsShowCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
}

// openConfiguredStore loads the config for the current directory and opens
// the store it names.
func openConfiguredStore() (store.Store, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	appConfig, err := loadConfig(workDir)
	if err != nil {
		return nil, err
	}
	return openStore(appConfig.Store)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	st, err := openConfiguredStore()
	if err != nil {
		return err
	}
	defer st.Close()

	filter := store.SessionFilter{Limit: sessionsLimit}
	if sessionsStatus != "" {
		status := types.SessionStatus(sessionsStatus)
		filter.Status = &status
	}
	if sessionsUser != "" {
		filter.UserID = &sessionsUser
	}

	sessions, err := st.ListSessions(context.Background(), filter)
	if err != nil {
		return err
	}

	if sessionsJSON {
		data, err := json.MarshalIndent(sessions, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tMODE\tTITLE\tMSGS\tTOOLS\tCOST\tCREATED\t")
	for _, sess := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t$%.4f\t%s\t\n",
			sess.ID,
			sess.Status,
			sess.Mode,
			truncate(sess.Title, 30),
			sess.Metrics.MessageCount,
			sess.Metrics.ToolCallCount,
			sess.Metrics.CostUSD,
			fmtTime(sess.Time.Created),
		)
	}
	return w.Flush()
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	st, err := openConfiguredStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	sess, err := st.GetSession(ctx, args[0])
	if err != nil {
		return err
	}
	msgs, err := st.ListMessages(ctx, sess.ID, 0)
	if err != nil {
		return err
	}
	calls, err := st.ListToolCalls(ctx, sess.ID, 0)
	if err != nil {
		return err
	}
	decisions, err := st.ListPolicyDecisions(ctx, sess.ID, 0)
	if err != nil {
		return err
	}

	if sessionsJSON {
		data, err := json.MarshalIndent(map[string]any{
			"session":   sess,
			"messages":  msgs,
			"toolCalls": calls,
			"decisions": decisions,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printSession(sess)
	printMessages(msgs)
	printToolCalls(calls)
	printDecisions(decisions)
	return nil
}

func printSession(sess *types.Session) {
	fmt.Printf("Session:    %s\n", sess.ID)
	if sess.Title != "" {
		fmt.Printf("Title:      %s\n", sess.Title)
	}
	fmt.Printf("Status:     %s\n", sess.Status)
	fmt.Printf("Mode:       %s\n", sess.Mode)
	fmt.Printf("User:       %s\n", sess.UserID)
	fmt.Printf("Directory:  %s\n", sess.Directory)
	if sess.ParentID != nil {
		fmt.Printf("Parent:     %s\n", *sess.ParentID)
	}
	if sess.Config.Model != "" {
		fmt.Printf("Model:      %s\n", sess.Config.Model)
	}
	fmt.Printf("Created:    %s\n", fmtTime(sess.Time.Created))
	if sess.Time.Started != nil {
		fmt.Printf("Started:    %s\n", fmtTime(*sess.Time.Started))
	}
	if sess.Time.Completed != nil {
		fmt.Printf("Completed:  %s\n", fmtTime(*sess.Time.Completed))
		fmt.Printf("Duration:   %s\n", time.Duration(sess.Time.DurationMS)*time.Millisecond)
	}
	fmt.Printf("Metrics:    %d messages, %d tool calls, %d turns\n",
		sess.Metrics.MessageCount, sess.Metrics.ToolCallCount, sess.Metrics.TurnCount)
	fmt.Printf("Usage:      in %d, out %d tokens, $%.4f\n",
		sess.Metrics.InputTokens, sess.Metrics.OutputTokens, sess.Metrics.CostUSD)
	if sess.Result != nil {
		fmt.Printf("Result:     %s\n", truncate(*sess.Result, 200))
	}
	if sess.Error != nil {
		fmt.Printf("Error:      %s\n", *sess.Error)
	}
}

func printMessages(msgs []*types.Message) {
	if len(msgs) == 0 {
		return
	}
	fmt.Println("\nMessages:")
	for _, msg := range msgs {
		fmt.Printf("  [%d] %s: %s\n", msg.Seq, msg.Role, truncate(msg.Content, 100))
	}
}

func printToolCalls(calls []*types.ToolCall) {
	if len(calls) == 0 {
		return
	}
	fmt.Println("\nTool calls:")
	for _, call := range calls {
		input := ""
		if len(call.Input) > 0 {
			if data, err := json.Marshal(call.Input); err == nil {
				input = " " + truncate(string(data), 80)
			}
		}
		fmt.Printf("  [%s] %s (%dms)%s\n", call.Status, call.Name, call.DurationMS, input)
		if call.Output != nil && *call.Output != "" {
			fmt.Printf("      %s\n", truncate(*call.Output, 120))
		}
	}
}

func printDecisions(decisions []*types.PolicyDecision) {
	if len(decisions) == 0 {
		return
	}
	fmt.Println("\nPolicy decisions:")
	for _, dec := range decisions {
		fmt.Printf("  [%s] %s by %s: %s\n", dec.Decision, dec.Tool, dec.DecidedBy, dec.Reason)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func fmtTime(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}
