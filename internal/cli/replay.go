package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/geowatch/internal/audit"
	"github.com/ppiankov/geowatch/internal/config"
)

var (
	replayLog     string
	replayFrom    string
	replayTo      string
	replayFormat  string
	replayEvents  []string
	replayInvalid bool
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&replayLog, "log", "l", "", "Path to audit log (default: $GEOWATCH_AUDIT_LOG)")
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "Start time filter (RFC3339)")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "End time filter (RFC3339)")
	replayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")
	replayCmd.Flags().StringSliceVar(&replayEvents, "event", nil, "Only these events (verdict, unavailable, devopts, spoofer_apps, gate, binary_tamper)")
	replayCmd.Flags().BoolVar(&replayInvalid, "invalid", false, "Hide valid verdicts")
}

var replayCmd = &cobra.Command{
	Use:   "replay [session-id]",
	Short: "Replay monitoring sessions from the audit log",
	Long:  "Reads the audit log, filters by session ID and optional time range,\nand renders a verdict timeline with summary. Without a session ID\nevery session is shown.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	path := firstSet(replayLog, config.GetEnv(config.EnvAuditLog, ""))
	if path == "" {
		return fmt.Errorf("no audit log: pass --log or set %s", config.EnvAuditLog)
	}

	filter := audit.ReplayFilter{Events: replayEvents, InvalidOnly: replayInvalid}
	if len(args) == 1 {
		filter.Session = args[0]
	}

	if replayFrom != "" {
		from, err := time.Parse(time.RFC3339, replayFrom)
		if err != nil {
			return fmt.Errorf("invalid --from time %q: %w", replayFrom, err)
		}
		filter.From = from
	}

	if replayTo != "" {
		to, err := time.Parse(time.RFC3339, replayTo)
		if err != nil {
			return fmt.Errorf("invalid --to time %q: %w", replayTo, err)
		}
		filter.To = to
	}

	result, err := audit.Replay(path, filter)
	if err != nil {
		return err
	}

	switch replayFormat {
	case "json":
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), audit.FormatTimeline(result))
	}

	return nil
}
