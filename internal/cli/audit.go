package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/geowatch/internal/audit"
)

var tailLines int

// errTampered makes audit verify exit 1.
var errTampered = fmt.Errorf("audit log hash chain broken")

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained verdict log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path|->",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. \"-\" reads the log from stdin.\nExits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent audit log entries",
	Long:  "Reads the last N entries from the JSONL audit log and pretty-prints them.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	var result audit.VerifyResult
	if args[0] == "-" {
		result = audit.VerifyReader(cmd.InOrStdin())
	} else {
		result = audit.Verify(args[0])
	}
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified across %d sessions\n", result.Lines, result.Sessions)
		if result.Tampers > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "WARNING: %d binary_tamper events recorded\n", result.Tampers)
		}
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	return errTampered
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	lines, err := audit.Tail(args[0], tailLines)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, line := range lines {
		var entry audit.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			fmt.Fprintln(out, string(line))
			continue
		}
		pretty, _ := json.MarshalIndent(entry, "", "  ")
		fmt.Fprintln(out, string(pretty))
	}
	return nil
}
