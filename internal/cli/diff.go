package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/geowatch/internal/policy"
	"github.com/ppiankov/geowatch/internal/policydiff"
)

var diffFormat string

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text", "Output format (text|json)")
}

var diffCmd = &cobra.Command{
	Use:   "diff <old.yaml> <new.yaml>",
	Short: "Compare two policy files and show changes",
	Long:  "Loads two policy YAML files and shows which limits became stricter or looser,\nplus spoofer apps, suspect providers, rate limits and alert hooks added or removed.",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldCfg, oldHash, err := policy.LoadConfigWithHash(args[0])
	if err != nil {
		return fmt.Errorf("load old policy: %w", err)
	}
	newCfg, newHash, err := policy.LoadConfigWithHash(args[1])
	if err != nil {
		return fmt.Errorf("load new policy: %w", err)
	}

	result := policydiff.Diff(oldCfg, newCfg)
	result.OldPath, result.NewPath = args[0], args[1]
	result.OldHash, result.NewHash = oldHash, newHash

	out := cmd.OutOrStdout()
	switch diffFormat {
	case "json":
		s, err := policydiff.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	default:
		fmt.Fprint(out, policydiff.FormatText(result))
	}
	return nil
}
