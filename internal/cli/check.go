package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/geowatch/internal/policy"
	"github.com/ppiankov/geowatch/internal/scenario"
)

var (
	checkScenario string
	checkPolicy   string
	checkFormat   string
	checkBuiltin  bool
)

// errCheckFailed makes the command exit 1 when any case fails.
var errCheckFailed = fmt.Errorf("scenario assertions failed")

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkScenario, "scenario", "", "Glob pattern for scenario YAML files")
	checkCmd.Flags().StringVar(&checkPolicy, "policy", "", "Path to policy YAML (optional)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	checkCmd.Flags().BoolVar(&checkBuiltin, "builtin", false, "Also run the built-in scenarios")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run rule assertions from scenario files",
	Long: "Loads scenario YAML files matching a glob pattern, evaluates each\n" +
		"case through the rule engine, and reports pass/fail.\n\n" +
		"Without --scenario the built-in scenarios run.\n" +
		"Exit code 0 if all cases pass, 1 if any fail.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	results, err := checkResults()
	if err != nil {
		return err
	}

	switch checkFormat {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), scenario.FormatText(results))
	}

	for _, r := range results {
		if r.Failed > 0 {
			return errCheckFailed
		}
	}
	return nil
}

func checkResults() ([]*scenario.RunResult, error) {
	var results []*scenario.RunResult

	if checkScenario == "" || checkBuiltin {
		cfg, err := policy.LoadConfig(checkPolicy)
		if err != nil {
			return nil, err
		}
		for _, s := range scenario.Builtin() {
			results = append(results, scenario.Run(s, cfg))
		}
	}

	if checkScenario == "" {
		return results, nil
	}

	matches, err := filepath.Glob(checkScenario)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no scenario files match pattern: %s", checkScenario)
	}
	for _, path := range matches {
		r, err := scenario.LoadAndRun(path, checkPolicy)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		results = append(results, r)
	}
	return results, nil
}
