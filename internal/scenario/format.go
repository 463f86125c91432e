package scenario

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// FormatText renders a list of run results as human-readable text.
func FormatText(results []*RunResult) string {
	var b strings.Builder

	totalFiles := len(results)
	fmt.Fprintf(&b, "Checking %d scenario file", totalFiles)
	if totalFiles != 1 {
		b.WriteString("s")
	}
	b.WriteString("...\n\n")

	totalCases := 0
	totalPassed := 0
	failedScenarios := 0

	for _, r := range results {
		totalCases += r.Total
		totalPassed += r.Passed

		if r.Failed == 0 {
			fmt.Fprintf(&b, "  PASS  %s (%d/%d)\n", r.Name, r.Passed, r.Total)
		} else {
			failedScenarios++
			fmt.Fprintf(&b, "  FAIL  %s (%d/%d)\n", r.Name, r.Passed, r.Total)
			for _, c := range r.Cases {
				if !c.Passed {
					fmt.Fprintf(&b, "    FAIL  case %d (%s): expected %s, got %s\n",
						c.Index, c.Mode, codes(c.Expected), codes(c.Actual))
					if c.Note != "" {
						fmt.Fprintf(&b, "          %s\n", c.Note)
					}
					if missing := without(c.Expected, c.Actual); len(missing) > 0 {
						fmt.Fprintf(&b, "          missing:    %s\n", strings.Join(missing, ","))
					}
					if extra := without(c.Actual, c.Expected); len(extra) > 0 {
						fmt.Fprintf(&b, "          unexpected: %s\n", strings.Join(extra, ","))
					}
					for _, line := range c.Lines {
						fmt.Fprintf(&b, "          > %s\n", line)
					}
				}
			}
		}
	}

	fmt.Fprintf(&b, "\n%d of %d cases passed.", totalPassed, totalCases)
	if failedScenarios > 0 {
		fmt.Fprintf(&b, " %d of %d scenarios failed.", failedScenarios, totalFiles)
	}
	b.WriteString("\n")

	return b.String()
}

func codes(c []string) string {
	if len(c) == 0 {
		return "valid"
	}
	return strings.Join(c, ",")
}

// without returns the codes of a that are not in b, in a's order.
func without(a, b []string) []string {
	var out []string
	for _, c := range a {
		if !slices.Contains(b, c) {
			out = append(out, c)
		}
	}
	return out
}

// FormatJSON renders run results as JSON.
func FormatJSON(results []*RunResult) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(data), nil
}
