package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

var sets = []string{"suspect_providers", "spoofer_apps", "rate_limits", "alerts"}

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Policy diff: %s -> %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Policy diff: %s -> %s\n", r.OldPath, r.NewPath)

	writeSection(&b, "Thresholds", "thresholds.", r.Changes)
	writeSection(&b, "Monitor", "monitor.", r.Changes)
	writeSection(&b, "Developer options", "devopts.", r.Changes)
	writeSection(&b, "Gate", "gate.", r.Changes)

	for _, set := range sets {
		changes := filterChanges(r.Changes, set)
		if len(changes) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n  %s:\n", set)
		for _, c := range changes {
			switch c.Comment {
			case "added":
				fmt.Fprintf(&b, "    + %s\n", c.New)
			case "removed":
				fmt.Fprintf(&b, "    - %s\n", c.Old)
			}
		}
	}

	return b.String()
}

func writeSection(b *strings.Builder, title, prefix string, all []Change) {
	changes := filterChanges(all, prefix)
	if len(changes) == 0 {
		return
	}
	fmt.Fprintf(b, "\n  %s:\n", title)
	for _, c := range changes {
		name := strings.TrimPrefix(c.Field, prefix)
		fmt.Fprintf(b, "    %-28s %s -> %s", name+":", c.Old, c.New)
		if c.Comment != "" {
			fmt.Fprintf(b, "  (%s)", c.Comment)
		}
		b.WriteString("\n")
	}
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

func filterChanges(changes []Change, prefix string) []Change {
	var out []Change
	for _, c := range changes {
		if strings.HasPrefix(c.Field, prefix) {
			out = append(out, c)
		}
	}
	return out
}
