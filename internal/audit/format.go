package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	label := result.Session
	if label == "" {
		label = "all sessions"
	}
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Session: %s | No entries found.\n", label)
	}

	var b strings.Builder

	first := formatDateTime(result.Summary.FirstTimestamp)
	last := formatTimeOnly(result.Summary.LastTimestamp)
	fmt.Fprintf(&b, "Session: %s | %s - %s UTC\n", label, first, last)
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		fmt.Fprintf(&b, "%-10s %-12s %-8s %-22s %s\n",
			formatTimeOnly(e.Timestamp), e.Event, status(e), position(e.Position), issueList(e))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))

	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func status(e AuditEntry) string {
	if e.Valid {
		return "OK"
	}
	return "INVALID"
}

func position(p AuditPosition) string {
	if p.Latitude == 0 && p.Longitude == 0 {
		return "-"
	}
	return fmt.Sprintf("%.5f,%.5f", p.Latitude, p.Longitude)
}

func issueList(e AuditEntry) string {
	if len(e.Issues) == 0 {
		return e.Reason
	}
	codes := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		codes[i] = is.Code
	}
	return strings.Join(codes, ",")
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	parts := []string{}
	if s.ValidCount > 0 {
		parts = append(parts, fmt.Sprintf("%d valid", s.ValidCount))
	}
	if s.InvalidCount > 0 {
		parts = append(parts, fmt.Sprintf("%d invalid", s.InvalidCount))
	}
	if s.UnavailableCount > 0 {
		parts = append(parts, fmt.Sprintf("%d unavailable", s.UnavailableCount))
	}
	if s.DevOptsCount > 0 {
		parts = append(parts, fmt.Sprintf("%d devopts", s.DevOptsCount))
	}
	if s.SpooferAppsCount > 0 {
		parts = append(parts, fmt.Sprintf("%d spoofer-apps", s.SpooferAppsCount))
	}

	line := "Summary: " + strings.Join(parts, ", ")
	if len(s.IssueCounts) > 0 {
		codes := make([]string, 0, len(s.IssueCounts))
		for c := range s.IssueCounts {
			codes = append(codes, c)
		}
		sort.Strings(codes)
		issues := make([]string, len(codes))
		for i, c := range codes {
			issues[i] = fmt.Sprintf("%s=%d", c, s.IssueCounts[c])
		}
		line += " | Issues: " + strings.Join(issues, " ")
	}
	return line + "\n"
}
