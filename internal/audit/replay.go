package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"time"
)

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// ReplayFilter holds filtering criteria for session replay.
// Zero fields match everything.
type ReplayFilter struct {
	Session string
	From    time.Time
	To      time.Time
	Events  []string // audit event names, e.g. verdict, devopts
	// InvalidOnly drops valid verdicts and keeps every other event.
	InvalidOnly bool
}

func (f ReplayFilter) match(e AuditEntry) bool {
	if f.Session != "" && e.Session != f.Session {
		return false
	}
	if len(f.Events) > 0 && !slices.Contains(f.Events, e.Event) {
		return false
	}
	if f.InvalidOnly && e.Event == EventVerdict && e.Valid {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	return f.To.IsZero() || !ts.After(f.To)
}

// ReplaySummary holds verdict counts for a replayed session.
type ReplaySummary struct {
	Total            int            `json:"total"`
	ValidCount       int            `json:"valid_count"`
	InvalidCount     int            `json:"invalid_count"`
	UnavailableCount int            `json:"unavailable_count"`
	DevOptsCount     int            `json:"devopts_count"`
	SpooferAppsCount int            `json:"spoofer_apps_count"`
	TamperCount      int            `json:"binary_tamper_count,omitempty"`
	IssueCounts      map[string]int `json:"issue_counts,omitempty"`
	FirstTimestamp   string         `json:"first_timestamp"`
	LastTimestamp    string         `json:"last_timestamp"`
}

// ReplayResult holds filtered entries and summary for a session replay.
type ReplayResult struct {
	Session string        `json:"session"`
	Entries []AuditEntry  `json:"entries"`
	Summary ReplaySummary `json:"summary"`
}

// Replay reads the audit log and returns entries matching the filter.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{
		Session: filter.Session,
	}

	err = eachLine(f, func(_ int, line []byte) error {
		var entry AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil // malformed lines are skipped; Verify reports them
		}
		if filter.match(entry) {
			result.Entries = append(result.Entries, entry)
			updateSummary(&result.Summary, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	return result, nil
}

func updateSummary(s *ReplaySummary, entry AuditEntry) {
	s.Total++

	switch entry.Event {
	case EventVerdict:
		if entry.Valid {
			s.ValidCount++
		} else {
			s.InvalidCount++
		}
	case EventUnavailable:
		s.UnavailableCount++
	case EventDevOpts:
		s.DevOptsCount++
	case EventSpooferApps:
		s.SpooferAppsCount++
	case EventTamper:
		s.TamperCount++
	}

	for _, is := range entry.Issues {
		if s.IssueCounts == nil {
			s.IssueCounts = make(map[string]int)
		}
		s.IssueCounts[is.Code]++
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}
