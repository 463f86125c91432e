package audit

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFormatTimelineHeaderAndSummary(t *testing.T) {
	path := writeTestLog(t)
	result, err := Replay(path, ReplayFilter{Session: "s-aaa"})
	if err != nil {
		t.Fatal(err)
	}

	out := FormatTimeline(result)

	if !strings.Contains(out, "Session: s-aaa | 2025-01-15 14:00:00 - 14:00:10 UTC") {
		t.Errorf("unexpected header:\n%s", out)
	}
	for _, want := range []string{"1 valid", "2 invalid", "1 unavailable", "1 devopts", "location_unavailable=1 low_accuracy=2 mock_location=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestFormatTimelineEntryColumns(t *testing.T) {
	path := writeTestLog(t)
	result, err := Replay(path, ReplayFilter{Session: "s-aaa"})
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(FormatTimeline(result), "\n")
	// header, separator, 5 entries, separator, summary
	if len(lines) < 9 {
		t.Fatalf("expected at least 9 lines, got %d", len(lines))
	}

	second := lines[3]
	if !strings.HasPrefix(second, "14:00:02") {
		t.Errorf("expected time column, got %q", second)
	}
	if !strings.Contains(second, "INVALID") || !strings.Contains(second, "low_accuracy") {
		t.Errorf("expected invalid low_accuracy row, got %q", second)
	}
	if !strings.Contains(second, "-6.20000,106.80000") {
		t.Errorf("expected position column, got %q", second)
	}

	devopts := lines[6]
	if !strings.Contains(devopts, "developer options enabled") {
		t.Errorf("expected reason for devopts row, got %q", devopts)
	}
}

func TestFormatJSONValid(t *testing.T) {
	path := writeTestLog(t)
	result, err := Replay(path, ReplayFilter{Session: "s-aaa"})
	if err != nil {
		t.Fatal(err)
	}

	out, err := FormatJSON(result)
	if err != nil {
		t.Fatal(err)
	}

	var parsed ReplayResult
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Session != "s-aaa" {
		t.Errorf("expected session s-aaa, got %s", parsed.Session)
	}
	if len(parsed.Entries) != 5 {
		t.Errorf("expected 5 entries, got %d", len(parsed.Entries))
	}
	if parsed.Summary.InvalidCount != 2 {
		t.Errorf("expected invalid_count 2, got %d", parsed.Summary.InvalidCount)
	}
}

func TestFormatTimelineEmptyEntries(t *testing.T) {
	out := FormatTimeline(&ReplayResult{Session: "s-empty"})
	if out != "Session: s-empty | No entries found.\n" {
		t.Errorf("unexpected output %q", out)
	}
	out = FormatTimeline(&ReplayResult{})
	if !strings.Contains(out, "all sessions") {
		t.Errorf("expected all sessions label, got %q", out)
	}
}
