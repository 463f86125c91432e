package policydiff

import (
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/geowatch/internal/alert"
	"github.com/ppiankov/geowatch/internal/policy"
	"github.com/ppiankov/geowatch/internal/ratelimit"
)

func findChange(r *DiffResult, field, comment string) *Change {
	for i, c := range r.Changes {
		if c.Field == field && (comment == "" || c.Comment == comment) {
			return &r.Changes[i]
		}
	}
	return nil
}

func TestIdenticalPoliciesNoChanges(t *testing.T) {
	r := Diff(policy.DefaultConfig(), policy.DefaultConfig())
	if r.HasChanges {
		t.Errorf("expected no changes, got %+v", r.Changes)
	}
	if !strings.Contains(FormatText(r), "No changes detected.") {
		t.Error("text output should say no changes")
	}
}

func TestAccuracyTightenedIsStricter(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.Thresholds.AccuracyMax = 30

	r := Diff(a, b)
	c := findChange(r, "thresholds.accuracy_max_m", "")
	if c == nil {
		t.Fatal("accuracy_max_m change not found")
	}
	if c.Old != "50" || c.New != "30" {
		t.Errorf("expected 50->30, got %s->%s", c.Old, c.New)
	}
	if c.Comment != "stricter" {
		t.Errorf("expected 'stricter', got %q", c.Comment)
	}
}

func TestAltitudeMinRaisedIsStricter(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.Thresholds.AltitudeMin = -100

	c := findChange(Diff(a, b), "thresholds.altitude_min_m", "")
	if c == nil || c.Comment != "stricter" {
		t.Errorf("expected stricter altitude_min_m change, got %+v", c)
	}
}

func TestLongerIntervalIsLooser(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.Monitor.Interval = time.Minute

	c := findChange(Diff(a, b), "monitor.interval", "")
	if c == nil {
		t.Fatal("monitor.interval change not found")
	}
	if c.Old != "15s" || c.New != "1m0s" || c.Comment != "looser" {
		t.Errorf("unexpected change %+v", c)
	}
}

func TestGateAttemptsUnlimited(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.Gate.MaxAttempts = 3

	c := findChange(Diff(a, b), "gate.max_attempts", "")
	if c == nil {
		t.Fatal("gate.max_attempts change not found")
	}
	if c.Old != "unlimited" || c.New != "3" || c.Comment != "stricter" {
		t.Errorf("unexpected change %+v", c)
	}

	c = findChange(Diff(b, a), "gate.max_attempts", "")
	if c == nil || c.Comment != "looser" {
		t.Errorf("expected looser when retries become unlimited, got %+v", c)
	}
}

func TestSpooferAppsAddedAndRemoved(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.SpooferApps = append(b.SpooferApps[1:], "com.example.joystick")

	r := Diff(a, b)
	if findChange(r, "spoofer_apps", "added") == nil {
		t.Error("added app not found")
	}
	removed := findChange(r, "spoofer_apps", "removed")
	if removed == nil || removed.Old != policy.DefaultSpooferApps[0] {
		t.Errorf("expected %s removed, got %+v", policy.DefaultSpooferApps[0], removed)
	}
}

func TestSuspectProvidersCaseInsensitive(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.Thresholds.SuspectProviders = []string{"NETWORK"}

	if r := Diff(a, b); r.HasChanges {
		t.Errorf("case change alone should not be a diff, got %+v", r.Changes)
	}
}

func TestMultipleChangesFormatted(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.Thresholds.SpeedMax = 40
	b.DevOpts.Interval = 5 * time.Second
	b.Bridge.RateLimits = ratelimit.Config{"CHECK_FAKE_GPS_APPS": {MaxRequests: 2, Window: time.Minute}}
	b.Alerts = []alert.AlertConfig{{URL: "https://example.com/hook", Format: "generic"}}

	r := Diff(a, b)
	if len(r.Changes) < 5 {
		t.Fatalf("expected at least 5 changes, got %+v", r.Changes)
	}

	r.OldPath, r.NewPath = "old.yaml", "new.yaml"
	out := FormatText(r)
	for _, want := range []string{
		"Policy diff: old.yaml -> new.yaml",
		"speed_max_mps:",
		"Developer options:",
		"+ CHECK_FAKE_GPS_APPS (2/1m0s)",
		"- * (30/1m0s)",
		"+ https://example.com/hook",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.Thresholds.AccuracyMax = 25

	out, err := FormatJSON(Diff(a, b))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"has_changes": true`) {
		t.Errorf("unexpected JSON:\n%s", out)
	}
}
