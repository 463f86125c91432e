// Package policydiff compares two geowatch policy files.
package policydiff

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/geowatch/internal/policy"
)

// Change represents a scalar field change.
type Change struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// DiffResult holds the comparison of two PolicyConfigs.
type DiffResult struct {
	OldPath    string   `json:"old_path"`
	NewPath    string   `json:"new_path"`
	OldHash    string   `json:"old_hash,omitempty"`
	NewHash    string   `json:"new_hash,omitempty"`
	Changes    []Change `json:"changes"`
	HasChanges bool     `json:"has_changes"`
}

// Diff compares two PolicyConfigs and returns the differences.
func Diff(old, new *policy.PolicyConfig) *DiffResult {
	r := &DiffResult{}

	// Thresholds. Lower limits reject more samples, except altitude_min_m.
	ot, nt := old.Thresholds, new.Thresholds
	diffFloat(r, "thresholds.accuracy_max_m", ot.AccuracyMax, nt.AccuracyMax, false)
	diffFloat(r, "thresholds.first_pass_accuracy_max_m", ot.FirstPassAccuracyMax, nt.FirstPassAccuracyMax, false)
	diffFloat(r, "thresholds.speed_max_mps", ot.SpeedMax, nt.SpeedMax, false)
	diffFloat(r, "thresholds.altitude_min_m", ot.AltitudeMin, nt.AltitudeMin, true)
	diffFloat(r, "thresholds.altitude_max_m", ot.AltitudeMax, nt.AltitudeMax, false)
	diffFloat(r, "thresholds.movement_speed_max_mps", ot.MovementSpeedMax, nt.MovementSpeedMax, false)

	// Shorter intervals catch tampering sooner.
	diffDuration(r, "monitor.interval", old.Monitor.Interval, new.Monitor.Interval)
	diffDuration(r, "monitor.initial_delay", old.Monitor.InitialDelay, new.Monitor.InitialDelay)
	diffDuration(r, "monitor.acquire.timeout", old.Monitor.Acquire.Timeout, new.Monitor.Acquire.Timeout)
	diffDuration(r, "devopts.interval", old.DevOpts.Interval, new.DevOpts.Interval)

	if old.Gate.MaxAttempts != new.Gate.MaxAttempts {
		r.Changes = append(r.Changes, Change{
			Field:   "gate.max_attempts",
			Old:     attempts(old.Gate.MaxAttempts),
			New:     attempts(new.Gate.MaxAttempts),
			Comment: attemptsComment(old.Gate.MaxAttempts, new.Gate.MaxAttempts),
		})
	}

	diffSet(r, "suspect_providers", lower(ot.SuspectProviders), lower(nt.SuspectProviders))
	diffSet(r, "spoofer_apps", old.SpooferApps, new.SpooferApps)
	diffSet(r, "rate_limits", rateLimitKeys(old), rateLimitKeys(new))
	diffSet(r, "alerts", alertURLs(old), alertURLs(new))

	r.HasChanges = len(r.Changes) > 0
	return r
}

func diffFloat(r *DiffResult, field string, old, new float64, higherIsStricter bool) {
	if old != new {
		r.Changes = append(r.Changes, Change{
			Field:   field,
			Old:     strconv.FormatFloat(old, 'f', -1, 64),
			New:     strconv.FormatFloat(new, 'f', -1, 64),
			Comment: comment(new > old, higherIsStricter),
		})
	}
}

func diffDuration(r *DiffResult, field string, old, new time.Duration) {
	if old != new {
		r.Changes = append(r.Changes, Change{
			Field:   field,
			Old:     old.String(),
			New:     new.String(),
			Comment: comment(new > old, false),
		})
	}
}

func comment(increased, higherIsStricter bool) string {
	if increased == higherIsStricter {
		return "stricter"
	}
	return "looser"
}

func attempts(n int) string {
	if n == 0 {
		return "unlimited"
	}
	return strconv.Itoa(n)
}

// Fewer retries ends a failing startup sooner. 0 means unlimited.
func attemptsComment(old, new int) string {
	switch {
	case old == 0:
		return "stricter"
	case new == 0:
		return "looser"
	}
	return comment(new > old, false)
}

func diffSet(r *DiffResult, section string, oldKeys, newKeys []string) {
	oldSet := make(map[string]bool)
	for _, k := range oldKeys {
		oldSet[k] = true
	}
	newSet := make(map[string]bool)
	for _, k := range newKeys {
		newSet[k] = true
	}

	for _, k := range sorted(newKeys) {
		if !oldSet[k] {
			r.Changes = append(r.Changes, Change{Field: section, New: k, Comment: "added"})
		}
	}
	for _, k := range sorted(oldKeys) {
		if !newSet[k] {
			r.Changes = append(r.Changes, Change{Field: section, Old: k, Comment: "removed"})
		}
	}
}

func sorted(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	return out
}

func lower(vals []string) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = strings.ToLower(v)
	}
	return out
}

func rateLimitKeys(cfg *policy.PolicyConfig) []string {
	keys := make([]string, 0, len(cfg.Bridge.RateLimits))
	for k, l := range cfg.Bridge.RateLimits {
		if l != nil {
			keys = append(keys, fmt.Sprintf("%s (%d/%s)", k, l.MaxRequests, l.Window))
		}
	}
	return keys
}

func alertURLs(cfg *policy.PolicyConfig) []string {
	urls := make([]string, 0, len(cfg.Alerts))
	for _, a := range cfg.Alerts {
		urls = append(urls, a.URL)
	}
	return urls
}
