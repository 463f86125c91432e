package policy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/geowatch/internal/geo"
	"github.com/ppiankov/geowatch/internal/model"
)

// Evaluate checks one sample against the heuristic rules.
//
// Rule order (must not be changed, issues are reported in this order):
//  1. Accuracy: present and strictly greater than th.AccuracyMax
//  2. Speed: present and greater than th.SpeedMax, reported in km/h
//  3. Altitude: present and outside [th.AltitudeMin, th.AltitudeMax]
//  4. Provider: name contains a suspect provider, case-insensitive
//  5. Mock flag
//  6. Implied movement: only with a previous sample and positive elapsed time
//
// Every rule is independent: one firing never suppresses another.
// Evaluate has no side effects.
func Evaluate(current model.Sample, previous *model.Sample, th Thresholds) model.Verdict {
	var issues []model.Issue

	if a := current.Accuracy; a != nil && *a > th.AccuracyMax {
		issues = append(issues, model.Issue{Code: model.IssueLowAccuracy, Detail: formatMeters(*a)})
	}

	if s := current.Speed; s != nil && *s > th.SpeedMax {
		issues = append(issues, model.Issue{Code: model.IssueUnrealisticSpeed, Detail: formatKMH(*s)})
	}

	if alt := current.Altitude; alt != nil && (*alt < th.AltitudeMin || *alt > th.AltitudeMax) {
		issues = append(issues, model.Issue{Code: model.IssueUnusualAltitude, Detail: formatMeters(*alt)})
	}

	if suspectProvider(current.Provider, th.SuspectProviders) {
		issues = append(issues, model.Issue{Code: model.IssueNetworkProvider, Detail: current.Provider})
	}

	if current.Mocked {
		issues = append(issues, model.Issue{Code: model.IssueMockLocation})
	}

	if previous != nil {
		// Undefined speed (non-positive elapsed) skips the rule.
		if speed, ok := geo.ImpliedSpeed(*previous, current); ok && speed > th.MovementSpeedMax {
			issues = append(issues, model.Issue{Code: model.IssueUnrealisticMovement, Detail: formatKMH(speed)})
		}
	}

	return model.NewVerdict(current, issues)
}

func suspectProvider(provider string, suspects []string) bool {
	p := strings.ToLower(provider)
	for _, s := range suspects {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && strings.Contains(p, s) {
			return true
		}
	}
	return false
}

func formatMeters(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatKMH(mps float64) string {
	return fmt.Sprintf("%.1f", geo.KMH(mps))
}
