package scenario

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/geowatch/internal/model"
	"github.com/ppiankov/geowatch/internal/policy"
)

// Run evaluates the cases in order, carrying the previous sample between
// cases the way the monitor does within one session.
func Run(s *Scenario, cfg *policy.PolicyConfig) *RunResult {
	if cfg == nil {
		cfg = policy.DefaultConfig()
	}

	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	var prev *model.Sample
	for i, c := range s.Cases {
		mode := policy.ParseMode(firstNonEmpty(c.Mode, s.Mode))
		if c.Reset {
			prev = nil
		}

		sample := model.NewSample(c.Sample.Raw())
		v := policy.Evaluate(sample, prev, cfg.ThresholdsFor(mode))
		prev = &sample

		actual := make([]string, len(v.Issues))
		for j, code := range v.Codes() {
			actual[j] = string(code)
		}
		expected := normalize(c.Expect)

		cr := CaseResult{
			Index:    i + 1,
			Mode:     string(mode),
			Note:     c.Note,
			Expected: expected,
			Actual:   actual,
			Lines:    v.Lines(),
		}
		if slices.Equal(actual, expected) {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result
}

// normalize lowercases codes and maps "valid" to no issues.
func normalize(expect []string) []string {
	out := []string{}
	for _, e := range expect {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || e == "valid" {
			continue
		}
		out = append(out, e)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Load reads a scenario YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	return &s, nil
}

// LoadAndRun loads a scenario YAML file and the policy, and runs.
func LoadAndRun(path, policyPath string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}

	cfg, err := policy.LoadConfig(policyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	result := Run(s, cfg)
	result.File = path
	return result, nil
}
