package scenario

import "github.com/ppiankov/geowatch/internal/model"

// ScenarioSample is one reading in a scenario file. Omitted optional
// fields stay absent.
type ScenarioSample struct {
	Latitude  float64  `yaml:"lat"`
	Longitude float64  `yaml:"lon"`
	Accuracy  *float64 `yaml:"accuracy,omitempty"`
	Speed     *float64 `yaml:"speed,omitempty"`
	Altitude  *float64 `yaml:"altitude,omitempty"`
	Provider  string   `yaml:"provider,omitempty"`
	Mocked    *bool    `yaml:"mocked,omitempty"`
	// T is the sample time in epoch milliseconds.
	T int64 `yaml:"t"`
}

// Raw converts the sample to a provider reading.
func (s ScenarioSample) Raw() model.RawReading {
	return model.RawReading{
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Accuracy:  s.Accuracy,
		Speed:     s.Speed,
		Altitude:  s.Altitude,
		Provider:  s.Provider,
		Mocked:    s.Mocked,
		Timestamp: s.T,
	}
}

// Case is one step of a scenario. Cases run in order and each is evaluated
// against the previous case's sample unless Reset is set.
type Case struct {
	Sample ScenarioSample `yaml:"sample"`
	// Expect lists the issue codes in rule order. Empty means valid.
	Expect []string `yaml:"expect"`
	// Mode overrides the scenario mode for this case.
	Mode  string `yaml:"mode,omitempty"`
	Reset bool   `yaml:"reset,omitempty"`
	Note  string `yaml:"note,omitempty"`
}

// Scenario is a named sequence of samples with expected verdicts.
type Scenario struct {
	Name  string `yaml:"name"`
	Mode  string `yaml:"mode,omitempty"`
	Cases []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one case.
type CaseResult struct {
	Index    int      `json:"index"`
	Passed   bool     `json:"passed"`
	Mode     string   `json:"mode"`
	Note     string   `json:"note,omitempty"`
	Expected []string `json:"expected"`
	Actual   []string `json:"actual"`
	Lines    []string `json:"lines,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario.
type RunResult struct {
	File   string       `json:"file,omitempty"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
