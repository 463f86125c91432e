package model

import "fmt"

// IssueCode identifies which heuristic rule fired.
type IssueCode string

const (
	IssueLowAccuracy         IssueCode = "low_accuracy"
	IssueUnrealisticSpeed    IssueCode = "unrealistic_speed"
	IssueUnusualAltitude     IssueCode = "unusual_altitude"
	IssueNetworkProvider     IssueCode = "network_provider"
	IssueMockLocation        IssueCode = "mock_location"
	IssueUnrealisticMovement IssueCode = "unrealistic_movement"

	// IssueLocationUnavailable is raised by fail-closed callers when no
	// sample could be acquired at all. Evaluate never produces it.
	IssueLocationUnavailable IssueCode = "location_unavailable"

	// IssueReported carries a line already rendered by the page context.
	IssueReported IssueCode = "reported"
)

// Issue is one reason a sample was judged suspicious.
type Issue struct {
	Code   IssueCode `json:"code"`
	Detail string    `json:"detail"`
}

// String renders the issue as the human-readable line sent to the host.
func (i Issue) String() string {
	switch i.Code {
	case IssueLowAccuracy:
		return fmt.Sprintf("Low accuracy: %sm", i.Detail)
	case IssueUnrealisticSpeed:
		return fmt.Sprintf("Unrealistic speed: %s km/h", i.Detail)
	case IssueUnusualAltitude:
		return fmt.Sprintf("Unusual altitude: %sm", i.Detail)
	case IssueNetworkProvider:
		return "Using network provider instead of GPS"
	case IssueMockLocation:
		return "Mock location flag set"
	case IssueUnrealisticMovement:
		return fmt.Sprintf("Unrealistic movement speed: %s km/h", i.Detail)
	case IssueLocationUnavailable:
		return fmt.Sprintf("Location unavailable: %s", i.Detail)
	case IssueReported:
		return i.Detail
	default:
		return fmt.Sprintf("%s: %s", i.Code, i.Detail)
	}
}

// Verdict is the outcome of evaluating one sample.
type Verdict struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
	Sample Sample  `json:"sample"`
}

// NewVerdict builds a Verdict whose Valid flag is derived from issues.
func NewVerdict(sample Sample, issues []Issue) Verdict {
	if issues == nil {
		issues = []Issue{}
	}
	return Verdict{
		Valid:  len(issues) == 0,
		Issues: issues,
		Sample: sample,
	}
}

// Codes returns the issue codes in evaluation order.
func (v Verdict) Codes() []IssueCode {
	codes := make([]IssueCode, len(v.Issues))
	for i, is := range v.Issues {
		codes[i] = is.Code
	}
	return codes
}

// Lines returns the human-readable issue lines in evaluation order.
func (v Verdict) Lines() []string {
	lines := make([]string, len(v.Issues))
	for i, is := range v.Issues {
		lines[i] = is.String()
	}
	return lines
}

// Has reports whether the verdict contains an issue with the given code.
func (v Verdict) Has(code IssueCode) bool {
	for _, is := range v.Issues {
		if is.Code == code {
			return true
		}
	}
	return false
}

// UnavailableVerdict is the fail-closed verdict for a failed acquisition.
func UnavailableVerdict(err error) Verdict {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	return NewVerdict(Sample{Provider: ProviderUnknown}, []Issue{{Code: IssueLocationUnavailable, Detail: detail}})
}
