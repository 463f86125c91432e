package audit

import (
	"time"

	"github.com/ppiankov/geowatch/internal/model"
)

// Event names recorded in the audit log.
const (
	EventVerdict     = "verdict"
	EventUnavailable = "unavailable"
	EventDevOpts     = "devopts"
	EventSpooferApps = "spoofer_apps"
	EventGate        = "gate"
	EventTamper      = "binary_tamper"
)

// AuditPosition is the flattened sample recorded with a verdict.
type AuditPosition struct {
	Latitude  float64  `json:"lat"`
	Longitude float64  `json:"lon"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Provider  string   `json:"provider"`
	Mocked    bool     `json:"mocked"`
	Timestamp int64    `json:"sample_ts,omitempty"`
}

// AuditIssue is one fired rule.
type AuditIssue struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// AuditEntry is one line in the hash-chained JSONL audit log.
// All fields are structs (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing.
type AuditEntry struct {
	Timestamp  string        `json:"ts"`
	Session    string        `json:"session,omitempty"`
	Source     string        `json:"source,omitempty"`
	Event      string        `json:"event"`
	Valid      bool          `json:"valid"`
	Issues     []AuditIssue  `json:"issues,omitempty"`
	Position   AuditPosition `json:"position"`
	Reason     string        `json:"reason,omitempty"`
	PolicyHash string        `json:"policy_hash"`
	PrevHash   string        `json:"prev_hash"`
}

// EntryFromVerdict flattens a verdict. Verdicts carrying only
// location_unavailable are recorded as EventUnavailable.
func EntryFromVerdict(v model.Verdict, session, source, policyHash string) AuditEntry {
	e := AuditEntry{
		Session:    session,
		Source:     source,
		Event:      EventVerdict,
		Valid:      v.Valid,
		PolicyHash: policyHash,
		Position: AuditPosition{
			Latitude:  v.Sample.Latitude,
			Longitude: v.Sample.Longitude,
			Provider:  v.Sample.Provider,
			Mocked:    v.Sample.Mocked,
			Timestamp: v.Sample.Timestamp,
		},
	}
	if v.Sample.Accuracy != nil {
		acc := *v.Sample.Accuracy
		e.Position.Accuracy = &acc
	}
	for _, is := range v.Issues {
		e.Issues = append(e.Issues, AuditIssue{Code: string(is.Code), Detail: is.Detail})
	}
	if v.Has(model.IssueLocationUnavailable) {
		e.Event = EventUnavailable
	}
	return e
}

// At stamps the entry with t in TimestampFormat.
func (e AuditEntry) At(t time.Time) AuditEntry {
	e.Timestamp = t.UTC().Format(TimestampFormat)
	return e
}
