package alert

import (
	"time"

	"github.com/ppiankov/geowatch/internal/model"
	"github.com/ppiankov/geowatch/internal/policy"
)

// Event kinds a webhook can subscribe to.
const (
	EventInvalid     = "invalid"     // a sample failed the heuristics
	EventUnavailable = "unavailable" // no sample could be acquired
	EventDevOptions  = "devopts"     // developer options found enabled
	EventSpooferApps = "spoofer_apps"
	EventTamper      = "binary_tamper" // the running binary failed its checksum
)

// AlertConfig is a webhook destination as declared in the policy file.
type AlertConfig = policy.AlertConfig

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp  string   `json:"timestamp"`
	Session    string   `json:"session,omitempty"`
	Type       string   `json:"type"`
	Issues     []string `json:"issues,omitempty"`
	Latitude   float64  `json:"latitude,omitempty"`
	Longitude  float64  `json:"longitude,omitempty"`
	Accuracy   *float64 `json:"accuracy,omitempty"`
	Provider   string   `json:"provider,omitempty"`
	PolicyHash string   `json:"policy_hash,omitempty"`
}

// EventFromVerdict builds an alert for an invalid verdict. Verdicts raised
// for failed acquisitions become EventUnavailable.
func EventFromVerdict(v model.Verdict, at time.Time) AlertEvent {
	typ := EventInvalid
	if v.Has(model.IssueLocationUnavailable) {
		typ = EventUnavailable
	}
	return AlertEvent{
		Timestamp: at.UTC().Format("2006-01-02T15:04:05.000Z"),
		Type:      typ,
		Issues:    v.Lines(),
		Latitude:  v.Sample.Latitude,
		Longitude: v.Sample.Longitude,
		Accuracy:  v.Sample.Accuracy,
		Provider:  v.Sample.Provider,
	}
}
