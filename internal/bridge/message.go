// Package bridge carries typed JSON messages from the page context to the host.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ppiankov/geowatch/internal/model"
)

// Type names a bridge message kind.
type Type string

const (
	// TypeValidationFailed is posted by the page when a sample fails the heuristics.
	TypeValidationFailed Type = "LOCATION_VALIDATION_FAILED"
	// TypeCheckSpooferApps asks the host whether any listed package is installed.
	TypeCheckSpooferApps Type = "CHECK_FAKE_GPS_APPS"
)

var (
	// ErrUnknownType is returned by Dispatch for a type with no handler.
	ErrUnknownType = errors.New("bridge: unknown message type")
	// ErrMissingType is returned when a payload carries no type field.
	ErrMissingType = errors.New("bridge: message has no type")
)

// Position is the sample shape carried in a message. Absent optionals
// encode as null.
type Position struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
	Speed     *float64 `json:"speed"`
	Altitude  *float64 `json:"altitude"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// Message is the envelope exchanged across the bridge.
type Message struct {
	Type     Type      `json:"type"`
	Issues   []string  `json:"issues,omitempty"`
	Position *Position `json:"position,omitempty"`
	Apps     []string  `json:"apps,omitempty"`
}

// Messenger delivers messages to the other side.
type Messenger interface {
	Send(ctx context.Context, msg Message) error
}

// PositionFromSample converts a sample to its wire shape.
func PositionFromSample(s model.Sample) *Position {
	return &Position{
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Accuracy:  s.Accuracy,
		Speed:     s.Speed,
		Altitude:  s.Altitude,
		Timestamp: s.Timestamp,
	}
}

// Sample converts a wire position back to a sample. Provider and mock
// flag are not carried and take their defaults.
func (p *Position) Sample() model.Sample {
	if p == nil {
		return model.NewSample(model.RawReading{})
	}
	return model.NewSample(model.RawReading{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Accuracy:  p.Accuracy,
		Speed:     p.Speed,
		Altitude:  p.Altitude,
		Timestamp: p.Timestamp,
	})
}

// ValidationFailed builds the message posted for an invalid verdict.
func ValidationFailed(v model.Verdict) Message {
	return Message{
		Type:     TypeValidationFailed,
		Issues:   v.Lines(),
		Position: PositionFromSample(v.Sample),
	}
}

// Verdict rebuilds an invalid verdict from a LOCATION_VALIDATION_FAILED
// message. Issue lines arrive rendered and are kept verbatim.
func (m Message) Verdict() model.Verdict {
	issues := make([]model.Issue, 0, len(m.Issues))
	for _, line := range m.Issues {
		issues = append(issues, model.Issue{Code: model.IssueReported, Detail: line})
	}
	if len(issues) == 0 {
		issues = append(issues, model.Issue{Code: model.IssueReported, Detail: "Suspicious location reported"})
	}
	return model.NewVerdict(m.Position.Sample(), issues)
}

// CheckSpooferApps builds the message listing package names to check.
func CheckSpooferApps(apps []string) Message {
	return Message{
		Type: TypeCheckSpooferApps,
		Apps: append([]string(nil), apps...),
	}
}

// Encode marshals a message.
func Encode(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bridge message: %w", err)
	}
	return data, nil
}

// Decode unmarshals a message and requires a type.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to decode bridge message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, ErrMissingType
	}
	return msg, nil
}
