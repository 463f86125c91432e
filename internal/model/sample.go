package model

import (
	"encoding/json"
	"strings"
	"time"
)

// ProviderUnknown is the provider label used when a reading carries none.
const ProviderUnknown = "unknown"

// RawReading is a location reading as delivered by a platform provider,
// before defaults are applied. Optional fields are nil when absent.
type RawReading struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Provider  string   `json:"provider,omitempty"`
	Mocked    *bool    `json:"mocked,omitempty"`
	Timestamp int64    `json:"timestamp"` // epoch ms
}

// Sample is the normalized form of a single location reading.
type Sample struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"` // nil = unknown
	Altitude  *float64 `json:"altitude"`
	Speed     *float64 `json:"speed"` // m/s
	Provider  string   `json:"provider"`
	Mocked    bool     `json:"mocked"`
	Timestamp int64    `json:"timestamp"` // epoch ms
}

// NewSample fills absent optional fields of a raw reading with their defaults.
// No validation happens here.
func NewSample(raw RawReading) Sample {
	s := Sample{
		Latitude:  raw.Latitude,
		Longitude: raw.Longitude,
		Accuracy:  copyFloat(raw.Accuracy),
		Altitude:  copyFloat(raw.Altitude),
		Speed:     copyFloat(raw.Speed),
		Provider:  strings.TrimSpace(raw.Provider),
		Timestamp: raw.Timestamp,
	}
	if s.Provider == "" {
		s.Provider = ProviderUnknown
	}
	if raw.Mocked != nil {
		s.Mocked = *raw.Mocked
	}
	return s
}

// SampleFromMap builds a Sample from a loosely typed map, as decoded from a
// page message. Values of the wrong type are treated as absent.
func SampleFromMap(m map[string]any) Sample {
	var raw RawReading
	if m == nil {
		return NewSample(raw)
	}

	if v, ok := number(m["latitude"]); ok {
		raw.Latitude = v
	}
	if v, ok := number(m["longitude"]); ok {
		raw.Longitude = v
	}
	if v, ok := number(m["accuracy"]); ok {
		raw.Accuracy = &v
	}
	if v, ok := number(m["altitude"]); ok {
		raw.Altitude = &v
	}
	if v, ok := number(m["speed"]); ok {
		raw.Speed = &v
	}
	if v, ok := number(m["timestamp"]); ok {
		raw.Timestamp = int64(v)
	}
	if p, ok := m["provider"].(string); ok {
		raw.Provider = p
	}
	if b, ok := m["mocked"].(bool); ok {
		raw.Mocked = &b
	}

	return NewSample(raw)
}

// Time returns the sample timestamp as a time.Time.
func (s Sample) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Float returns a pointer to v, for building readings with optional fields.
func Float(v float64) *float64 {
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// AcquireOptions are passed to a location provider on each request.
type AcquireOptions struct {
	HighAccuracy bool          `yaml:"high_accuracy" json:"high_accuracy"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	MaxAge       time.Duration `yaml:"max_age" json:"max_age"`
}

// DefaultAcquireOptions matches what the attendance page asks the browser for.
func DefaultAcquireOptions() AcquireOptions {
	return AcquireOptions{
		HighAccuracy: true,
		Timeout:      10 * time.Second,
		MaxAge:       5 * time.Second,
	}
}
