package mcp

import (
	"context"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/geowatch/internal/audit"
	"github.com/ppiankov/geowatch/internal/geo"
	"github.com/ppiankov/geowatch/internal/model"
	"github.com/ppiankov/geowatch/internal/policy"
)

// --- Input/Output types ---

// EvaluateInput defines parameters for the geowatch_evaluate tool.
type EvaluateInput struct {
	Sample   model.RawReading  `json:"sample" jsonschema:"location sample to evaluate"`
	Previous *model.RawReading `json:"previous,omitempty" jsonschema:"previous sample, enables the implied movement rule"`
	Mode     string            `json:"mode,omitempty" jsonschema:"startup, first_pass or continuous (default continuous)"`
}

// EvaluateOutput contains the verdict.
type EvaluateOutput struct {
	Valid      bool     `json:"valid"`
	Issues     []string `json:"issues"`
	Lines      []string `json:"lines"`
	Mode       string   `json:"mode"`
	PolicyHash string   `json:"policy_hash"`
}

// DistanceInput defines parameters for the geowatch_distance tool.
type DistanceInput struct {
	FromLat   float64 `json:"from_lat" jsonschema:"start latitude in degrees"`
	FromLon   float64 `json:"from_lon" jsonschema:"start longitude in degrees"`
	ToLat     float64 `json:"to_lat" jsonschema:"end latitude in degrees"`
	ToLon     float64 `json:"to_lon" jsonschema:"end longitude in degrees"`
	ElapsedMS int64   `json:"elapsed_ms,omitempty" jsonschema:"milliseconds between the two fixes"`
}

// DistanceOutput contains the distance and, when defined, the implied speed.
type DistanceOutput struct {
	Meters   float64  `json:"meters"`
	SpeedMPS *float64 `json:"speed_mps,omitempty"`
	SpeedKMH *float64 `json:"speed_kmh,omitempty"`
}

// PolicyInput defines parameters for the geowatch_policy tool.
type PolicyInput struct {
	Mode string `json:"mode,omitempty" jsonschema:"startup, first_pass or continuous (default continuous)"`
}

// PolicyOutput contains the resolved thresholds.
type PolicyOutput struct {
	Mode       string            `json:"mode"`
	Hash       string            `json:"hash"`
	Thresholds policy.Thresholds `json:"thresholds"`
}

var errBadCoordinate = errors.New("coordinate out of range")

// --- Handlers ---

func (s *Server) handleEvaluate(ctx context.Context, req *mcpsdk.CallToolRequest, input EvaluateInput) (*mcpsdk.CallToolResult, EvaluateOutput, error) {
	if err := checkCoordinate(input.Sample.Latitude, input.Sample.Longitude); err != nil {
		return nil, EvaluateOutput{}, err
	}

	mode := policy.ParseMode(input.Mode)
	current := model.NewSample(input.Sample)
	var prev *model.Sample
	if input.Previous != nil {
		if err := checkCoordinate(input.Previous.Latitude, input.Previous.Longitude); err != nil {
			return nil, EvaluateOutput{}, fmt.Errorf("previous: %w", err)
		}
		p := model.NewSample(*input.Previous)
		prev = &p
	}

	v := policy.Evaluate(current, prev, s.policy.Thresholds(mode))
	s.recordAudit(audit.EntryFromVerdict(v, s.session, "mcp", s.policy.Hash()))

	out := EvaluateOutput{
		Valid:      v.Valid,
		Issues:     codes(v),
		Lines:      v.Lines(),
		Mode:       string(mode),
		PolicyHash: s.policy.Hash(),
	}
	if out.Lines == nil {
		out.Lines = []string{}
	}
	return nil, out, nil
}

func (s *Server) handleDistance(ctx context.Context, req *mcpsdk.CallToolRequest, input DistanceInput) (*mcpsdk.CallToolResult, DistanceOutput, error) {
	if err := checkCoordinate(input.FromLat, input.FromLon); err != nil {
		return nil, DistanceOutput{}, fmt.Errorf("from: %w", err)
	}
	if err := checkCoordinate(input.ToLat, input.ToLon); err != nil {
		return nil, DistanceOutput{}, fmt.Errorf("to: %w", err)
	}

	a := model.Sample{Latitude: input.FromLat, Longitude: input.FromLon}
	b := model.Sample{Latitude: input.ToLat, Longitude: input.ToLon, Timestamp: input.ElapsedMS}

	out := DistanceOutput{Meters: geo.DistanceMeters(a, b)}
	if speed, ok := geo.ImpliedSpeed(a, b); ok {
		kmh := geo.KMH(speed)
		out.SpeedMPS = &speed
		out.SpeedKMH = &kmh
	}
	return nil, out, nil
}

func (s *Server) handlePolicy(ctx context.Context, req *mcpsdk.CallToolRequest, input PolicyInput) (*mcpsdk.CallToolResult, PolicyOutput, error) {
	mode := policy.ParseMode(input.Mode)
	return nil, PolicyOutput{
		Mode:       string(mode),
		Hash:       s.policy.Hash(),
		Thresholds: s.policy.Thresholds(mode),
	}, nil
}

func checkCoordinate(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: %v,%v", errBadCoordinate, lat, lon)
	}
	return nil
}

func codes(v model.Verdict) []string {
	out := make([]string, 0, len(v.Issues))
	for _, c := range v.Codes() {
		out = append(out, string(c))
	}
	return out
}
