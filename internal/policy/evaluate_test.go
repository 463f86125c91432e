package policy

import (
	"math"
	"reflect"
	"strconv"
	"testing"

	"github.com/ppiankov/geowatch/internal/model"
)

func sample(raw model.RawReading) model.Sample {
	return model.NewSample(raw)
}

func codes(v model.Verdict) []model.IssueCode {
	return v.Codes()
}

func TestCleanSampleValid(t *testing.T) {
	s := sample(model.RawReading{
		Latitude:  -6.2,
		Longitude: 106.8,
		Accuracy:  model.Float(10),
		Altitude:  model.Float(8),
		Speed:     model.Float(1.2),
		Provider:  "gps",
		Timestamp: 1000,
	})

	v := Evaluate(s, nil, DefaultThresholds())
	if !v.Valid {
		t.Errorf("expected valid, got issues %v", v.Lines())
	}
	if len(v.Issues) != 0 {
		t.Errorf("expected no issues, got %d", len(v.Issues))
	}
}

func TestAccuracyBoundaryIsStrict(t *testing.T) {
	th := DefaultThresholds()

	v := Evaluate(sample(model.RawReading{Accuracy: model.Float(50), Provider: "gps"}), nil, th)
	if !v.Valid {
		t.Errorf("accuracy 50 should pass, got %v", v.Lines())
	}

	v = Evaluate(sample(model.RawReading{Accuracy: model.Float(51), Provider: "gps"}), nil, th)
	if v.Valid || !v.Has(model.IssueLowAccuracy) {
		t.Errorf("accuracy 51 should fail with low_accuracy, got %v", codes(v))
	}
	if v.Issues[0].String() != "Low accuracy: 51m" {
		t.Errorf("unexpected line %q", v.Issues[0].String())
	}
}

func TestAccuracyAbsentPasses(t *testing.T) {
	v := Evaluate(sample(model.RawReading{Provider: "gps"}), nil, DefaultThresholds())
	if !v.Valid {
		t.Errorf("unknown accuracy should pass, got %v", v.Lines())
	}
}

func TestFirstPassAccuracyLimit(t *testing.T) {
	cfg := DefaultConfig()
	s := sample(model.RawReading{Accuracy: model.Float(30), Provider: "gps"})

	if v := Evaluate(s, nil, cfg.ThresholdsFor(ModeContinuous)); !v.Valid {
		t.Errorf("30m should pass continuous limit, got %v", v.Lines())
	}
	if v := Evaluate(s, nil, cfg.ThresholdsFor(ModeFirstPass)); !v.Has(model.IssueLowAccuracy) {
		t.Errorf("30m should fail first-pass limit, got %v", codes(v))
	}
}

func TestSpeedReportedInKMH(t *testing.T) {
	v := Evaluate(sample(model.RawReading{Speed: model.Float(60), Provider: "gps"}), nil, DefaultThresholds())

	if !v.Has(model.IssueUnrealisticSpeed) {
		t.Fatalf("expected unrealistic_speed, got %v", codes(v))
	}
	if v.Issues[0].Detail != "216.0" {
		t.Errorf("expected 216.0 km/h, got %s", v.Issues[0].Detail)
	}
	if v.Issues[0].String() != "Unrealistic speed: 216.0 km/h" {
		t.Errorf("unexpected line %q", v.Issues[0].String())
	}
}

func TestSpeedAtLimitPasses(t *testing.T) {
	v := Evaluate(sample(model.RawReading{Speed: model.Float(50), Provider: "gps"}), nil, DefaultThresholds())
	if !v.Valid {
		t.Errorf("speed 50 should pass, got %v", v.Lines())
	}
}

func TestAltitudeRange(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		alt   float64
		valid bool
	}{
		{-500, true},
		{5000, true},
		{0, true},
		{-501, false},
		{5001, false},
		{12000, false},
	}
	for _, tt := range tests {
		v := Evaluate(sample(model.RawReading{Altitude: model.Float(tt.alt), Provider: "gps"}), nil, th)
		if v.Valid != tt.valid {
			t.Errorf("altitude %v: expected valid=%v, got issues %v", tt.alt, tt.valid, codes(v))
		}
		if !tt.valid && !v.Has(model.IssueUnusualAltitude) {
			t.Errorf("altitude %v: expected unusual_altitude", tt.alt)
		}
	}
}

func TestNetworkProviderCaseInsensitive(t *testing.T) {
	th := DefaultThresholds()
	for _, p := range []string{"network", "NETWORK_PROVIDER", "android.Network.wifi"} {
		v := Evaluate(sample(model.RawReading{Provider: p}), nil, th)
		if !v.Has(model.IssueNetworkProvider) {
			t.Errorf("provider %q: expected network_provider, got %v", p, codes(v))
		}
	}
	for _, p := range []string{"gps", "fused", ""} {
		v := Evaluate(sample(model.RawReading{Provider: p}), nil, th)
		if v.Has(model.IssueNetworkProvider) {
			t.Errorf("provider %q: unexpected network_provider", p)
		}
	}
}

func TestCustomSuspectProviders(t *testing.T) {
	th := DefaultThresholds()
	th.SuspectProviders = []string{"network", "Fused"}

	v := Evaluate(sample(model.RawReading{Provider: "fused"}), nil, th)
	if !v.Has(model.IssueNetworkProvider) {
		t.Errorf("expected fused flagged, got %v", codes(v))
	}
}

func TestMockedFlag(t *testing.T) {
	v := Evaluate(sample(model.RawReading{Provider: "gps", Mocked: model.Bool(true)}), nil, DefaultThresholds())
	if v.Valid || !v.Has(model.IssueMockLocation) {
		t.Errorf("expected mock_location, got %v", codes(v))
	}
	if v.Issues[0].String() != "Mock location flag set" {
		t.Errorf("unexpected line %q", v.Issues[0].String())
	}
}

func TestImpliedMovement(t *testing.T) {
	prev := sample(model.RawReading{Latitude: 0, Longitude: 0, Provider: "gps", Timestamp: 0})
	cur := sample(model.RawReading{Latitude: 1, Longitude: 0, Provider: "gps", Timestamp: 1000})

	v := Evaluate(cur, &prev, DefaultThresholds())
	if !v.Has(model.IssueUnrealisticMovement) {
		t.Fatalf("expected unrealistic_movement, got %v", codes(v))
	}
	// ~111195 m/s -> ~400302 km/h
	kmh, err := strconv.ParseFloat(v.Issues[0].Detail, 64)
	if err != nil {
		t.Fatalf("detail not numeric: %v", err)
	}
	if math.Abs(kmh-400302) > 5 {
		t.Errorf("expected ~400302 km/h, got %v", kmh)
	}
}

func TestImpliedMovementSkippedWhenElapsedNotPositive(t *testing.T) {
	prev := sample(model.RawReading{Latitude: 0, Longitude: 0, Provider: "gps", Timestamp: 5000})

	for _, ts := range []int64{5000, 4000} {
		cur := sample(model.RawReading{Latitude: 10, Longitude: 10, Provider: "gps", Timestamp: ts})
		v := Evaluate(cur, &prev, DefaultThresholds())
		if !v.Valid {
			t.Errorf("timestamp %d: expected movement rule skipped, got %v", ts, codes(v))
		}
	}
}

func TestImpliedMovementWalkingPace(t *testing.T) {
	prev := sample(model.RawReading{Latitude: -6.2000, Longitude: 106.8000, Provider: "gps", Timestamp: 0})
	cur := sample(model.RawReading{Latitude: -6.2001, Longitude: 106.8000, Provider: "gps", Timestamp: 15000})

	if v := Evaluate(cur, &prev, DefaultThresholds()); !v.Valid {
		t.Errorf("walking pace should pass, got %v", v.Lines())
	}
}

func TestAllRulesFireInOrder(t *testing.T) {
	prev := sample(model.RawReading{Latitude: 0, Longitude: 0, Timestamp: 0})
	cur := sample(model.RawReading{
		Latitude:  1,
		Longitude: 0,
		Accuracy:  model.Float(900),
		Speed:     model.Float(300),
		Altitude:  model.Float(-2000),
		Provider:  "network",
		Mocked:    model.Bool(true),
		Timestamp: 1000,
	})

	v := Evaluate(cur, &prev, DefaultThresholds())
	want := []model.IssueCode{
		model.IssueLowAccuracy,
		model.IssueUnrealisticSpeed,
		model.IssueUnusualAltitude,
		model.IssueNetworkProvider,
		model.IssueMockLocation,
		model.IssueUnrealisticMovement,
	}
	if !reflect.DeepEqual(codes(v), want) {
		t.Errorf("expected %v, got %v", want, codes(v))
	}
	if v.Valid {
		t.Error("expected invalid")
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	prev := sample(model.RawReading{Latitude: 0, Longitude: 0, Timestamp: 0})
	cur := sample(model.RawReading{
		Latitude:  0.5,
		Longitude: 0.5,
		Accuracy:  model.Float(75.25),
		Provider:  "network",
		Timestamp: 2000,
	})

	first := Evaluate(cur, &prev, DefaultThresholds())
	for i := 0; i < 10; i++ {
		if got := Evaluate(cur, &prev, DefaultThresholds()); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestEvaluateDoesNotMutateInputs(t *testing.T) {
	prev := sample(model.RawReading{Latitude: 0, Longitude: 0, Timestamp: 0})
	cur := sample(model.RawReading{Latitude: 1, Accuracy: model.Float(99), Timestamp: 1000})
	prevCopy, curAcc := prev, *cur.Accuracy

	Evaluate(cur, &prev, DefaultThresholds())

	if !reflect.DeepEqual(prev, prevCopy) {
		t.Error("previous sample mutated")
	}
	if *cur.Accuracy != curAcc {
		t.Error("current sample mutated")
	}
}
