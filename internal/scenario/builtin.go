package scenario

import "github.com/ppiankov/geowatch/internal/model"

// Builtin returns the scenarios run by `geowatch check` when no files are given.
func Builtin() []*Scenario {
	f := model.Float
	return []*Scenario{
		{
			Name: "walking commute",
			Cases: []Case{
				{Sample: ScenarioSample{Latitude: -6.2000, Longitude: 106.8000, Accuracy: f(8), Speed: f(1.4), Provider: "gps", T: 0}},
				{Sample: ScenarioSample{Latitude: -6.2001, Longitude: 106.8001, Accuracy: f(9), Speed: f(1.3), Provider: "gps", T: 15000}},
				{Sample: ScenarioSample{Latitude: -6.2002, Longitude: 106.8002, Accuracy: f(7), Speed: f(1.5), Provider: "fused", T: 30000}},
			},
		},
		{
			Name: "teleport between cities",
			Cases: []Case{
				{Sample: ScenarioSample{Latitude: -6.2, Longitude: 106.8, Accuracy: f(5), Provider: "gps", T: 0}},
				{
					Sample: ScenarioSample{Latitude: -7.25, Longitude: 112.75, Accuracy: f(5), Provider: "gps", T: 15000},
					Expect: []string{string(model.IssueUnrealisticMovement)},
					Note:   "Jakarta to Surabaya in 15 s",
				},
			},
		},
		{
			Name: "mock provider app",
			Cases: []Case{
				{
					Sample: ScenarioSample{Latitude: -6.2, Longitude: 106.8, Accuracy: f(72), Provider: "network", Mocked: model.Bool(true), T: 0},
					Expect: []string{string(model.IssueLowAccuracy), string(model.IssueNetworkProvider), string(model.IssueMockLocation)},
				},
			},
		},
		{
			Name: "page first pass",
			Mode: "first_pass",
			Cases: []Case{
				{
					Sample: ScenarioSample{Latitude: -6.2, Longitude: 106.8, Accuracy: f(30), Provider: "gps", T: 0},
					Expect: []string{string(model.IssueLowAccuracy)},
				},
				{
					Sample: ScenarioSample{Latitude: -6.2, Longitude: 106.8, Accuracy: f(30), Provider: "gps", T: 15000},
					Mode:   "continuous",
					Note:   "30 m is fine once monitoring runs",
				},
			},
		},
		{
			Name: "flight altitude",
			Cases: []Case{
				{
					Sample: ScenarioSample{Latitude: -6.2, Longitude: 106.8, Accuracy: f(10), Altitude: f(10500), Speed: f(250), Provider: "gps", T: 0},
					Expect: []string{string(model.IssueUnrealisticSpeed), string(model.IssueUnusualAltitude)},
				},
			},
		},
	}
}
