// Package geo computes great-circle distance and implied speed between samples.
package geo

import (
	"math"

	"github.com/ppiankov/geowatch/internal/model"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between two samples
// using the haversine formula.
func DistanceMeters(a, b model.Sample) float64 {
	return Haversine(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// Haversine returns the distance in meters between two lat/lon pairs in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// Rounding can push h a hair outside [0,1] for antipodal or identical points.
	h = math.Min(1, math.Max(0, h))

	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// ImpliedSpeed returns the speed in m/s needed to travel from a to b in the
// time between their timestamps. ok is false when b is not strictly later
// than a; callers must skip any check that depends on the speed.
func ImpliedSpeed(a, b model.Sample) (speed float64, ok bool) {
	elapsedMs := b.Timestamp - a.Timestamp
	if elapsedMs <= 0 {
		return 0, false
	}
	return DistanceMeters(a, b) / (float64(elapsedMs) / 1000), true
}

// KMH converts meters per second to kilometers per hour.
func KMH(mps float64) float64 {
	return mps * 3.6
}
