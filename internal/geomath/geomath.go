// Package geomath provides the spherical distance helpers used to score
// provider results against the coordinate guess.
package geomath

import "math"

const earthRadiusMeters = 6_371_000

// HaversineMeters returns the great-circle distance in metres between two
// WGS84 points.
func HaversineMeters(lon1, lat1, lon2, lat2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}

// HaversineKm returns the great-circle distance in kilometres.
func HaversineKm(lon1, lat1, lon2, lat2 float64) float64 {
	return HaversineMeters(lon1, lat1, lon2, lat2) / 1000
}

// BoundingBox returns a [west, south, east, north] box of radiusMeters around
// a point, clamped to valid latitude. Used to bias provider searches around
// the guess.
func BoundingBox(lon, lat, radiusMeters float64) (west, south, east, north float64) {
	dLat := radiusMeters / earthRadiusMeters * 180 / math.Pi
	dLon := dLat / math.Cos(lat*math.Pi/180)

	south = math.Max(lat-dLat, -90)
	north = math.Min(lat+dLat, 90)
	west = lon - dLon
	east = lon + dLon
	return west, south, east, north
}
