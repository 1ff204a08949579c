package geomath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineMeters(t *testing.T) {
	// Berlin Alexanderplatz to Brandenburg Gate, roughly 2.8 km.
	d := HaversineMeters(13.4132, 52.5219, 13.3777, 52.5163)
	assert.InDelta(t, 2480, d, 100)

	// Same point.
	assert.Zero(t, HaversineMeters(13.4, 52.5, 13.4, 52.5))

	// Antipodal points are half the circumference.
	d = HaversineMeters(0, 0, 180, 0)
	assert.InDelta(t, 20_015_000, d, 10_000)
}

func TestHaversineKm(t *testing.T) {
	assert.InDelta(t, 2.48, HaversineKm(13.4132, 52.5219, 13.3777, 52.5163), 0.1)
}

func TestBoundingBox(t *testing.T) {
	west, south, east, north := BoundingBox(13.4, 52.5, 1000)
	assert.Less(t, west, 13.4)
	assert.Greater(t, east, 13.4)
	assert.Less(t, south, 52.5)
	assert.Greater(t, north, 52.5)

	// The box diagonal is consistent with the radius.
	assert.InDelta(t, 1000, HaversineMeters(13.4, 52.5, 13.4, north), 5)

	// Latitude clamps at the poles.
	_, _, _, north = BoundingBox(0, 89.999, 100_000)
	assert.Equal(t, 90.0, north)
}
