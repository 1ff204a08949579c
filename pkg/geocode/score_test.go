package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tripforge/geopipeline/internal/model"
)

func TestRateResultFieldScoring(t *testing.T) {
	input := map[string]string{
		"street":      "Hauptstrasse",
		"city":        "Berlin",
		"postal_code": "10115",
		"region":      "Berlin",
	}
	returned := map[string]string{
		"street":      "Hauptstrasse",
		"city":        "Berlin",
		"postal_code": "10115",
		"region":      "Berlin",
	}
	assert.Equal(t, 4.0, RateResult(returned, 13.4, 52.5, input, nil))

	// A mismatching city drops exactly one point.
	returned["city"] = "Hamburg"
	assert.Equal(t, 3.0, RateResult(returned, 13.4, 52.5, input, nil))

	// Fields missing on either side contribute nothing.
	delete(returned, "postal_code")
	assert.Equal(t, 2.0, RateResult(returned, 13.4, 52.5, input, nil))
}

func TestRateResultStreetPrecomposition(t *testing.T) {
	input := map[string]string{"street": "5 Hauptstrasse"}
	returned := map[string]string{"street": "Hauptstrasse", "house_number": "5"}
	assert.Equal(t, 1.0, RateResult(returned, 0, 0, input, nil))
}

func TestRateResultDistanceScore(t *testing.T) {
	guess := &model.Guess{Longitude: 13.4, Latitude: 52.5}

	// On top of the guess: full three points.
	score := RateResult(map[string]string{}, 13.4, 52.5, map[string]string{}, guess)
	assert.InDelta(t, 3.0, score, 0.001)

	// Inside the 10 metre free zone: still three points.
	score = RateResult(map[string]string{}, 13.4, 52.50005, map[string]string{}, guess)
	assert.InDelta(t, 3.0, score, 0.02)

	// The score halves every 10 metres past the free zone.
	score = RateResult(map[string]string{}, 13.4, 52.50018, map[string]string{}, guess)
	assert.Less(t, score, 3.0)
	assert.Greater(t, score, 1.0)

	// A kilometre out is effectively zero.
	score = RateResult(map[string]string{}, 13.4, 52.509, map[string]string{}, guess)
	assert.Less(t, score, 0.001)
}

func TestRateResultCombined(t *testing.T) {
	guess := &model.Guess{Longitude: 13.4, Latitude: 52.5}
	input := map[string]string{"city": "Berlin"}
	returned := map[string]string{"city": "Berlin"}
	score := RateResult(returned, 13.4, 52.5, input, guess)
	assert.InDelta(t, 4.0, score, 0.001)
}
