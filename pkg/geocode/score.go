package geocode

import (
	"math"

	"github.com/tripforge/geopipeline/internal/geomath"
	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/textmatch"
)

// fuzzyThreshold is the token-set similarity a returned field must clear to
// count as a match with the input.
const fuzzyThreshold = 0.75

// distanceDecay is the e-folding scale in metres of the distance score,
// chosen so the score halves every 10 metres past the free zone.
var distanceDecay = -10.0 / math.Log(0.5)

// scoredFields are the address components compared linguistically.
var scoredFields = []string{"street", "district", "city", "postal_code", "region"}

// RateResult scores a returned result against the input address: one point
// per fuzzy-matching field, plus up to three points for proximity to the
// coordinate guess. Higher is better.
func RateResult(returned map[string]string, lon, lat float64, input map[string]string, guess *model.Guess) float64 {
	score := 0.0

	returned = precomposeStreet(returned)

	for _, field := range scoredFields {
		got, okGot := returned[field]
		want, okWant := input[field]
		if !okGot || !okWant {
			continue
		}
		if textmatch.TokenSetRatio(got, want) > fuzzyThreshold {
			score += 1.0
		}
	}

	if guess != nil {
		distance := geomath.HaversineMeters(guess.Longitude, guess.Latitude, lon, lat)

		distanceScore := 3.0
		if distance > 10 {
			// free zone is 10 metres around the guess
			distanceScore *= math.Exp((10.0 - distance) / distanceDecay)
		}
		score += distanceScore
	}

	return score
}

// precomposeStreet merges the house number into the street so that both sides
// compare the same composite form.
func precomposeStreet(addr map[string]string) map[string]string {
	street, hasStreet := addr["street"]
	number, hasNumber := addr["house_number"]
	if !hasStreet || !hasNumber {
		return addr
	}
	out := make(map[string]string, len(addr))
	for k, v := range addr {
		out[k] = v
	}
	out["street"] = number + " " + street
	return out
}
