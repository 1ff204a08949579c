// Package fallback locates an entity by its city name when no candidate
// satisfied a ruleset. City names are not unique across countries, so matches
// are screened against the country the candidates agree on.
package fallback

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/ruleset"
	"github.com/tripforge/geopipeline/internal/textmatch"
)

// searchThreshold is the minimum trigram similarity for a destination name to
// count as a match.
const searchThreshold = 0.3

// Destination is one known city polygon centre.
type Destination struct {
	ID          uint64  `json:"destination_id,omitempty"`
	Name        string  `json:"name"`
	Longitude   float64 `json:"longitude"`
	Latitude    float64 `json:"latitude"`
	CountryCode string  `json:"country_code"`
}

// CityFallback resolves the majority city name of a candidate pool to the
// most similarly named known destination.
type CityFallback struct {
	byName map[string][]Destination
	index  *textmatch.NGramIndex
}

// NewCityFallback indexes the destinations by name for similarity search.
func NewCityFallback(destinations []Destination) *CityFallback {
	f := &CityFallback{
		byName: make(map[string][]Destination),
		index:  textmatch.NewNGramIndex(),
	}
	for _, d := range destinations {
		f.byName[d.Name] = append(f.byName[d.Name], d)
		f.index.Add(d.Name, d.Name)
	}
	return f
}

// Load reads destinations.json under dir and builds the fallback index.
func Load(dir string) (*CityFallback, error) {
	path := dir + "/destinations.json"
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reading destinations %s", path)
	}
	var destinations []Destination
	if err := json.Unmarshal(raw, &destinations); err != nil {
		return nil, eris.Wrapf(err, "decoding destinations %s", path)
	}
	return NewCityFallback(destinations), nil
}

// SearchDestinations returns the best named match whose country matches, or
// any match when no country is given.
func (f *CityFallback) SearchDestinations(city, countryCode string) (Destination, bool) {
	for _, match := range f.index.Search(city, searchThreshold) {
		for _, destination := range f.byName[match.Key] {
			if destination.CountryCode == countryCode || countryCode == "" {
				return destination, true
			}
		}
	}
	return Destination{}, false
}

// FallbackCoordinates derives a synthetic candidate from the city the pool
// mostly agrees on. The country is unified with veto so a disputed country
// never biases the search; the city takes a simple majority.
func (f *CityFallback) FallbackCoordinates(candidates []model.Candidate) (model.Candidate, bool) {
	city := ruleset.UnifyField(candidates, "city", false)
	if city == "" {
		return model.Candidate{}, false
	}
	countryCode := ruleset.UnifyField(candidates, "country_code", true)

	destination, ok := f.SearchDestinations(city, countryCode)
	if !ok {
		return model.Candidate{}, false
	}

	return model.Candidate{
		Provider:    model.ProviderCityPolygons,
		Longitude:   model.Float(destination.Longitude),
		Latitude:    model.Float(destination.Latitude),
		City:        destination.Name,
		CountryCode: destination.CountryCode,
	}, true
}
