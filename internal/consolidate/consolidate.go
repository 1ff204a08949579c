// Package consolidate elects one winning coordinate per entity from its
// candidate pool. Strategies are tried in order of trust; the first one that
// produces a winner decides, and its position fixes the consolidation score.
package consolidate

import (
	"github.com/tripforge/geopipeline/internal/fallback"
	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/ruleset"
)

// Consolidation scores by strategy. A ruleset win over geocoding responses is
// worth more than a partner match, which is worth more than any fallback.
const (
	ScoreGeocoders = 1.0
	ScorePartners  = 0.5
	ScoreFallback  = 0.0
)

// itemFallbackRuleset accepts the source feed's own coordinate as a last
// resort.
var itemFallbackRuleset = ruleset.New(ruleset.Definition{
	Schema: ruleset.Schema{
		Fields:   []string{"provider"},
		Required: []string{"provider"},
	},
	Rules: []ruleset.Rule{{"provider": model.ProviderTrivago}},
})

// Rulesets holds the versioned rule lists the cascade ranks against.
type Rulesets struct {
	Geocoders *ruleset.Ruleset
	Partners  *ruleset.Ruleset
}

// Consolidator elects winners for accommodation entities.
type Consolidator struct {
	rulesets    Rulesets
	fallback    *fallback.CityFallback
	environment string
}

// NewConsolidator builds a consolidator for the given environment.
func NewConsolidator(rulesets Rulesets, cityFallback *fallback.CityFallback, environment string) *Consolidator {
	return &Consolidator{
		rulesets:    rulesets,
		fallback:    cityFallback,
		environment: environment,
	}
}

// EligibleCandidates drops previous winner rows from the pool so that a past
// consolidation never competes with fresh evidence.
func EligibleCandidates(candidates []model.Candidate) []model.Candidate {
	var out []model.Candidate
	for _, c := range candidates {
		if !model.IsConsolidated(c.Provider) {
			out = append(out, c)
		}
	}
	return out
}

// PreviousConsolidation returns the current environment's winner row, if any.
func PreviousConsolidation(candidates []model.Candidate, environment string) (model.Candidate, bool) {
	current := model.ConsolidatedProvider(environment)
	legacy := "consolidator_" + environment
	for _, c := range candidates {
		if c.Provider == current || c.Provider == legacy {
			return c, true
		}
	}
	return model.Candidate{}, false
}

// cascade runs the strategies in trust order over an eligible pool.
func (co *Consolidator) cascade(candidates []model.Candidate) (model.Candidate, bool) {
	if winner, ok := co.rulesets.Geocoders.TopRanked(candidates); ok {
		return withScore(winner, ScoreGeocoders), true
	}

	if winner, ok := co.rulesets.Partners.TopRanked(candidates); ok {
		return withScore(winner, ScorePartners), true
	}

	if winner, ok := co.fallback.FallbackCoordinates(candidates); ok {
		return withScore(winner, ScoreFallback), true
	}

	if winner, ok := itemFallbackRuleset.TopRanked(candidates); ok && winner.HasCoordinate() {
		return withScore(winner, ScoreFallback), true
	}

	return model.Candidate{}, false
}

// Consolidate elects a winner from the full candidate pool. A winner is only
// returned when it strictly beats the score of the previous consolidation, so
// repeated runs over unchanged data never rewrite the row.
func (co *Consolidator) Consolidate(candidates []model.Candidate) (model.Candidate, bool) {
	winner, ok := co.cascade(EligibleCandidates(candidates))
	if !ok {
		return model.Candidate{}, false
	}

	if previous, found := PreviousConsolidation(candidates, co.environment); found {
		if previous.Score != nil && *winner.Score <= *previous.Score {
			return model.Candidate{}, false
		}
	}
	return winner, true
}

// withScore strips the winner down to the fields a consolidation row carries
// and stamps the strategy score.
func withScore(winner model.Candidate, score float64) model.Candidate {
	return model.Candidate{
		Provider:    winner.Provider,
		Longitude:   winner.Longitude,
		Latitude:    winner.Latitude,
		Score:       model.Float(score),
		City:        winner.City,
		CountryCode: winner.CountryCode,
	}
}
