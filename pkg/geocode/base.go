package geocode

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/tripforge/geopipeline/internal/geomath"
	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/resilience"
)

// hit is one raw result returned by a provider fetch.
type hit struct {
	Longitude float64
	Latitude  float64

	Accuracy   string
	Confidence string
	Quality    string

	// Address is the parsed address of the returned coordinate.
	Address map[string]string
}

// fetchFunc performs one provider request with the given projected fields.
type fetchFunc func(ctx context.Context, fields map[string]string, guess *model.Guess) ([]hit, error)

// adapter is the shared engine behind every provider: field projection,
// tailwise shedding and candidate assembly.
type adapter struct {
	name    string
	version string
	cfg     ProviderConfig
	tuning  Tuning
	ttl     time.Duration
	reset   func(now time.Time) time.Time
	fetch   fetchFunc
}

func (a *adapter) Name() string    { return a.name }
func (a *adapter) Version() string { return a.version }

func (a *adapter) TTL() time.Duration { return a.ttl }

func (a *adapter) Tuning() Tuning { return a.tuning }

// QuotaResetEpoch defaults to one hour out; providers with documented reset
// schedules override via the reset hook.
func (a *adapter) QuotaResetEpoch(now time.Time) time.Time {
	if a.reset != nil {
		return a.reset(now)
	}
	return now.Add(time.Hour)
}

// Geocode projects the address onto the provider's fields and queries,
// shedding optional fields tailwise until the service answers. The best
// result by RateResult becomes the candidate.
func (a *adapter) Geocode(ctx context.Context, task model.GeocoderTask) (model.Candidate, error) {
	all := task.Address.Fields()

	var priority []string
	for _, f := range a.cfg.Arbitrary {
		if _, ok := all[f]; ok {
			priority = append(priority, f)
		}
	}

	fields := make(map[string]string)
	for k, v := range all {
		if slices.Contains(a.cfg.Requested, k) || slices.Contains(priority, k) {
			fields[k] = v
		}
	}

	guess := task.Address.Guess

	var rejected []string
	hits, err := a.fetch(ctx, fields, guess)
	for err != nil {
		if !resilience.IsKind(err, resilience.KindNoResultsFound) || len(priority) == 0 {
			return model.Candidate{}, err
		}

		omission := priority[len(priority)-1]
		priority = priority[:len(priority)-1]
		rejected = append(rejected, omission)

		zap.L().Info("field omission",
			zap.String("provider", a.name),
			zap.String("field", omission),
			zap.String("value", fields[omission]),
			zap.Uint64("entity_id", task.EntityID),
			zap.String("entity_type", string(task.EntityType)),
		)
		delete(fields, omission)

		hits, err = a.fetch(ctx, fields, guess)
	}
	if len(hits) == 0 {
		return model.Candidate{}, resilience.NoResultsFound(a.name)
	}

	best := hits[0]
	bestScore := RateResult(best.Address, best.Longitude, best.Latitude, fields, guess)
	for _, h := range hits[1:] {
		if s := RateResult(h.Address, h.Longitude, h.Latitude, fields, guess); s > bestScore {
			best, bestScore = h, s
		}
	}

	supplied := make([]string, 0, len(fields))
	for k := range fields {
		supplied = append(supplied, k)
	}
	slices.Sort(supplied)

	meta := map[string]any{
		"rejected":    rejected,
		"supplied":    supplied,
		"address":     all,
		"address_out": best.Address,
		"rating":      bestScore,
	}
	if guess != nil {
		meta["guess"] = map[string]any{
			"longitude": guess.Longitude,
			"latitude":  guess.Latitude,
		}
		meta["distance"] = geomath.HaversineMeters(guess.Longitude, guess.Latitude, best.Longitude, best.Latitude)
	}

	cand := model.Candidate{
		Entity:      task.Key(),
		EntityID:    task.EntityID,
		EntityType:  task.EntityType,
		Provider:    a.name,
		Longitude:   model.Float(best.Longitude),
		Latitude:    model.Float(best.Latitude),
		Accuracy:    best.Accuracy,
		Confidence:  best.Confidence,
		Quality:     best.Quality,
		BatchID:     task.BatchID,
		City:        best.Address["city"],
		CountryCode: best.Address["country_code"],
		Meta:        meta,
	}
	if a.ttl > 0 {
		cand.Timestamp = time.Now().Add(a.ttl).Unix()
	}
	return cand, nil
}

// defaultTuning matches the common provider profile.
func defaultTuning() Tuning {
	return Tuning{MaxRetries: 3, InitialBackoff: time.Second}
}
