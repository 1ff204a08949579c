// Package geocode provides one adapter per external geocoding service. Each
// adapter projects the task address onto the fields its API understands,
// sheds optional fields until the service answers, and returns the best
// candidate with a comparison score against the input.
package geocode

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tripforge/geopipeline/internal/keyvault"
	"github.com/tripforge/geopipeline/internal/model"
)

// Adapter is a single geocoding backend.
type Adapter interface {
	// Name is the provider id used in tasks, credentials and stored rows.
	Name() string

	// Version changes when result parsing changes, invalidating cached rows.
	Version() string

	// TTL is the retention of stored results, zero for permanent rows.
	TTL() time.Duration

	// QuotaResetEpoch returns when an exhausted quota opens again.
	QuotaResetEpoch(now time.Time) time.Time

	// Tuning returns the dispatcher's retry parameters for this backend.
	Tuning() Tuning

	// Geocode resolves one task to a candidate. Failures carry the
	// resilience error taxonomy.
	Geocode(ctx context.Context, task model.GeocoderTask) (model.Candidate, error)
}

// Tuning holds the per-provider retry parameters.
type Tuning struct {
	// MaxRetries bounds backoff retries on failed or throttled requests.
	MaxRetries int

	// InitialBackoff is the first sleep before retrying.
	InitialBackoff time.Duration

	// QuotaExceedOnThrottle treats throttling that survives all retries as
	// an exhausted quota, for services that hide quota errors behind 429s.
	QuotaExceedOnThrottle bool
}

// Deps carries the shared wiring of all adapters.
type Deps struct {
	Config Config
	Vault  *keyvault.Vault
	Client *http.Client
}

func (d Deps) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// New returns the adapter for a provider name.
func New(name string, deps Deps) (Adapter, error) {
	switch name {
	case model.ProviderGoogle:
		return newGoogle(deps), nil
	case model.ProviderGooglePlaces:
		return newGooglePlaces(deps), nil
	case model.ProviderBing:
		return newBing(deps), nil
	case model.ProviderHere:
		return newHere(deps), nil
	case model.ProviderOSM:
		return newOSM(deps), nil
	case model.ProviderTomtom:
		return newTomtom(deps), nil
	case model.ProviderMapbox:
		return newMapbox(deps), nil
	case model.ProviderMapquest:
		return newMapquest(deps), nil
	case model.ProviderArcgis:
		return newArcgis(deps), nil
	case model.ProviderBaidu:
		return newBaidu(deps), nil
	case model.ProviderGeonames:
		return newGeonames(deps), nil
	default:
		return nil, eris.Errorf("unknown geocode provider %s", name)
	}
}
