package geocode

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tripforge/geopipeline/internal/geomath"
	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/resilience"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleBiasRadius is the bounding box half-size around the guess in metres.
const googleBiasRadius = 100_000

type googleResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"`
		} `json:"geometry"`
		AddressComponents []struct {
			LongName  string   `json:"long_name"`
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

// googleTuning reflects Google's opaque throttling: one retry with a long
// first sleep, and persistent throttling counts as an exhausted daily quota.
func googleTuning() Tuning {
	return Tuning{MaxRetries: 1, InitialBackoff: 3 * time.Second, QuotaExceedOnThrottle: true}
}

func newGoogle(deps Deps) Adapter {
	return &adapter{
		name:    model.ProviderGoogle,
		version: "1.0.0",
		cfg:     deps.Config[model.ProviderGoogle],
		tuning:  googleTuning(),
		reset:   resilience.NextMidnightPacific,
		fetch:   googleFetch(model.ProviderGoogle, deps.Config[model.ProviderGoogle], deps),
	}
}

// newGooglePlaces is the Places-billed variant of the Google adapter. It
// shares the request shape and differs only in credentials and quota.
func newGooglePlaces(deps Deps) Adapter {
	return &adapter{
		name:    model.ProviderGooglePlaces,
		version: "1.0.0",
		cfg:     deps.Config[model.ProviderGooglePlaces],
		tuning:  googleTuning(),
		reset:   resilience.NextMidnightPacific,
		fetch:   googleFetch(model.ProviderGooglePlaces, deps.Config[model.ProviderGooglePlaces], deps),
	}
}

func googleFetch(name string, cfg ProviderConfig, deps Deps) fetchFunc {
	client := deps.client()
	return func(ctx context.Context, fields map[string]string, guess *model.Guess) ([]hit, error) {
		cred, err := deps.Vault.Current(name)
		if err != nil {
			return nil, err
		}

		mapped := cfg.mapFields(fields)
		address := mapped["address"]
		delete(mapped, "address")

		params := url.Values{"key": {cred.Key()}}
		if address != "" {
			params.Set("address", address)
		}
		if comp := googleComponents(mapped); comp != "" {
			params.Set("components", comp)
		}
		if guess != nil {
			west, south, east, north := geomath.BoundingBox(guess.Longitude, guess.Latitude, googleBiasRadius)
			params.Set("bounds", fmt.Sprintf("%f,%f|%f,%f", south, west, north, east))
		}

		var resp googleResponse
		if _, err := getJSON(ctx, client, googleGeocodeURL, params, &resp); err != nil {
			return nil, resilience.FailedRequest(name, err.Error())
		}

		switch resp.Status {
		case "OK":
		case "OVER_QUERY_LIMIT":
			// google does not distinguish qps blocking from quota running out
			return nil, resilience.RateLimitExceeded(name)
		case "UNKNOWN_ERROR", "REQUEST_DENIED":
			return nil, resilience.FailedRequest(name, resp.Status)
		case "INVALID_REQUEST":
			return nil, resilience.InvalidRequest(name, resp.Status)
		default:
			return nil, resilience.NoResultsFound(name)
		}

		hits := make([]hit, 0, len(resp.Results))
		for _, r := range resp.Results {
			addr := make(map[string]string)
			for _, c := range r.AddressComponents {
				for _, t := range c.Types {
					switch t {
					case "route":
						addr["street"] = c.LongName
					case "street_number":
						addr["house_number"] = c.LongName
					case "sublocality":
						addr["district"] = c.LongName
					case "locality":
						addr["city"] = c.LongName
					case "postal_code":
						addr["postal_code"] = c.LongName
					case "administrative_area_level_1":
						addr["region"] = c.LongName
					case "country":
						addr["country"] = c.LongName
						addr["country_code"] = c.ShortName
					}
				}
			}
			hits = append(hits, hit{
				Longitude: r.Geometry.Location.Lng,
				Latitude:  r.Geometry.Location.Lat,
				Accuracy:  r.Geometry.LocationType,
				Address:   addr,
			})
		}
		if len(hits) == 0 {
			return nil, resilience.NoResultsFound(name)
		}
		return hits, nil
	}
}

// googleComponents renders the component filter in stable order.
func googleComponents(mapped map[string]string) string {
	keys := make([]string, 0, len(mapped))
	for k := range mapped {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+mapped[k])
	}
	return strings.Join(parts, "|")
}
