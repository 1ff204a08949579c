package geocode

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/resilience"
)

const bingLocationsURL = "https://dev.virtualearth.net/REST/v1/Locations"

type bingResponse struct {
	ResourceSets []struct {
		Resources []struct {
			Point struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"point"`
			Address struct {
				AddressLine   string `json:"addressLine"`
				AdminDistrict string `json:"adminDistrict"`
				Locality      string `json:"locality"`
				Neighborhood  string `json:"neighborhood"`
				PostalCode    string `json:"postalCode"`
				CountryRegion string `json:"countryRegion"`
			} `json:"address"`
			Confidence string `json:"confidence"`
		} `json:"resources"`
	} `json:"resourceSets"`
}

func newBing(deps Deps) Adapter {
	cfg := deps.Config[model.ProviderBing]
	client := deps.client()

	return &adapter{
		name:    model.ProviderBing,
		version: "1.0.0",
		cfg:     cfg,
		tuning:  defaultTuning(),
		fetch: func(ctx context.Context, fields map[string]string, _ *model.Guess) ([]hit, error) {
			cred, err := deps.Vault.Current(model.ProviderBing)
			if err != nil {
				return nil, err
			}

			params := url.Values{
				"key":        {cred.Key()},
				"maxResults": {"100"},
			}
			for param, value := range cfg.mapFields(fields) {
				params.Set(param, value)
			}

			var resp bingResponse
			status, err := getJSON(ctx, client, bingLocationsURL, params, &resp)
			if err != nil {
				return nil, resilience.FailedRequest(model.ProviderBing, err.Error())
			}

			switch {
			case status == http.StatusOK:
			case status == http.StatusUnauthorized || status == http.StatusForbidden:
				return nil, resilience.QuotaExhausted(model.ProviderBing)
			case status == http.StatusNotFound:
				return nil, resilience.NoResultsFound(model.ProviderBing)
			case status == http.StatusTooManyRequests:
				return nil, resilience.RateLimitExceeded(model.ProviderBing)
			case status == http.StatusBadRequest:
				return nil, resilience.InvalidRequest(model.ProviderBing, strconv.Itoa(status))
			default:
				return nil, resilience.FailedRequest(model.ProviderBing, strconv.Itoa(status))
			}

			var hits []hit
			for _, set := range resp.ResourceSets {
				for _, r := range set.Resources {
					if len(r.Point.Coordinates) < 2 {
						continue
					}
					addr := map[string]string{}
					putNonEmpty(addr, "district", r.Address.AdminDistrict)
					putNonEmpty(addr, "city", r.Address.Locality)
					putNonEmpty(addr, "postal_code", r.Address.PostalCode)
					putNonEmpty(addr, "region", r.Address.Neighborhood)
					putNonEmpty(addr, "country", r.Address.CountryRegion)
					splitAddressLine(addr, r.Address.AddressLine)

					hits = append(hits, hit{
						Longitude:  r.Point.Coordinates[1],
						Latitude:   r.Point.Coordinates[0],
						Confidence: r.Confidence,
						Address:    addr,
					})
				}
			}
			if len(hits) == 0 {
				return nil, resilience.NoResultsFound(model.ProviderBing)
			}
			return hits, nil
		},
	}
}

var addressLineRe = regexp.MustCompile(`^(?:(\d+) (.+)|(.+) (\d+))$`)

// splitAddressLine separates a combined street line into house number and
// street, accepting both number-first and number-last layouts.
func splitAddressLine(addr map[string]string, line string) {
	if line == "" {
		return
	}
	m := addressLineRe.FindStringSubmatch(line)
	if m == nil {
		addr["street"] = line
		return
	}
	if m[1] != "" {
		addr["house_number"] = m[1]
		addr["street"] = m[2]
	} else {
		addr["street"] = m[3]
		addr["house_number"] = m[4]
	}
}

func putNonEmpty(m map[string]string, k, v string) {
	if v != "" {
		m[k] = v
	}
}
