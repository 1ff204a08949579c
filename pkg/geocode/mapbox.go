package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tripforge/geopipeline/internal/geomath"
	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/resilience"
)

const mapboxGeocodeURL = "https://api.mapbox.com/geocoding/v5/mapbox.places/"

const mapboxBiasRadius = 100_000

type mapboxResponse struct {
	Features []struct {
		Center    []float64 `json:"center"`
		Text      string    `json:"text"`
		Address   string    `json:"address"`
		Relevance float64   `json:"relevance"`
		PlaceType []string  `json:"place_type"`
		Context   []struct {
			ID        string `json:"id"`
			Text      string `json:"text"`
			ShortCode string `json:"short_code"`
		} `json:"context"`
		Properties struct {
			Accuracy string `json:"accuracy"`
		} `json:"properties"`
	} `json:"features"`
}

func newMapbox(deps Deps) Adapter {
	cfg := deps.Config[model.ProviderMapbox]
	client := deps.client()

	return &adapter{
		name:    model.ProviderMapbox,
		version: "1.0.0",
		cfg:     cfg,
		tuning:  defaultTuning(),
		fetch: func(ctx context.Context, fields map[string]string, guess *model.Guess) ([]hit, error) {
			cred, err := deps.Vault.Current(model.ProviderMapbox)
			if err != nil {
				return nil, err
			}

			query := compose(fields, "street", "district", "postal_code", "city", "region")
			if query == "" {
				return nil, resilience.NoResultsFound(model.ProviderMapbox)
			}

			params := url.Values{"access_token": {cred.Key()}}
			if cc, ok := fields["country_code"]; ok {
				params.Set("country", strings.ToLower(cc))
			}
			if guess != nil {
				west, south, east, north := geomath.BoundingBox(guess.Longitude, guess.Latitude, mapboxBiasRadius)
				params.Set("bbox", fmt.Sprintf("%f,%f,%f,%f", west, south, east, north))
			}

			var resp mapboxResponse
			status, err := getJSON(ctx, client, mapboxGeocodeURL+url.PathEscape(query)+".json", params, &resp)
			if err != nil {
				return nil, resilience.FailedRequest(model.ProviderMapbox, err.Error())
			}
			switch {
			case status == http.StatusOK:
			case status == http.StatusUnauthorized:
				return nil, resilience.QuotaExhausted(model.ProviderMapbox)
			case status == http.StatusNotFound:
				return nil, resilience.NoResultsFound(model.ProviderMapbox)
			default:
				return nil, resilience.NoResultsFound(model.ProviderMapbox)
			}

			var hits []hit
			for _, f := range resp.Features {
				if len(f.Center) < 2 {
					continue
				}
				addr := map[string]string{}
				putNonEmpty(addr, "street", f.Text)
				putNonEmpty(addr, "house_number", f.Address)
				for _, c := range f.Context {
					switch {
					case strings.HasPrefix(c.ID, "place"):
						putNonEmpty(addr, "district", c.Text)
					case strings.HasPrefix(c.ID, "locality"):
						putNonEmpty(addr, "city", c.Text)
					case strings.HasPrefix(c.ID, "postcode"):
						putNonEmpty(addr, "postal_code", c.Text)
					case strings.HasPrefix(c.ID, "region"):
						putNonEmpty(addr, "region", c.Text)
					case strings.HasPrefix(c.ID, "country"):
						putNonEmpty(addr, "country", c.Text)
						putNonEmpty(addr, "country_code", strings.ToUpper(c.ShortCode))
					}
				}

				hits = append(hits, hit{
					Longitude: f.Center[0],
					Latitude:  f.Center[1],
					Accuracy:  f.Properties.Accuracy,
					Address:   addr,
				})
			}
			if len(hits) == 0 {
				return nil, resilience.NoResultsFound(model.ProviderMapbox)
			}
			return hits, nil
		},
	}
}
