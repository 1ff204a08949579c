package geocode

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/tripforge/geopipeline/internal/geomath"
	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/resilience"
)

const geonamesSearchURL = "http://api.geonames.org/searchJSON"

const geonamesBiasRadius = 100_000

type geonamesResponse struct {
	Geonames []struct {
		Lat         string `json:"lat"`
		Lng         string `json:"lng"`
		Name        string `json:"name"`
		AdminName1  string `json:"adminName1"`
		CountryName string `json:"countryName"`
		CountryCode string `json:"countryCode"`
		Fcode       string `json:"fcode"`
	} `json:"geonames"`
}

// newGeonames resolves city-level locations only; the free tier throttles at
// one request per second.
func newGeonames(deps Deps) Adapter {
	cfg := deps.Config[model.ProviderGeonames]
	client := deps.client()
	limiter := rate.NewLimiter(1, 1)

	return &adapter{
		name:    model.ProviderGeonames,
		version: "1.0.0",
		cfg:     cfg,
		tuning:  defaultTuning(),
		fetch: func(ctx context.Context, fields map[string]string, guess *model.Guess) ([]hit, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, resilience.FailedRequest(model.ProviderGeonames, err.Error())
			}

			cred, err := deps.Vault.Current(model.ProviderGeonames)
			if err != nil {
				return nil, err
			}

			city, ok := fields["city"]
			if !ok {
				return nil, resilience.NoResultsFound(model.ProviderGeonames)
			}

			params := url.Values{
				"q":        {city},
				"username": {cred.Key()},
				"maxRows":  {"100"},
			}
			if cc, ok := fields["country_code"]; ok {
				params.Set("country", cc)
			}
			if guess != nil {
				west, south, east, north := geomath.BoundingBox(guess.Longitude, guess.Latitude, geonamesBiasRadius)
				params.Set("west", model.FormatDecimal(west))
				params.Set("south", model.FormatDecimal(south))
				params.Set("east", model.FormatDecimal(east))
				params.Set("north", model.FormatDecimal(north))
			}

			var resp geonamesResponse
			status, err := getJSON(ctx, client, geonamesSearchURL, params, &resp)
			if err != nil {
				return nil, resilience.FailedRequest(model.ProviderGeonames, err.Error())
			}
			switch {
			case status == http.StatusOK:
			case status == http.StatusTooManyRequests:
				return nil, resilience.RateLimitExceeded(model.ProviderGeonames)
			default:
				return nil, resilience.NoResultsFound(model.ProviderGeonames)
			}

			var hits []hit
			for _, g := range resp.Geonames {
				lat, errLat := model.ParseDecimal(g.Lat)
				lon, errLon := model.ParseDecimal(g.Lng)
				if errLat != nil || errLon != nil {
					continue
				}
				addr := map[string]string{}
				putNonEmpty(addr, "city", g.Name)
				putNonEmpty(addr, "region", g.AdminName1)
				putNonEmpty(addr, "country", g.CountryName)
				putNonEmpty(addr, "country_code", g.CountryCode)

				hits = append(hits, hit{
					Longitude: lon,
					Latitude:  lat,
					Quality:   g.Fcode,
					Address:   addr,
				})
			}
			if len(hits) == 0 {
				return nil, resilience.NoResultsFound(model.ProviderGeonames)
			}
			return hits, nil
		},
	}
}
