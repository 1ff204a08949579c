package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/tripforge/geopipeline/internal/geomath"
	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/resilience"
)

const osmSearchURL = "https://nominatim.openstreetmap.org/search"

const osmBiasRadius = 100_000

type osmResult struct {
	Lat     string `json:"lat"`
	Lon     string `json:"lon"`
	Class   string `json:"class"`
	Type    string `json:"type"`
	Address struct {
		Road        string `json:"road"`
		HouseNumber string `json:"house_number"`
		Suburb      string `json:"suburb"`
		City        string `json:"city"`
		Postcode    string `json:"postcode"`
		State       string `json:"state"`
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

func newOSM(deps Deps) Adapter {
	cfg := deps.Config[model.ProviderOSM]
	client := deps.client()
	// Nominatim usage policy caps anonymous clients at one request per second.
	limiter := rate.NewLimiter(1, 1)

	return &adapter{
		name:    model.ProviderOSM,
		version: "1.0.0",
		cfg:     cfg,
		tuning:  defaultTuning(),
		fetch: func(ctx context.Context, fields map[string]string, guess *model.Guess) ([]hit, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, resilience.FailedRequest(model.ProviderOSM, err.Error())
			}

			params := url.Values{
				"format":         {"jsonv2"},
				"addressdetails": {"1"},
				"limit":          {"50"},
			}
			for param, value := range cfg.mapFields(fields) {
				params.Set(param, value)
			}
			if guess != nil {
				west, south, east, north := geomath.BoundingBox(guess.Longitude, guess.Latitude, osmBiasRadius)
				params.Set("viewbox", fmt.Sprintf("%f,%f,%f,%f", west, south, east, north))
				params.Set("bounded", "1")
			}

			var results []osmResult
			status, err := getJSON(ctx, client, osmSearchURL, params, &results)
			if err != nil {
				return nil, resilience.FailedRequest(model.ProviderOSM, err.Error())
			}
			switch {
			case status == http.StatusOK:
			case status == http.StatusTooManyRequests:
				return nil, resilience.RateLimitExceeded(model.ProviderOSM)
			default:
				return nil, resilience.NoResultsFound(model.ProviderOSM)
			}

			var hits []hit
			for _, r := range results {
				lat, errLat := model.ParseDecimal(r.Lat)
				lon, errLon := model.ParseDecimal(r.Lon)
				if errLat != nil || errLon != nil {
					continue
				}
				addr := map[string]string{}
				putNonEmpty(addr, "street", r.Address.Road)
				putNonEmpty(addr, "house_number", r.Address.HouseNumber)
				putNonEmpty(addr, "district", r.Address.Suburb)
				putNonEmpty(addr, "city", r.Address.City)
				putNonEmpty(addr, "postal_code", r.Address.Postcode)
				putNonEmpty(addr, "region", r.Address.State)
				putNonEmpty(addr, "country", r.Address.Country)
				putNonEmpty(addr, "country_code", r.Address.CountryCode)

				hits = append(hits, hit{
					Longitude: lon,
					Latitude:  lat,
					Quality:   r.Type,
					Accuracy:  r.Class,
					Address:   addr,
				})
			}
			if len(hits) == 0 {
				return nil, resilience.NoResultsFound(model.ProviderOSM)
			}
			return hits, nil
		},
	}
}
