package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tripforge/geopipeline/internal/geomath"
	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/resilience"
)

const mapquestGeocodeURL = "https://www.mapquestapi.com/geocoding/v1/address"

const mapquestBiasRadius = 100_000

type mapquestResponse struct {
	Results []struct {
		Locations []struct {
			LatLng struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"latLng"`
			Street         string `json:"street"`
			AdminArea6     string `json:"adminArea6"`
			AdminArea5     string `json:"adminArea5"`
			AdminArea3     string `json:"adminArea3"`
			AdminArea1     string `json:"adminArea1"`
			PostalCode     string `json:"postalCode"`
			GeocodeQuality string `json:"geocodeQuality"`
		} `json:"locations"`
	} `json:"results"`
}

func newMapquest(deps Deps) Adapter {
	cfg := deps.Config[model.ProviderMapquest]
	client := deps.client()

	return &adapter{
		name:    model.ProviderMapquest,
		version: "1.0.0",
		cfg:     cfg,
		tuning:  defaultTuning(),
		fetch: func(ctx context.Context, fields map[string]string, guess *model.Guess) ([]hit, error) {
			cred, err := deps.Vault.Current(model.ProviderMapquest)
			if err != nil {
				return nil, err
			}

			query := compose(fields, "street", "district", "postal_code", "city", "region", "country_code")
			if query == "" {
				return nil, resilience.NoResultsFound(model.ProviderMapquest)
			}

			params := url.Values{
				"key":        {cred.Key()},
				"location":   {query},
				"maxResults": {"100"},
			}
			if guess != nil {
				west, south, east, north := geomath.BoundingBox(guess.Longitude, guess.Latitude, mapquestBiasRadius)
				params.Set("boundingBox", fmt.Sprintf("%f,%f,%f,%f", north, west, south, east))
			}

			var resp mapquestResponse
			status, err := getJSON(ctx, client, mapquestGeocodeURL, params, &resp)
			if err != nil {
				return nil, resilience.FailedRequest(model.ProviderMapquest, err.Error())
			}
			switch {
			case status == http.StatusOK:
			case status == http.StatusForbidden:
				return nil, resilience.QuotaExhausted(model.ProviderMapquest)
			case status == http.StatusBadRequest:
				return nil, resilience.InvalidRequest(model.ProviderMapquest, strconv.Itoa(status))
			case status == http.StatusInternalServerError:
				return nil, resilience.FailedRequest(model.ProviderMapquest, strconv.Itoa(status))
			default:
				return nil, resilience.NoResultsFound(model.ProviderMapquest)
			}

			var hits []hit
			for _, r := range resp.Results {
				for _, loc := range r.Locations {
					addr := map[string]string{}
					putNonEmpty(addr, "district", loc.AdminArea6)
					putNonEmpty(addr, "city", loc.AdminArea5)
					putNonEmpty(addr, "postal_code", loc.PostalCode)
					putNonEmpty(addr, "region", loc.AdminArea3)
					putNonEmpty(addr, "country", loc.AdminArea1)
					putNonEmpty(addr, "country_code", loc.AdminArea1)
					splitAddressLine(addr, loc.Street)

					hits = append(hits, hit{
						Longitude: loc.LatLng.Lng,
						Latitude:  loc.LatLng.Lat,
						Quality:   loc.GeocodeQuality,
						Address:   addr,
					})
				}
			}
			if len(hits) == 0 {
				return nil, resilience.NoResultsFound(model.ProviderMapquest)
			}
			return hits, nil
		},
	}
}
