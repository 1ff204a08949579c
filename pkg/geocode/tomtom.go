package geocode

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/resilience"
)

const tomtomGeocodeURL = "https://api.tomtom.com/search/2/geocode/"

const tomtomBiasRadius = 100_000

type tomtomResponse struct {
	Results []struct {
		Type     string `json:"type"`
		Position struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"position"`
		Address struct {
			StreetName                  string `json:"streetName"`
			StreetNumber                string `json:"streetNumber"`
			MunicipalitySubdivision     string `json:"municipalitySubdivision"`
			Municipality                string `json:"municipality"`
			PostalCode                  string `json:"postalCode"`
			CountrySecondarySubdivision string `json:"countrySecondarySubdivision"`
			Country                     string `json:"country"`
			CountryCode                 string `json:"countryCode"`
		} `json:"address"`
	} `json:"results"`
}

func newTomtom(deps Deps) Adapter {
	cfg := deps.Config[model.ProviderTomtom]
	client := deps.client()

	return &adapter{
		name:    model.ProviderTomtom,
		version: "1.0.0",
		cfg:     cfg,
		tuning:  defaultTuning(),
		fetch: func(ctx context.Context, fields map[string]string, guess *model.Guess) ([]hit, error) {
			cred, err := deps.Vault.Current(model.ProviderTomtom)
			if err != nil {
				return nil, err
			}

			query := compose(fields, "street", "district", "postal_code", "city", "region")
			if query == "" {
				return nil, resilience.NoResultsFound(model.ProviderTomtom)
			}

			params := url.Values{
				"key":   {cred.Key()},
				"limit": {"100"},
			}
			if cc, ok := fields["country_code"]; ok {
				params.Set("countrySet", cc)
			}
			if guess != nil {
				params.Set("lat", model.FormatDecimal(guess.Latitude))
				params.Set("lon", model.FormatDecimal(guess.Longitude))
				params.Set("radius", strconv.Itoa(tomtomBiasRadius))
			}

			var resp tomtomResponse
			status, err := getJSON(ctx, client, tomtomGeocodeURL+url.PathEscape(query)+".json", params, &resp)
			if err != nil {
				return nil, resilience.FailedRequest(model.ProviderTomtom, err.Error())
			}
			switch {
			case status == http.StatusOK:
			case status == http.StatusForbidden:
				return nil, resilience.QuotaExhausted(model.ProviderTomtom)
			case status == http.StatusNotFound:
				return nil, resilience.NoResultsFound(model.ProviderTomtom)
			default:
				return nil, resilience.NoResultsFound(model.ProviderTomtom)
			}

			var hits []hit
			for _, r := range resp.Results {
				addr := map[string]string{}
				putNonEmpty(addr, "street", r.Address.StreetName)
				putNonEmpty(addr, "house_number", r.Address.StreetNumber)
				putNonEmpty(addr, "district", r.Address.MunicipalitySubdivision)
				putNonEmpty(addr, "city", r.Address.Municipality)
				putNonEmpty(addr, "postal_code", r.Address.PostalCode)
				putNonEmpty(addr, "region", r.Address.CountrySecondarySubdivision)
				putNonEmpty(addr, "country", r.Address.Country)
				putNonEmpty(addr, "country_code", r.Address.CountryCode)

				hits = append(hits, hit{
					Longitude: r.Position.Lon,
					Latitude:  r.Position.Lat,
					Quality:   r.Type,
					Address:   addr,
				})
			}
			if len(hits) == 0 {
				return nil, resilience.NoResultsFound(model.ProviderTomtom)
			}
			return hits, nil
		},
	}
}
