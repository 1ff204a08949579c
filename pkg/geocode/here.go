package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/resilience"
)

const hereGeocodeURL = "https://geocoder.ls.hereapi.com/6.2/geocode.json"

// hereBiasRadius is the proximity circle around the guess in metres.
const hereBiasRadius = 100_000

type hereResponse struct {
	Response struct {
		View []struct {
			Result []struct {
				MatchLevel string `json:"MatchLevel"`
				Location   struct {
					DisplayPosition struct {
						Latitude  float64 `json:"Latitude"`
						Longitude float64 `json:"Longitude"`
					} `json:"DisplayPosition"`
					Address struct {
						Street         string `json:"Street"`
						HouseNumber    string `json:"HouseNumber"`
						District       string `json:"District"`
						City           string `json:"City"`
						PostalCode     string `json:"PostalCode"`
						State          string `json:"State"`
						Country        string `json:"Country"`
						AdditionalData []struct {
							Key   string `json:"key"`
							Value string `json:"value"`
						} `json:"AdditionalData"`
					} `json:"Address"`
				} `json:"Location"`
			} `json:"Result"`
		} `json:"View"`
	} `json:"Response"`
}

func newHere(deps Deps) Adapter {
	cfg := deps.Config[model.ProviderHere]
	client := deps.client()

	return &adapter{
		name:    model.ProviderHere,
		version: "1.0.0",
		cfg:     cfg,
		tuning:  defaultTuning(),
		fetch: func(ctx context.Context, fields map[string]string, guess *model.Guess) ([]hit, error) {
			cred, err := deps.Vault.Current(model.ProviderHere)
			if err != nil {
				return nil, err
			}

			params := url.Values{
				"apiKey":     {cred.Key()},
				"maxresults": {"100"},
			}
			for param, value := range cfg.mapFields(fields) {
				params.Set(param, value)
			}
			if guess != nil {
				params.Set("prox", fmt.Sprintf("%f,%f,%d", guess.Latitude, guess.Longitude, hereBiasRadius))
			}

			var resp hereResponse
			status, err := getJSON(ctx, client, hereGeocodeURL, params, &resp)
			if err != nil {
				return nil, resilience.FailedRequest(model.ProviderHere, err.Error())
			}
			switch {
			case status == http.StatusOK:
			case status == http.StatusUnauthorized:
				return nil, resilience.InvalidRequest(model.ProviderHere, strconv.Itoa(status))
			default:
				return nil, resilience.NoResultsFound(model.ProviderHere)
			}

			var hits []hit
			for _, view := range resp.Response.View {
				for _, r := range view.Result {
					a := r.Location.Address
					addr := map[string]string{}
					putNonEmpty(addr, "street", a.Street)
					putNonEmpty(addr, "house_number", a.HouseNumber)
					putNonEmpty(addr, "district", a.District)
					putNonEmpty(addr, "city", a.City)
					putNonEmpty(addr, "postal_code", a.PostalCode)
					putNonEmpty(addr, "region", a.State)
					putNonEmpty(addr, "country_code", a.Country)
					for _, extra := range a.AdditionalData {
						if extra.Key == "CountryName" {
							putNonEmpty(addr, "country", extra.Value)
						}
					}

					hits = append(hits, hit{
						Longitude: r.Location.DisplayPosition.Longitude,
						Latitude:  r.Location.DisplayPosition.Latitude,
						Quality:   r.MatchLevel,
						Address:   addr,
					})
				}
			}
			if len(hits) == 0 {
				return nil, resilience.NoResultsFound(model.ProviderHere)
			}
			return hits, nil
		},
	}
}
