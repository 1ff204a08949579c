package geocode

import (
	"context"
	"net/url"
	"strconv"

	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/resilience"
)

const arcgisGeocodeURL = "https://geocode.arcgis.com/arcgis/rest/services/World/GeocodeServer/findAddressCandidates"

type arcgisResponse struct {
	Candidates []struct {
		Location struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"location"`
		Score      float64 `json:"score"`
		Attributes struct {
			AddrType string `json:"Addr_Type"`
		} `json:"attributes"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newArcgis builds the only keyless adapter; the public endpoint embeds its
// error code in the payload instead of the HTTP status.
func newArcgis(deps Deps) Adapter {
	cfg := deps.Config[model.ProviderArcgis]
	client := deps.client()

	return &adapter{
		name:    model.ProviderArcgis,
		version: "1.0.0",
		cfg:     cfg,
		tuning:  defaultTuning(),
		fetch: func(ctx context.Context, fields map[string]string, _ *model.Guess) ([]hit, error) {
			query := compose(fields, "house_number", "street", "district", "postal_code", "city", "region", "country_code")
			if query == "" {
				return nil, resilience.NoResultsFound(model.ProviderArcgis)
			}

			params := url.Values{
				"f":            {"json"},
				"singleLine":   {query},
				"maxLocations": {"100"},
				"outFields":    {"Addr_Type"},
			}

			var resp arcgisResponse
			if _, err := getJSON(ctx, client, arcgisGeocodeURL, params, &resp); err != nil {
				return nil, resilience.FailedRequest(model.ProviderArcgis, err.Error())
			}
			if resp.Error != nil {
				switch resp.Error.Code {
				case 400:
					return nil, resilience.InvalidRequest(model.ProviderArcgis, strconv.Itoa(resp.Error.Code))
				default:
					// transient server codes fall through to no results
					return nil, resilience.NoResultsFound(model.ProviderArcgis)
				}
			}

			var hits []hit
			for _, c := range resp.Candidates {
				hits = append(hits, hit{
					Longitude: c.Location.X,
					Latitude:  c.Location.Y,
					Accuracy:  c.Attributes.AddrType,
					Address:   map[string]string{},
				})
			}
			if len(hits) == 0 {
				return nil, resilience.NoResultsFound(model.ProviderArcgis)
			}
			return hits, nil
		},
	}
}
