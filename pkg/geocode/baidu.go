package geocode

import (
	"context"
	"net/url"
	"strconv"

	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/resilience"
)

const baiduGeocodeURL = "https://api.map.baidu.com/geocoding/v3/"

type baiduResponse struct {
	Status int `json:"status"`
	Result struct {
		Location struct {
			Lng float64 `json:"lng"`
			Lat float64 `json:"lat"`
		} `json:"location"`
		Precise    int    `json:"precise"`
		Confidence int    `json:"confidence"`
		Level      string `json:"level"`
	} `json:"result"`
}

// newBaidu geocodes street addresses inside China. Baidu reports its error
// codes in the payload status field.
func newBaidu(deps Deps) Adapter {
	cfg := deps.Config[model.ProviderBaidu]
	client := deps.client()

	return &adapter{
		name:    model.ProviderBaidu,
		version: "1.0.0",
		cfg:     cfg,
		tuning:  defaultTuning(),
		fetch: func(ctx context.Context, fields map[string]string, _ *model.Guess) ([]hit, error) {
			cred, err := deps.Vault.Current(model.ProviderBaidu)
			if err != nil {
				return nil, err
			}

			street, ok := fields["street"]
			if !ok {
				return nil, resilience.NoResultsFound(model.ProviderBaidu)
			}

			params := url.Values{
				"ak":      {cred.Key()},
				"output":  {"json"},
				"address": {street},
			}
			if city, ok := fields["city"]; ok {
				params.Set("city", city)
			}

			var resp baiduResponse
			if _, err := getJSON(ctx, client, baiduGeocodeURL, params, &resp); err != nil {
				return nil, resilience.FailedRequest(model.ProviderBaidu, err.Error())
			}

			switch resp.Status {
			case 0:
			case 301, 302:
				return nil, resilience.RateLimitExceeded(model.ProviderBaidu)
			case 401, 402:
				return nil, resilience.QuotaExhausted(model.ProviderBaidu)
			case 211:
				return nil, resilience.InvalidRequest(model.ProviderBaidu, strconv.Itoa(resp.Status))
			default:
				return nil, resilience.NoResultsFound(model.ProviderBaidu)
			}

			return []hit{{
				Longitude:  resp.Result.Location.Lng,
				Latitude:   resp.Result.Location.Lat,
				Accuracy:   resp.Result.Level,
				Confidence: strconv.Itoa(resp.Result.Confidence),
				Address:    map[string]string{},
			}}, nil
		},
	}
}
