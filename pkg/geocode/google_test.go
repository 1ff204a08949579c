package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripforge/geopipeline/internal/keyvault"
	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/resilience"
)

func googleDeps(server *httptest.Server) Deps {
	return Deps{
		Config: Config{
			model.ProviderGoogle: ProviderConfig{
				Requested: []string{"city", "country_code"},
				Arbitrary: []string{"street", "house_number", "postal_code", "region"},
				Mapping: map[string]FieldRef{
					"address":             {"house_number", "street"},
					"locality":            {"city"},
					"postal_code":         {"postal_code"},
					"country":             {"country_code"},
					"administrative_area": {"region"},
				},
			},
		},
		Vault:  keyvault.NewStatic(map[string][]keyvault.Credential{model.ProviderGoogle: {{"key": "test-key"}}}),
		Client: newRewriteClient(server),
	}
}

func TestGoogleGeocode(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{
			"status": "OK",
			"results": [{
				"geometry": {"location": {"lat": 52.5163, "lng": 13.3777}, "location_type": "ROOFTOP"},
				"address_components": [
					{"long_name": "Pariser Platz", "short_name": "Pariser Platz", "types": ["route"]},
					{"long_name": "1", "short_name": "1", "types": ["street_number"]},
					{"long_name": "Berlin", "short_name": "Berlin", "types": ["locality"]},
					{"long_name": "10117", "short_name": "10117", "types": ["postal_code"]},
					{"long_name": "Germany", "short_name": "DE", "types": ["country"]}
				]
			}]
		}`))
	}))
	defer server.Close()

	a := newGoogle(googleDeps(server))
	task := model.GeocoderTask{
		Provider:   model.ProviderGoogle,
		EntityID:   7,
		EntityType: model.EntityAccommodation,
		Address: model.Address{
			Street:      "Pariser Platz",
			HouseNumber: "1",
			City:        "Berlin",
			CountryCode: "DE",
		},
	}

	cand, err := a.Geocode(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotQuery["key"][0])
	assert.Equal(t, "1 Pariser Platz", gotQuery["address"][0])
	assert.Contains(t, gotQuery["components"][0], "locality:Berlin")
	assert.Contains(t, gotQuery["components"][0], "country:DE")

	assert.Equal(t, "accommodation:7", cand.Entity)
	assert.Equal(t, 13.3777, *cand.Longitude)
	assert.Equal(t, 52.5163, *cand.Latitude)
	assert.Equal(t, "ROOFTOP", cand.Accuracy)
	assert.Equal(t, "Berlin", cand.City)
	assert.Equal(t, "DE", cand.CountryCode)

	out := cand.Meta["address_out"].(map[string]string)
	assert.Equal(t, "Pariser Platz", out["street"])
	assert.Equal(t, "1", out["house_number"])
}

func TestGoogleGeocodeBoundsFromGuess(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"status": "OK", "results": [{"geometry": {"location": {"lat": 52.5, "lng": 13.4}}}]}`))
	}))
	defer server.Close()

	a := newGoogle(googleDeps(server))
	task := model.GeocoderTask{
		EntityID:   7,
		EntityType: model.EntityAccommodation,
		Address: model.Address{
			City:        "Berlin",
			CountryCode: "DE",
			Guess:       &model.Guess{Longitude: 13.4, Latitude: 52.5},
		},
	}

	_, err := a.Geocode(context.Background(), task)
	require.NoError(t, err)
	require.Contains(t, gotQuery, "bounds")
}

func TestGoogleGeocodeStatusMapping(t *testing.T) {
	tests := []struct {
		status string
		kind   resilience.Kind
	}{
		{"OVER_QUERY_LIMIT", resilience.KindRateLimitExceeded},
		{"UNKNOWN_ERROR", resilience.KindFailedRequest},
		{"REQUEST_DENIED", resilience.KindFailedRequest},
		{"INVALID_REQUEST", resilience.KindInvalidRequest},
		{"ZERO_RESULTS", resilience.KindNoResultsFound},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`{"status": "` + tt.status + `", "results": []}`))
			}))
			defer server.Close()

			a := newGoogle(googleDeps(server))
			task := model.GeocoderTask{
				EntityID:   7,
				EntityType: model.EntityAccommodation,
				Address:    model.Address{City: "Berlin", CountryCode: "DE"},
			}
			_, err := a.Geocode(context.Background(), task)
			assert.True(t, resilience.IsKind(err, tt.kind), "status %s", tt.status)
		})
	}
}

func TestGoogleTuningAndQuotaReset(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	a := newGoogle(googleDeps(server))
	tuning := a.Tuning()
	assert.Equal(t, 1, tuning.MaxRetries)
	assert.Equal(t, 3*time.Second, tuning.InitialBackoff)
	assert.True(t, tuning.QuotaExceedOnThrottle)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	reset := a.QuotaResetEpoch(now)
	assert.True(t, reset.After(now))
	assert.True(t, reset.Before(now.Add(36*time.Hour)))
}
