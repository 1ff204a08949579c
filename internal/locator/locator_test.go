package locator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
	return aws.Credentials{AccessKeyID: "AKID", SecretAccessKey: "SECRET"}, nil
})

type scriptedAPI struct {
	mu        sync.Mutex
	responses []func(w http.ResponseWriter)
	requests  []*http.Request
}

func (s *scriptedAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.requests = append(s.requests, r.Clone(r.Context()))
		i := len(s.requests) - 1
		if i < len(s.responses) {
			s.responses[i](w)
			return
		}
		w.Write([]byte(`[]`))
	}
}

func respondJSON(body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) { w.Write([]byte(body)) }
}

func respondStatus(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func newTestClient(t *testing.T, api *scriptedAPI) *Client {
	t.Helper()
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	return NewClient(Options{
		APIKey:      "key-1",
		Region:      "eu-west-1",
		Environment: "stage",
		Credentials: testCreds,
		Client:      server.Client(),
		BaseURL:     server.URL,
	})
}

func TestLocateSignsAndResolves(t *testing.T) {
	api := &scriptedAPI{responses: []func(http.ResponseWriter){
		respondJSON(`[{"locality_id": 1001, "locality_ns": 200, "country_id": 104, "country_ns": 200}]`),
	}}
	c := newTestClient(t, api)

	located, err := c.Locate(context.Background(), Location{
		CandidateID: 42,
		Longitude:   13.38,
		Latitude:    52.516,
		City:        "Berlin",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1001), located.LocalityID)
	assert.Equal(t, uint64(200), located.CountryNS)

	require.Len(t, api.requests, 1)
	req := api.requests[0]
	assert.Equal(t, "/dev/locate", req.URL.Path)
	assert.Equal(t, "Berlin", req.URL.Query().Get("city"))
	assert.Equal(t, "13.38", req.URL.Query().Get("longitude"))
	assert.Equal(t, "key-1", req.Header.Get("x-api-key"))
	assert.Contains(t, req.Header.Get("Authorization"), "AWS4-HMAC-SHA256")
}

func TestLocateEmptyResultIsNoCity(t *testing.T) {
	api := &scriptedAPI{responses: []func(http.ResponseWriter){respondJSON(`[]`)}}
	c := newTestClient(t, api)

	_, err := c.Locate(context.Background(), Location{CandidateID: 1, City: "Atlantis"})
	assert.ErrorIs(t, err, ErrNoCityFound)
}

func TestLocateRetriesThrottling(t *testing.T) {
	api := &scriptedAPI{responses: []func(http.ResponseWriter){
		respondStatus(http.StatusTooManyRequests, `{"message": "Too Many Requests"}`),
		respondJSON(`[{"locality_id": 7, "locality_ns": 200, "country_id": 1, "country_ns": 200}]`),
	}}
	c := newTestClient(t, api)

	located, err := c.Locate(context.Background(), Location{CandidateID: 1, City: "Berlin"})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), located.LocalityID)
	assert.Len(t, api.requests, 2)
}

func TestLocateQuotaAborts(t *testing.T) {
	api := &scriptedAPI{responses: []func(http.ResponseWriter){
		respondStatus(http.StatusTooManyRequests, `{"message": "Limit Exceeded"}`),
	}}
	c := newTestClient(t, api)

	_, err := c.Locate(context.Background(), Location{CandidateID: 1, City: "Berlin"})
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Len(t, api.requests, 1)
}

func TestProcessSkipsPerLocationFailures(t *testing.T) {
	api := &scriptedAPI{responses: []func(http.ResponseWriter){
		respondStatus(http.StatusBadRequest, ``),
		respondJSON(`[{"locality_id": 7, "locality_ns": 200, "country_id": 1, "country_ns": 200}]`),
	}}
	c := newTestClient(t, api)

	located, err := c.Process(context.Background(), []Location{
		{CandidateID: 1, City: "Berlin"},
		{CandidateID: 2, City: "Paris"},
	})
	require.NoError(t, err)
	require.Len(t, located, 1)
	assert.Equal(t, uint64(2), located[0].CandidateID)
}

func TestProcessAccessDeniedAborts(t *testing.T) {
	api := &scriptedAPI{responses: []func(http.ResponseWriter){
		respondStatus(http.StatusForbidden, ``),
	}}
	c := newTestClient(t, api)

	_, err := c.Process(context.Background(), []Location{{CandidateID: 1, City: "Berlin"}})
	assert.Error(t, err)
}

func TestParseLocation(t *testing.T) {
	data := []byte(`{
		"entity": "candidate_accommodation:42",
		"entity_id": 42,
		"longitude": 13.38,
		"latitude": 52.516,
		"score": 1.0,
		"meta": {"city": "Berlin", "country_code": "DE"}
	}`)

	location, err := ParseLocation(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), location.CandidateID)
	assert.Equal(t, "Berlin", location.City)
	assert.True(t, location.ValidGeoPoint)
}

func TestParseLocationLowScore(t *testing.T) {
	location, err := ParseLocation([]byte(`{"entity_id": 1, "longitude": 1, "latitude": 2, "score": 0.0}`))
	require.NoError(t, err)
	assert.False(t, location.ValidGeoPoint)
}

type fakeTransfer struct {
	updates map[string]map[string]any
}

func (f *fakeTransfer) UpdateTransfer(_ context.Context, entity string, fields map[string]any) error {
	if f.updates == nil {
		f.updates = make(map[string]map[string]any)
	}
	f.updates[entity] = fields
	return nil
}

func TestWorkerProcessUpdatesTransfer(t *testing.T) {
	api := &scriptedAPI{responses: []func(http.ResponseWriter){
		respondJSON(`[{"locality_id": 1001, "locality_ns": 200, "country_id": 104, "country_ns": 200}]`),
	}}
	c := newTestClient(t, api)
	store := &fakeTransfer{}
	w := NewWorker(c, store)

	err := w.Process(context.Background(), [][]byte{
		[]byte(`{"entity_id": 42, "longitude": 13.38, "latitude": 52.516, "score": 1.0, "meta": {"city": "Berlin"}}`),
		[]byte(`garbage`),
	})
	require.NoError(t, err)

	fields, ok := store.updates["candidate_accommodation:42"]
	require.True(t, ok)
	assert.Equal(t, uint64(1001), fields["locality_id"])
	assert.Equal(t, true, fields["valid_geo_point"])
}
