// Package locator resolves consolidated coordinates to locality ids through
// the internal city locator API and writes the enrichment back to the
// transfer table.
package locator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tripforge/geopipeline/internal/model"
)

// validGeoPointScore is the consolidation score at or above which the
// coordinate itself is considered trustworthy.
const validGeoPointScore = 0.5

// retryPause spaces retries of throttled locality lookups.
const retryPause = 100 * time.Millisecond

// Sentinel failures of a single lookup. All three are per-location and leave
// the rest of the batch untouched.
var (
	ErrNoCityFound   = eris.New("locator: no city found")
	ErrBadRequest    = eris.New("locator: bad request")
	ErrLimitExceeded = eris.New("locator: quota exceeded")
)

// Location is one coordinate to resolve.
type Location struct {
	CandidateID   uint64
	Longitude     float64
	Latitude      float64
	City          string
	ValidGeoPoint bool
}

// Located is a location enriched with the locality hierarchy.
type Located struct {
	Location

	LocalityID uint64
	LocalityNS uint64
	CountryID  uint64
	CountryNS  uint64

	AdministrativeDivisionID uint64
	AdministrativeDivisionNS uint64
}

// Key returns the transfer table key of the located candidate.
func (l Located) Key() string {
	return model.EntityKey(model.EntityCandidateAccommodation, l.CandidateID)
}

// TransferFields returns the attribute updates for the transfer table row.
func (l Located) TransferFields() map[string]any {
	return map[string]any{
		"entity_id":                  l.CandidateID,
		"locality_id":                l.LocalityID,
		"locality_ns":                l.LocalityNS,
		"administrative_division_id": l.AdministrativeDivisionID,
		"administrative_division_ns": l.AdministrativeDivisionNS,
		"country_id":                 l.CountryID,
		"country_ns":                 l.CountryNS,
		"longitude":                  l.Longitude,
		"latitude":                   l.Latitude,
		"valid_geo_point":            l.ValidGeoPoint,
	}
}

// Client calls the city locator API with SigV4-signed requests.
type Client struct {
	httpClient *http.Client
	signer     *v4.Signer
	creds      aws.CredentialsProvider
	region     string
	url        string
	apiKey     string
}

// Options configures the client.
type Options struct {
	APIID       string
	APIKey      string
	Region      string
	Environment string
	Credentials aws.CredentialsProvider

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client

	// BaseURL overrides the API gateway endpoint, mainly for tests.
	BaseURL string
}

// NewClient builds the locator client. Non-production environments share the
// dev stage of the API.
func NewClient(opts Options) *Client {
	stage := "dev"
	if opts.Environment == "production" || opts.Environment == "prod" {
		stage = "prod"
	}

	base := opts.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.execute-api.%s.amazonaws.com", opts.APIID, opts.Region)
	}

	httpClient := opts.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		httpClient: httpClient,
		signer:     v4.NewSigner(),
		creds:      opts.Credentials,
		region:     opts.Region,
		url:        base + "/" + stage + "/locate",
		apiKey:     opts.APIKey,
	}
}

type localityResult struct {
	LocalityID uint64 `json:"locality_id"`
	LocalityNS uint64 `json:"locality_ns"`
	CountryID  uint64 `json:"country_id"`
	CountryNS  uint64 `json:"country_ns"`
}

// Locate resolves one location, retrying throttled and server-side failures
// with a fixed pause until the context is cancelled.
func (c *Client) Locate(ctx context.Context, location Location) (Located, error) {
	for {
		located, err := c.locateOnce(ctx, location)
		if err == nil {
			return located, nil
		}
		if !isRetryable(err) {
			return Located{}, err
		}

		timer := time.NewTimer(retryPause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Located{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) locateOnce(ctx context.Context, location Location) (Located, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Located{}, eris.Wrap(err, "building locate request")
	}

	q := req.URL.Query()
	q.Set("longitude", model.FormatDecimal(location.Longitude))
	q.Set("latitude", model.FormatDecimal(location.Latitude))
	q.Set("city", location.City)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("x-api-key", c.apiKey)

	if err := c.sign(ctx, req); err != nil {
		return Located{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Located{}, retryableError{eris.Wrap(err, "calling locate")}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Located{}, retryableError{eris.Wrap(err, "reading locate response")}
	}

	if resp.StatusCode != http.StatusOK {
		return Located{}, classifyFailure(resp.StatusCode, body, location)
	}

	var results []localityResult
	if err := json.Unmarshal(body, &results); err != nil {
		return Located{}, eris.Wrap(err, "decoding locate response")
	}
	if len(results) == 0 {
		return Located{}, ErrNoCityFound
	}

	return Located{
		Location:   location,
		LocalityID: results[0].LocalityID,
		LocalityNS: results[0].LocalityNS,
		CountryID:  results[0].CountryID,
		CountryNS:  results[0].CountryNS,
	}, nil
}

// sign applies SigV4 for the execute-api service.
func (c *Client) sign(ctx context.Context, req *http.Request) error {
	creds, err := c.creds.Retrieve(ctx)
	if err != nil {
		return eris.Wrap(err, "retrieving credentials")
	}
	hash := sha256.Sum256(nil)
	payloadHash := hex.EncodeToString(hash[:])
	if err := c.signer.SignHTTP(ctx, creds, req, payloadHash, "execute-api", c.region, time.Now()); err != nil {
		return eris.Wrap(err, "signing locate request")
	}
	return nil
}

// classifyFailure maps API gateway failures onto the sentinel errors. A 429
// caused by the account quota aborts the location; any other 429 and all
// server faults are retried.
func classifyFailure(status int, body []byte, location Location) error {
	zap.L().Info("locate failed", zap.Int("status_code", status))

	switch status {
	case http.StatusBadRequest:
		return eris.Wrapf(ErrBadRequest,
			"longitude=%s latitude=%s city=%s",
			model.FormatDecimal(location.Longitude),
			model.FormatDecimal(location.Latitude),
			location.City,
		)
	case http.StatusTooManyRequests:
		var reason struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &reason); err == nil && reason.Message == "Limit Exceeded" {
			return ErrLimitExceeded
		}
		return retryableError{eris.New("locator: too many requests")}
	case http.StatusForbidden:
		return eris.New("locator: access denied")
	}
	return retryableError{eris.Errorf("locator: unexpected status %d", status)}
}

type retryableError struct{ error }

func isRetryable(err error) bool {
	var r retryableError
	return eris.As(err, &r)
}

// Process resolves a batch of locations. Lookups that fail for reasons tied
// to the location itself are logged and skipped; access failures abort the
// batch.
func (c *Client) Process(ctx context.Context, locations []Location) ([]Located, error) {
	var out []Located
	for _, location := range locations {
		located, err := c.Locate(ctx, location)
		if err != nil {
			if eris.Is(err, ErrNoCityFound) || eris.Is(err, ErrBadRequest) || eris.Is(err, ErrLimitExceeded) {
				zap.L().Warn("location skipped",
					zap.Uint64("candidate_id", location.CandidateID),
					zap.Error(err),
				)
				continue
			}
			return nil, err
		}
		out = append(out, located)
	}
	return out, nil
}

// ParseLocation extracts a location from a consolidation stream record. The
// coordinate is marked valid when the consolidation score clears the
// threshold.
func ParseLocation(data []byte) (Location, error) {
	var record struct {
		EntityID  json.Number `json:"entity_id"`
		Longitude float64     `json:"longitude"`
		Latitude  float64     `json:"latitude"`
		Score     float64     `json:"score"`
		Meta      struct {
			City string `json:"city"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return Location{}, eris.Wrap(err, "decoding consolidation record")
	}

	id, err := strconv.ParseUint(strings.TrimSpace(record.EntityID.String()), 10, 64)
	if err != nil {
		return Location{}, eris.Wrap(err, "parsing entity id")
	}

	return Location{
		CandidateID:   id,
		Longitude:     record.Longitude,
		Latitude:      record.Latitude,
		City:          record.Meta.City,
		ValidGeoPoint: record.Score >= validGeoPointScore,
	}, nil
}
