package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripforge/geopipeline/internal/keyvault"
	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/resilience"
	"github.com/tripforge/geopipeline/pkg/geocode"
)

// fakeAdapter scripts a sequence of responses.
type fakeAdapter struct {
	name    string
	tuning  geocode.Tuning
	reset   time.Time
	calls   int
	keyLog  []string
	vault   *keyvault.Vault
	respond func(call int, key string) (model.Candidate, error)
}

func (f *fakeAdapter) Name() string                        { return f.name }
func (f *fakeAdapter) Version() string                     { return "1.0.0" }
func (f *fakeAdapter) TTL() time.Duration                  { return 0 }
func (f *fakeAdapter) QuotaResetEpoch(time.Time) time.Time { return f.reset }
func (f *fakeAdapter) Tuning() geocode.Tuning              { return f.tuning }

func (f *fakeAdapter) Geocode(_ context.Context, task model.GeocoderTask) (model.Candidate, error) {
	key := ""
	if f.vault != nil {
		if cred, err := f.vault.Current(f.name); err == nil {
			key = cred.Key()
		}
	}
	f.keyLog = append(f.keyLog, key)
	f.calls++
	return f.respond(f.calls, key)
}

func okCandidate(task model.GeocoderTask) model.Candidate {
	return model.Candidate{
		Entity:     task.Key(),
		EntityID:   task.EntityID,
		EntityType: task.EntityType,
		Provider:   task.Provider,
		Longitude:  model.Float(13.4),
		Latitude:   model.Float(52.5),
	}
}

func googleTask() model.GeocoderTask {
	return model.GeocoderTask{
		Provider:   "google",
		EntityID:   1,
		EntityType: model.EntityAccommodation,
		Address:    model.Address{City: "Berlin", CountryCode: "DE"},
	}
}

func newTestDispatcher(a *fakeAdapter, vault *keyvault.Vault) *Dispatcher {
	factory := func(name string) (geocode.Adapter, error) {
		return a, nil
	}
	return New(factory, vault, resilience.NewQuotaGuard())
}

func TestProcessSuccess(t *testing.T) {
	vault := keyvault.NewStatic(map[string][]keyvault.Credential{"google": {{"key": "g1"}}})
	a := &fakeAdapter{
		name: "google", vault: vault,
		respond: func(_ int, _ string) (model.Candidate, error) {
			return okCandidate(googleTask()), nil
		},
	}

	out := newTestDispatcher(a, vault).Process(context.Background(), []model.GeocoderTask{googleTask()})
	require.Len(t, out.Results, 1)
	assert.Empty(t, out.Reschedules)
	assert.Equal(t, "accommodation:1", out.Results[0].Entity)
}

func TestProcessRetriesTransientFailures(t *testing.T) {
	vault := keyvault.NewStatic(map[string][]keyvault.Credential{"google": {{"key": "g1"}}})
	a := &fakeAdapter{
		name: "google", vault: vault,
		tuning: geocode.Tuning{MaxRetries: 2, InitialBackoff: time.Millisecond},
		respond: func(call int, _ string) (model.Candidate, error) {
			if call < 3 {
				return model.Candidate{}, resilience.FailedRequest("google", "503")
			}
			return okCandidate(googleTask()), nil
		},
	}

	out := newTestDispatcher(a, vault).Process(context.Background(), []model.GeocoderTask{googleTask()})
	require.Len(t, out.Results, 1)
	assert.Equal(t, 3, a.calls)
}

func TestProcessNoResultsIsFinal(t *testing.T) {
	vault := keyvault.NewStatic(map[string][]keyvault.Credential{"google": {{"key": "g1"}}})
	a := &fakeAdapter{
		name: "google", vault: vault,
		respond: func(_ int, _ string) (model.Candidate, error) {
			return model.Candidate{}, resilience.NoResultsFound("google")
		},
	}

	out := newTestDispatcher(a, vault).Process(context.Background(), []model.GeocoderTask{googleTask()})
	assert.Empty(t, out.Results)
	assert.Empty(t, out.Reschedules)
	assert.Equal(t, 1, a.calls)
}

func TestProcessQuotaRotatesThroughAllKeysThenDisables(t *testing.T) {
	// Two keys: persistent throttling on a quota-on-throttle provider burns
	// through both keys, then the provider is disabled until its reset epoch.
	vault := keyvault.NewStatic(map[string][]keyvault.Credential{
		"google": {{"key": "g1"}, {"key": "g2"}},
	})
	reset := time.Now().Add(time.Hour)
	a := &fakeAdapter{
		name: "google", vault: vault, reset: reset,
		tuning: geocode.Tuning{MaxRetries: 1, InitialBackoff: time.Millisecond, QuotaExceedOnThrottle: true},
		respond: func(_ int, _ string) (model.Candidate, error) {
			return model.Candidate{}, resilience.RateLimitExceeded("google")
		},
	}

	d := newTestDispatcher(a, vault)
	out := d.Process(context.Background(), []model.GeocoderTask{googleTask()})

	assert.Empty(t, out.Results)
	require.Len(t, out.Reschedules, 1)

	// both keys were tried: retries under g1, then rotation to g2
	assert.Contains(t, a.keyLog, "g1")
	assert.Contains(t, a.keyLog, "g2")

	// provider is now disabled: the next task reschedules without a call
	calls := a.calls
	out = d.Process(context.Background(), []model.GeocoderTask{googleTask()})
	require.Len(t, out.Reschedules, 1)
	assert.Equal(t, calls, a.calls)
}

func TestProcessQuotaDirectDisables(t *testing.T) {
	vault := keyvault.NewStatic(map[string][]keyvault.Credential{"bing": {{"key": "b1"}}})
	a := &fakeAdapter{
		name: "bing", vault: vault, reset: time.Now().Add(time.Hour),
		respond: func(_ int, _ string) (model.Candidate, error) {
			return model.Candidate{}, resilience.QuotaExhausted("bing")
		},
	}

	task := googleTask()
	task.Provider = "bing"
	d := newTestDispatcher(a, vault)
	out := d.Process(context.Background(), []model.GeocoderTask{task})

	require.Len(t, out.Reschedules, 1)
	assert.Equal(t, 1, a.calls)
}

func TestProcessInvalidRequestNotRescheduled(t *testing.T) {
	vault := keyvault.NewStatic(map[string][]keyvault.Credential{"here": {{"key": "h1"}}})
	a := &fakeAdapter{
		name: "here", vault: vault,
		respond: func(_ int, _ string) (model.Candidate, error) {
			return model.Candidate{}, resilience.InvalidRequest("here", "401")
		},
	}

	task := googleTask()
	task.Provider = "here"
	out := newTestDispatcher(a, vault).Process(context.Background(), []model.GeocoderTask{task})
	assert.Empty(t, out.Results)
	assert.Empty(t, out.Reschedules)
}

func TestCacheKeyStability(t *testing.T) {
	task := googleTask()
	k1 := CacheKey(task, "1.0.0")
	k2 := CacheKey(task, "1.0.0")
	assert.Equal(t, k1, k2)

	// different entity, same address: same key
	other := task
	other.EntityID = 999
	assert.Equal(t, k1, CacheKey(other, "1.0.0"))

	// version bump invalidates
	assert.NotEqual(t, k1, CacheKey(task, "1.1.0"))

	// address change invalidates
	other = task
	other.Address.City = "Hamburg"
	assert.NotEqual(t, k1, CacheKey(other, "1.0.0"))
}
