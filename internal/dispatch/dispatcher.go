// Package dispatch runs geocoder tasks against provider adapters with retry,
// key rotation and process-wide quota guarding, and reports one status line
// per task.
package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tripforge/geopipeline/internal/keyvault"
	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/resilience"
	"github.com/tripforge/geopipeline/pkg/geocode"
)

// AdapterFactory resolves a provider name to its adapter.
type AdapterFactory func(name string) (geocode.Adapter, error)

// Dispatcher drives geocoder tasks through their providers.
type Dispatcher struct {
	adapters AdapterFactory
	vault    *keyvault.Vault
	guard    *resilience.QuotaGuard
	now      func() time.Time
}

// Outcome is the result of one task batch.
type Outcome struct {
	// Results are the stored candidates of successful tasks.
	Results []model.Candidate

	// Reschedules are tasks that should run again once quota or provider
	// health recovers.
	Reschedules []model.GeocoderTask
}

// New builds a dispatcher over the given adapter factory and credential
// vault.
func New(adapters AdapterFactory, vault *keyvault.Vault, guard *resilience.QuotaGuard) *Dispatcher {
	return &Dispatcher{
		adapters: adapters,
		vault:    vault,
		guard:    guard,
		now:      time.Now,
	}
}

// Process runs all tasks sequentially and collects results and reschedules.
func (d *Dispatcher) Process(ctx context.Context, tasks []model.GeocoderTask) Outcome {
	var out Outcome
	for _, task := range tasks {
		cand, err := d.processTask(ctx, task)
		if err == nil {
			out.Results = append(out.Results, cand)
			continue
		}
		if d.shouldReschedule(task, err) {
			out.Reschedules = append(out.Reschedules, task)
		}
	}
	return out
}

// processTask geocodes one task, logging its final status.
func (d *Dispatcher) processTask(ctx context.Context, task model.GeocoderTask) (model.Candidate, error) {
	if d.guard.Exhausted(task.Provider) {
		d.logStatus(task, resilience.QuotaExhausted(task.Provider))
		return model.Candidate{}, resilience.QuotaExhausted(task.Provider)
	}

	adapter, err := d.adapters(task.Provider)
	if err != nil {
		zap.L().Error("unknown provider",
			zap.String("provider", task.Provider),
			zap.Uint64("entity_id", task.EntityID),
			zap.Error(err),
		)
		return model.Candidate{}, err
	}

	cand, err := d.geocodeWithRotation(ctx, adapter, task)
	if err != nil {
		if resilience.IsKind(err, resilience.KindQuotaExhausted) && !d.guard.Exhausted(task.Provider) {
			d.guard.Disable(task.Provider, adapter.QuotaResetEpoch(d.now()))
		}
		d.logStatus(task, err)
		return model.Candidate{}, err
	}

	d.logStatus(task, nil)
	return cand, nil
}

// geocodeWithRotation retries transient failures with full-jitter backoff and
// rotates API keys while unused ones remain after a quota error.
func (d *Dispatcher) geocodeWithRotation(ctx context.Context, adapter geocode.Adapter, task model.GeocoderTask) (model.Candidate, error) {
	tuning := adapter.Tuning()
	name := adapter.Name()

	cfg := resilience.RetryConfig{
		MaxRetries:     tuning.MaxRetries,
		InitialBackoff: tuning.InitialBackoff,
		OnRetry:        resilience.RetryLogger(name),
	}

	keysUsed := 1
	for {
		cand, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (model.Candidate, error) {
			return adapter.Geocode(ctx, task)
		})
		if err == nil {
			return cand, nil
		}

		// services that hide quota errors behind throttling: persistent
		// throttling counts as an exhausted quota
		if resilience.IsKind(err, resilience.KindRateLimitExceeded) && tuning.QuotaExceedOnThrottle {
			err = resilience.QuotaExhausted(name)
		}

		if resilience.IsKind(err, resilience.KindQuotaExhausted) && keysUsed < d.vault.Count(name) {
			if _, rotateErr := d.vault.Rotate(name); rotateErr == nil {
				keysUsed++
				continue
			}
		}
		return model.Candidate{}, err
	}
}

// shouldReschedule marks quota-blocked and unclassified failures for a later
// run. Empty results, invalid input and exhausted retries stay final.
func (d *Dispatcher) shouldReschedule(_ model.GeocoderTask, err error) bool {
	switch resilience.KindOf(err) {
	case resilience.KindQuotaExhausted, resilience.KindUnknown:
		return true
	}
	return false
}

// logStatus emits the one status line every task gets.
func (d *Dispatcher) logStatus(task model.GeocoderTask, err error) {
	status := "OK"
	code := 0
	level := zap.InfoLevel

	if err != nil {
		kind := resilience.KindOf(err)
		status = kind.Status()
		code = kind.StatusCode()
		switch kind {
		case resilience.KindQuotaExhausted:
			// quota-blocked tasks are rescheduled, not failed
			status = "RESCHEDULE"
			code = -2
		case resilience.KindFailedRequest, resilience.KindRateLimitExceeded,
			resilience.KindInvalidRequest, resilience.KindUnknown:
			level = zap.WarnLevel
		}
	}

	zap.L().Log(level, status,
		zap.Int("status_code", code),
		zap.String("provider", task.Provider),
		zap.Uint64("entity_id", task.EntityID),
		zap.String("entity_type", string(task.EntityType)),
		zap.String("batch_id", task.BatchID),
	)
}
