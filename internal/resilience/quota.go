package resilience

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// QuotaGuard tracks providers whose daily quota is exhausted. Once a provider
// is disabled, every call for it fails fast with a quota error until the
// recorded reset time passes.
type QuotaGuard struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

// NewQuotaGuard returns an empty guard.
func NewQuotaGuard() *QuotaGuard {
	return &QuotaGuard{
		until: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Disable marks the provider exhausted until the given reset time.
func (g *QuotaGuard) Disable(provider string, until time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.until[provider] = until
	zap.L().Warn("provider disabled",
		zap.String("provider", provider),
		zap.Time("until", until),
	)
}

// Exhausted reports whether the provider is currently disabled. A provider
// whose reset time has passed is re-enabled on the spot.
func (g *QuotaGuard) Exhausted(provider string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.until[provider]
	if !ok {
		return false
	}
	if !g.now().Before(until) {
		delete(g.until, provider)
		zap.L().Info("provider re-enabled", zap.String("provider", provider))
		return false
	}
	return true
}

// ResetTime returns the reset time of a disabled provider, or false when the
// provider is active.
func (g *QuotaGuard) ResetTime(provider string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.until[provider]
	return until, ok
}

// NextMidnightPacific returns the quota reset instant used by providers with
// Pacific-anchored daily quotas: midnight America/Los_Angeles after the given
// instant. Falls back to UTC midnight when the zone database is unavailable.
func NextMidnightPacific(from time.Time) time.Time {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		loc = time.UTC
	}
	local := from.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	return next
}
