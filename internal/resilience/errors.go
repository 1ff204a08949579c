// Package resilience provides the geocode error taxonomy, full-jitter retry
// and per-provider quota guarding for external service calls.
package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Kind classifies a geocode failure. Every external status code maps to
// exactly one kind; the dispatcher drives its retry, rotate and disable
// decisions off it.
type Kind int

const (
	KindUnknown Kind = iota
	KindQuotaExhausted
	KindRateLimitExceeded
	KindFailedRequest
	KindInvalidRequest
	KindNoResultsFound
)

// Status returns the status label logged for this kind.
func (k Kind) Status() string {
	switch k {
	case KindQuotaExhausted:
		return "QUOTA EXHAUSTED"
	case KindRateLimitExceeded:
		return "RATE LIMIT EXCEEDED"
	case KindFailedRequest:
		return "FAILED REQUEST"
	case KindInvalidRequest:
		return "INVALID REQUEST"
	case KindNoResultsFound:
		return "NO RESULTS"
	default:
		return "UNKNOWN"
	}
}

// StatusCode returns the numeric status code logged for this kind.
func (k Kind) StatusCode() int {
	switch k {
	case KindQuotaExhausted:
		return 1
	case KindRateLimitExceeded:
		return 2
	case KindFailedRequest:
		return 3
	case KindInvalidRequest:
		return 4
	case KindNoResultsFound:
		return 5
	default:
		return -1
	}
}

// GeocodeError is a classified provider failure.
type GeocodeError struct {
	Kind     Kind
	Provider string
	Detail   string
}

func (e *GeocodeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind.Status())
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind.Status(), e.Detail)
}

// QuotaExhausted marks a provider's daily or global limit as hit.
func QuotaExhausted(provider string) *GeocodeError {
	return &GeocodeError{Kind: KindQuotaExhausted, Provider: provider}
}

// RateLimitExceeded marks per-second throttling by a provider.
func RateLimitExceeded(provider string) *GeocodeError {
	return &GeocodeError{Kind: KindRateLimitExceeded, Provider: provider}
}

// FailedRequest marks a provider-side failure (5xx or unknown status).
func FailedRequest(provider, detail string) *GeocodeError {
	return &GeocodeError{Kind: KindFailedRequest, Provider: provider, Detail: detail}
}

// InvalidRequest marks a client-side failure (400-class status).
func InvalidRequest(provider, detail string) *GeocodeError {
	return &GeocodeError{Kind: KindInvalidRequest, Provider: provider, Detail: detail}
}

// NoResultsFound marks an empty or unusable success response.
func NoResultsFound(provider string) *GeocodeError {
	return &GeocodeError{Kind: KindNoResultsFound, Provider: provider}
}

// KindOf extracts the failure kind from an error chain. Plain network
// timeouts and resets classify as failed requests so they enter the retry
// path.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var ge *GeocodeError
	if errors.As(err, &ge) {
		return ge.Kind
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindFailedRequest
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return KindFailedRequest
	}

	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return KindFailedRequest
		}
	}

	return KindUnknown
}

// IsKind reports whether the error chain carries the given failure kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// Retryable reports whether the dispatcher should back off and retry.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindFailedRequest || k == KindRateLimitExceeded
}
