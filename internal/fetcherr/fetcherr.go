// Package fetcherr classifies the failures seen while acquiring market data
// so the fetch pipeline can decide between retrying in place, aborting a
// fallback tier, or advancing to the next one.
//
// The taxonomy: throttling aborts the current tier and triggers a cooldown;
// transient network failures are retried within the attempt budget;
// malformed responses advance without retry (retrying a malformed response
// rarely helps); exhausted data is a normal outcome, not a defect; and
// configuration gaps disable the affected optional feature for the call.
package fetcherr

import (
	"errors"
	"net"
	"strings"
)

// Sentinel errors produced by the provider layer and inspected by the
// pipeline.
var (
	// ErrThrottled signals an explicit upstream rate-limit response (HTTP 429).
	ErrThrottled = errors.New("upstream throttled request")

	// ErrMalformed signals an unexpected response shape or an empty result list.
	ErrMalformed = errors.New("malformed upstream response")

	// ErrNoData signals that a tier produced no bars for the window.
	ErrNoData = errors.New("no data for window")

	// ErrMissingAPIKey signals an optional provider invoked without its key.
	ErrMissingAPIKey = errors.New("secondary provider api key not configured")
)

// Type is the classification of a fetch failure.
type Type string

const (
	TypeThrottling    Type = "throttling"
	TypeNetwork       Type = "network"
	TypeMalformed     Type = "malformed"
	TypeNoData        Type = "no_data"
	TypeConfiguration Type = "configuration"
	TypeUnknown       Type = "unknown"
)

// Classify maps an error to its taxonomy type.
func Classify(err error) Type {
	switch {
	case err == nil:
		return TypeUnknown
	case errors.Is(err, ErrThrottled):
		return TypeThrottling
	case errors.Is(err, ErrMalformed):
		return TypeMalformed
	case errors.Is(err, ErrNoData):
		return TypeNoData
	case errors.Is(err, ErrMissingAPIKey):
		return TypeConfiguration
	case isNetworkError(err) || isTimeoutError(err):
		return TypeNetwork
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") {
		return TypeThrottling
	}
	return TypeUnknown
}

// Retryable reports whether an error of the given type is worth another
// attempt within the same tier. Throttling is handled specially by the
// pipeline (cooldown plus tier abort) and is not retried in place.
func Retryable(t Type) bool {
	switch t {
	case TypeNetwork, TypeUnknown:
		return true
	default:
		return false
	}
}

// isNetworkError checks whether the error is network-related.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"connection aborted",
		"no route to host",
		"host unreachable",
		"network unreachable",
		"dns",
		"resolve",
		"eof",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// isTimeoutError checks whether the error is timeout-related.
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}
