package weatherapi

import (
	"errors"
	"fmt"

	"github.com/i474232898/weathermap/internal/layers"
)

var (
	// ErrNetwork covers transport failures, timeouts, rate limiting and
	// server-side errors.
	ErrNetwork = errors.New("network failure")

	// ErrNoData is returned when a request succeeded but matched nothing.
	ErrNoData = errors.New("no data available")

	// ErrInvalidTimeRange is returned when a range has start >= end or a
	// frame-set has no sample times.
	ErrInvalidTimeRange = errors.New("invalid time range")

	// ErrUnsupportedLayerType is the registry's error, re-exported for callers
	// that only import this package.
	ErrUnsupportedLayerType = layers.ErrUnsupportedLayerType

	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

const codeNoData = "warn_no_data"

// APIError is an error reported by the API itself, either in the response
// envelope or through a non-2xx status.
type APIError struct {
	Status      int
	Code        string
	Description string

	kind error
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("weather api: status %d", e.Status)
	}
	return fmt.Sprintf("weather api: %s: %s", e.Code, e.Description)
}

// Unwrap exposes the sentinel the error was classified as, if any.
func (e *APIError) Unwrap() error { return e.kind }

func newAPIError(status int, code, description string) *APIError {
	e := &APIError{Status: status, Code: code, Description: description}
	switch {
	case code == codeNoData:
		e.kind = ErrNoData
	case status == 429 || status >= 500:
		e.kind = ErrNetwork
	}
	return e
}
