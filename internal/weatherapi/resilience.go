package weatherapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

// DefaultBackoff is used unless WithBackoff overrides it.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		IsSuccessful: func(err error) bool {
			// Client errors say nothing about the health of the API.
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests
			}
			return err == nil
		},
	})
}

// response is a fully read HTTP response.
type response struct {
	status int
	body   []byte
}

// doRequestWithResilience executes the HTTP request with retries, exponential
// backoff and a circuit breaker. 4xx responses other than 429 are returned
// without retrying; their body is kept since the API explains the failure in
// its envelope.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (response, error) {
	if cfg.Client == nil {
		return response{}, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return response{}, errInvalidConfig
	}

	var attempt int
	for {
		if ctx.Err() != nil {
			return response{}, fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
		}

		req, err := buildRequest()
		if err != nil {
			return response{}, err
		}
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			defer resp.Body.Close()

			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return nil, readErr
			}
			out := response{status: resp.StatusCode, body: body}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return out, newAPIError(resp.StatusCode, "", "")
			}
			return out, nil
		})

		if err == nil {
			resp, ok := result.(response)
			if !ok {
				return response{}, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return response{}, fmt.Errorf("%w: %w: %v", ErrNetwork, errCircuitOpen, err)
		}

		if attempt >= cfg.Backoff.MaxRetries {
			if errors.Is(err, ErrNetwork) {
				return response{}, err
			}
			return response{}, fmt.Errorf("%w: %v", ErrNetwork, err)
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return response{}, fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
		case <-timer.C:
		}

		attempt++
	}
}
