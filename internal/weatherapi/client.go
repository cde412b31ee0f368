// Package weatherapi is a typed client for the weather data API: station
// observations, forecasts, and the point, polygon and tile data behind the
// weather map layers.
package weatherapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/i474232898/weathermap/internal/observability"
)

const (
	DefaultBaseURL = "https://api.aerisapi.com"
	DefaultTileURL = "https://maps.aerisapi.com"
)

// Client talks to the weather API. It is safe for concurrent use.
type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	tileURL      string

	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
	cache    *Cache[json.RawMessage]
	resolver PlaceResolver
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures a Client.
type Option func(c *Client)

// WithBaseURL points the client at a different API host, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTileURL sets the host used for tile URL templates.
func WithTileURL(u string) Option {
	return func(c *Client) { c.tileURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpCfg.Client = hc }
}

// WithBackoff overrides the retry policy.
func WithBackoff(b BackoffConfig) Option {
	return func(c *Client) { c.httpCfg.Backoff = b }
}

// WithCacheTTL caches successful responses for ttl, keyed by request URL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cache = NewCache[json.RawMessage](ttl) }
}

// WithResolver resolves named places before requests are issued.
func WithResolver(r PlaceResolver) Option {
	return func(c *Client) { c.resolver = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides time.Now, used for "latest" tile frames and range
// defaults.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client authenticated with the given application credentials.
func New(clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      DefaultBaseURL,
		tileURL:      DefaultTileURL,
		httpCfg: HTTPClientConfig{
			Client:  &http.Client{Timeout: 10 * time.Second},
			Backoff: DefaultBackoff,
		},
		circuit: newCircuitBreaker("weatherapi"),
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("weathermap/weatherapi"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success bool `json:"success"`
	Error   *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
	Response json.RawMessage `json:"response"`
}

// get issues GET {base}/{endpoint}[/{action}] and returns the raw "response"
// member of the envelope.
func (c *Client) get(ctx context.Context, endpoint, action string, values url.Values) (json.RawMessage, error) {
	path := c.baseURL + "/" + strings.Trim(endpoint, "/")
	if action != "" {
		path += "/" + url.PathEscape(action)
	}
	cacheKey := path + "?" + values.Encode()
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached, nil
	}

	ctx, span := c.tracer.Start(ctx, "weatherapi "+endpoint,
		trace.WithAttributes(attribute.String("weatherapi.endpoint", endpoint), attribute.String("weatherapi.action", action)))
	defer span.End()

	authed := url.Values{}
	for k, v := range values {
		authed[k] = v
	}
	authed.Set("client_id", c.clientID)
	authed.Set("client_secret", c.clientSecret)

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, path+"?"+authed.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	start := time.Now()
	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		observability.ObserveAPIRequest(endpoint, "network_error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("weatherapi: request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, err
	}

	raw, err := decodeEnvelope(resp)
	outcome := "ok"
	if err != nil {
		outcome = "api_error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	observability.ObserveAPIRequest(endpoint, outcome, time.Since(start))
	if err != nil {
		return nil, err
	}

	c.cache.Set(cacheKey, raw)
	return raw, nil
}

func decodeEnvelope(resp response) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		if resp.status < 200 || resp.status >= 300 {
			return nil, newAPIError(resp.status, "", "")
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if env.Error != nil && (!env.Success || env.Error.Code == codeNoData) {
		return nil, newAPIError(resp.status, env.Error.Code, env.Error.Description)
	}
	if !env.Success || resp.status < 200 || resp.status >= 300 {
		return nil, newAPIError(resp.status, "", "")
	}
	if isEmptyResponse(env.Response) {
		return nil, newAPIError(resp.status, codeNoData, "empty response")
	}
	return env.Response, nil
}

func isEmptyResponse(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null" || s == "[]" || s == "{}"
}

// resolvePlace runs the configured resolver. Resolution failures fall back to
// querying by name, which the API also accepts.
func (c *Client) resolvePlace(ctx context.Context, p Place) (Place, error) {
	if p.IsZero() {
		return p, fmt.Errorf("place is required")
	}
	if c.resolver == nil {
		return p, nil
	}
	resolved, err := c.resolver.Resolve(ctx, p)
	if err != nil {
		c.logger.Info("weatherapi: place resolution failed; querying by name", zap.String("place", p.Query()), zap.Error(err))
		return p, nil
	}
	return resolved, nil
}

// decodeList decodes a response that may be either a single object or an
// array of objects.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var out []T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return out, nil
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return []T{one}, nil
}
