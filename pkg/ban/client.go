// Package ban provides a client for the Base Adresse Nationale geocoder at
// api-adresse.data.gouv.fr.
package ban

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/studio-carto/prospect-cli/internal/resilience"
)

// ErrEmptyQuery is returned when the address to geocode is blank.
var ErrEmptyQuery = eris.New("ban: empty address")

// ErrNoMatch is returned when the geocoder finds no result for the address.
var ErrNoMatch = eris.New("ban: no match for address")

// Client geocodes free-form French addresses.
type Client interface {
	// Geocode resolves an address to its best match.
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result is the best match for a geocoded address.
type Result struct {
	Latitude  float64
	Longitude float64
	// Label is the normalized address as the geocoder spells it.
	Label string
	// Score is the match confidence in [0, 1].
	Score    float64
	Type     string
	City     string
	Postcode string
}

// featureCollection is the GeoJSON response envelope.
type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
	Properties struct {
		Label    string  `json:"label"`
		Score    float64 `json:"score"`
		Type     string  `json:"type"`
		City     string  `json:"city"`
		Postcode string  `json:"postcode"`
	} `json:"properties"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the requests-per-second limit. The public BAN service
// allows 50 req/s per IP.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetryConfig overrides the retry policy for transient failures.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a BAN geocoding client.
func NewClient(opts ...Option) Client {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("ban", "geocode")

	c := &httpClient{
		baseURL: "https://api-adresse.data.gouv.fr",
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(50, 1),
		retry:   retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Geocode(ctx context.Context, address string) (*Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrEmptyQuery
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "ban: rate limit")
	}

	params := url.Values{"q": {address}, "limit": {"1"}}
	reqURL := c.baseURL + "/search?" + params.Encode()

	fc, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*featureCollection, error) {
		return c.fetch(ctx, reqURL)
	})
	if err != nil {
		return nil, err
	}

	if len(fc.Features) == 0 {
		return nil, ErrNoMatch
	}
	f := fc.Features[0]
	if len(f.Geometry.Coordinates) < 2 {
		return nil, eris.Errorf("ban: malformed geometry for %q", address)
	}

	return &Result{
		Latitude:  f.Geometry.Coordinates[1],
		Longitude: f.Geometry.Coordinates[0],
		Label:     f.Properties.Label,
		Score:     f.Properties.Score,
		Type:      f.Properties.Type,
		City:      f.Properties.City,
		Postcode:  f.Properties.Postcode,
	}, nil
}

func (c *httpClient) fetch(ctx context.Context, reqURL string) (*featureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ban: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "ban: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := eris.Errorf("ban: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "ban: decode response")
	}
	return &fc, nil
}
