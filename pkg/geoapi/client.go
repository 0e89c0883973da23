// Package geoapi provides a client for the geo.api.gouv.fr reference API,
// which publishes the official list of French communes.
package geoapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// communeFields is the field list requested for each commune. Centre is the
// geometric centroid, mairie the town hall location when known.
const communeFields = "code,codesPostaux,nom,type,centre,mairie"

// Client lists French communes from the national reference API.
type Client interface {
	// ListCommunes downloads the full commune referential (about 35k entries).
	ListCommunes(ctx context.Context) ([]Commune, error)
}

// GeoPoint is a GeoJSON point as returned by the API: coordinates are
// [longitude, latitude].
type GeoPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Commune is one entry of the commune referential.
type Commune struct {
	Code         string    `json:"code"`
	Nom          string    `json:"nom"`
	CodesPostaux []string  `json:"codesPostaux"`
	Type         string    `json:"type"`
	Centre       *GeoPoint `json:"centre"`
	Mairie       *GeoPoint `json:"mairie"`
}

// LatLon returns the commune's reference coordinates, preferring the town
// hall over the geometric centroid. ok is false when neither point is usable.
func (c Commune) LatLon() (lat, lon float64, ok bool) {
	for _, p := range []*GeoPoint{c.Mairie, c.Centre} {
		if p != nil && p.Type == "Point" && len(p.Coordinates) >= 2 {
			return p.Coordinates[1], p.Coordinates[0], true
		}
	}
	return 0, 0, false
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

// WithRateLimit sets the requests-per-second limit for API calls.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a commune referential client. The default timeout is
// generous because the full listing is a multi-megabyte download.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://geo.api.gouv.fr",
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(10, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) ListCommunes(ctx context.Context) ([]Commune, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geoapi: rate limit")
	}

	reqURL := c.baseURL + "/communes?" + url.Values{"fields": {communeFields}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geoapi: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geoapi: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.Errorf("geoapi: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var communes []Commune
	if err := json.NewDecoder(resp.Body).Decode(&communes); err != nil {
		return nil, eris.Wrap(err, "geoapi: decode response")
	}
	return communes, nil
}
