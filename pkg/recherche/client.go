package recherche

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/studio-carto/prospect-cli/internal/resilience"
)

// matchingEtabsLimit asks the API for up to this many matching establishments
// per company. The server default of 10 drops establishments in dense areas.
const matchingEtabsLimit = 100

// RateLimitedError marks a request abandoned because the single retry after a
// 429 was itself answered with 429.
type RateLimitedError struct {
	Err error
}

func (e *RateLimitedError) Error() string {
	return "recherche: rate limited after retry: " + e.Err.Error()
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// MalformedResponseError marks a 200 response whose body could not be decoded.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return "recherche: malformed response: " + e.Err.Error()
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// Client searches the recherche-entreprises company registry.
type Client interface {
	// Search runs a batched location-code search and merges the chunks.
	Search(ctx context.Context, req Request) (*Result, error)
	// SearchNearPoint searches establishments around a coordinate.
	SearchNearPoint(ctx context.Context, req NearPointRequest) (*Result, error)
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

// WithQuota sets the request quota per rolling window. The public API allows
// 7 req/s per IP; the default stays one under that.
func WithQuota(requests int, window time.Duration) Option {
	return func(c *httpClient) {
		c.quota = requests
		c.span = window
	}
}

// WithRetryBackoff sets the minimum wait before the single retry of a failed
// request.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *httpClient) {
		c.retryBackoff = d
	}
}

// WithPageSize sets the per_page parameter. The API caps it at 25.
func WithPageSize(n int) Option {
	return func(c *httpClient) {
		c.perPage = n
	}
}

// WithMaxCodesPerCall sets the largest location-code chunk sent in one
// request. The API caps it at 25 codes.
func WithMaxCodesPerCall(n int) Option {
	return func(c *httpClient) {
		c.maxCodes = n
	}
}

// WithMaxPagesAuto sets the page count beyond which a chunk stops for
// confirmation instead of paginating, unless the request forces a full fetch.
func WithMaxPagesAuto(n int) Option {
	return func(c *httpClient) {
		c.maxPagesAuto = n
	}
}

// WithClock injects the clock driving the rate window and retry backoff.
func WithClock(clock resilience.Clock) Option {
	return func(c *httpClient) {
		c.clock = clock
	}
}

type httpClient struct {
	baseURL      string
	http         *http.Client
	clock        resilience.Clock
	window       *resilience.Window
	quota        int
	span         time.Duration
	retryBackoff time.Duration
	perPage      int
	maxCodes     int
	maxPagesAuto int
}

// NewClient creates a company-search client. Defaults match the public API
// limits: 6 requests per rolling second, 25 results per page, 25 location
// codes per call.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:      "https://recherche-entreprises.api.gouv.fr",
		http:         &http.Client{Timeout: 30 * time.Second},
		clock:        resilience.SystemClock(),
		quota:        6,
		span:         time.Second,
		retryBackoff: 5 * time.Second,
		perPage:      25,
		maxCodes:     25,
		maxPagesAuto: 10,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.window = resilience.NewWindow(c.quota, c.span, c.clock)
	return c
}

func (c *httpClient) Search(ctx context.Context, req Request) (*Result, error) {
	res := &Result{}
	if len(req.LocationCodes) == 0 {
		return res, nil
	}

	kind := req.LocationKind
	if kind == "" {
		kind = LocationCommune
	}

	merged := newMerger()
	chunks := chunkCodes(req.LocationCodes, c.maxCodes)

	for i, chunk := range chunks {
		params := c.searchParams(chunk, kind, req)

		first, err := c.fetchPage(ctx, "/search", params, 1)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "recherche: search canceled")
			}
			zap.L().Warn("recherche: chunk failed on first page",
				zap.Int("chunk", i+1),
				zap.Int("chunks", len(chunks)),
				zap.Int("codes", len(chunk)),
				zap.Error(err))
			res.FailedChunks = append(res.FailedChunks, ChunkFailure{Codes: chunk, Err: err})
			continue
		}

		res.TotalResults += first.TotalResults
		merged.add(first.Results)

		if first.TotalPages > c.maxPagesAuto && !req.ForceFullFetch {
			zap.L().Info("recherche: result set exceeds automatic page threshold",
				zap.Int("total_pages", first.TotalPages),
				zap.Int("max_pages_auto", c.maxPagesAuto),
				zap.Int("total_results", first.TotalResults))
			res.NeedsConfirmation = true
			res.EstimatedPages = first.TotalPages
			res.EstimatedResults = first.TotalResults
			break
		}

		for page := 2; page <= first.TotalPages; page++ {
			resp, err := c.fetchPage(ctx, "/search", params, page)
			if err != nil {
				if ctx.Err() != nil {
					return nil, eris.Wrap(ctx.Err(), "recherche: search canceled")
				}
				zap.L().Warn("recherche: chunk failed mid-pagination",
					zap.Int("chunk", i+1),
					zap.Int("page", page),
					zap.Int("total_pages", first.TotalPages),
					zap.Error(err))
				res.FailedChunks = append(res.FailedChunks, ChunkFailure{Codes: chunk, Err: err})
				break
			}
			merged.add(resp.Results)
		}
	}

	res.Companies = merged.companies()
	return res, nil
}

func (c *httpClient) SearchNearPoint(ctx context.Context, req NearPointRequest) (*Result, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(req.Latitude, 'f', -1, 64))
	params.Set("long", strconv.FormatFloat(req.Longitude, 'f', -1, 64))
	radius := req.RadiusKM
	if radius > 50 {
		radius = 50
	}
	params.Set("radius", strconv.FormatFloat(radius, 'f', -1, 64))
	if len(req.ActivityCodes) > 0 {
		params.Set("activite_principale", joinSorted(req.ActivityCodes))
	}
	if len(req.Sections) > 0 {
		params.Set("section_activite_principale", joinSorted(req.Sections))
	}
	params.Set("per_page", strconv.Itoa(c.perPage))
	params.Set("limite_matching_etablissements", strconv.Itoa(matchingEtabsLimit))

	res := &Result{}
	merged := newMerger()

	first, err := c.fetchPage(ctx, "/near_point", params, 1)
	if err != nil {
		return nil, err
	}
	res.TotalResults = first.TotalResults
	merged.add(first.Results)

	for page := 2; page <= first.TotalPages; page++ {
		resp, err := c.fetchPage(ctx, "/near_point", params, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "recherche: search canceled")
			}
			zap.L().Warn("recherche: near-point search failed mid-pagination",
				zap.Int("page", page),
				zap.Int("total_pages", first.TotalPages),
				zap.Error(err))
			res.FailedChunks = append(res.FailedChunks, ChunkFailure{Err: err})
			break
		}
		merged.add(resp.Results)
	}

	res.Companies = merged.companies()
	return res, nil
}

// searchParams builds the query for one location-code chunk, without the page
// number.
func (c *httpClient) searchParams(codes []string, kind LocationKind, req Request) url.Values {
	params := url.Values{}
	params.Set(string(kind), strings.Join(codes, ","))
	if len(req.ActivityCodes) > 0 {
		params.Set("activite_principale", joinSorted(req.ActivityCodes))
	}
	if len(req.Brackets) > 0 {
		params.Set("tranche_effectif_salarie", joinSorted(req.Brackets))
	}
	params.Set("etat_administratif", "A")
	params.Set("per_page", strconv.Itoa(c.perPage))
	params.Set("limite_matching_etablissements", strconv.Itoa(matchingEtabsLimit))
	return params
}

// fetchPage issues one page request through the rate window, retrying exactly
// once on a transient failure. A 429 on both attempts returns a
// RateLimitedError.
func (c *httpClient) fetchPage(ctx context.Context, path string, params url.Values, page int) (*Response, error) {
	resp, err := c.doPage(ctx, path, params, page)
	if err == nil {
		return resp, nil
	}

	var te *resilience.TransientError
	if !errors.As(err, &te) {
		return nil, err
	}

	wait := c.retryWait(err)
	zap.L().Warn("recherche: transient failure, retrying once",
		zap.Int("page", page),
		zap.Int("status", te.StatusCode),
		zap.Duration("wait", wait),
		zap.Error(err))
	if sleepErr := c.clock.Sleep(ctx, wait); sleepErr != nil {
		return nil, eris.Wrap(sleepErr, "recherche: retry wait")
	}

	resp, retryErr := c.doPage(ctx, path, params, page)
	if retryErr == nil {
		return resp, nil
	}
	if isStatus(err, http.StatusTooManyRequests) && isStatus(retryErr, http.StatusTooManyRequests) {
		return nil, &RateLimitedError{Err: retryErr}
	}
	return nil, retryErr
}

// retryWait picks the backoff before the retry: the longest of the configured
// backoff, one full rate window, and the server's Retry-After when present.
func (c *httpClient) retryWait(err error) time.Duration {
	wait := c.retryBackoff
	if c.span > wait {
		wait = c.span
	}
	var rle *rateLimitHint
	if errors.As(err, &rle) {
		if d, ok := resilience.ParseRetryAfter(rle.retryAfter, c.clock.Now()); ok && d > wait {
			wait = d
		}
	}
	return wait
}

func (c *httpClient) doPage(ctx context.Context, path string, params url.Values, page int) (*Response, error) {
	if err := c.window.Acquire(ctx); err != nil {
		return nil, eris.Wrap(err, "recherche: rate window")
	}

	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("page", strconv.Itoa(page))
	reqURL := c.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "recherche: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "recherche: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := eris.Errorf("recherche: unexpected status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests {
			hint := &rateLimitHint{err: statusErr, retryAfter: resp.Header.Get("Retry-After")}
			return nil, resilience.NewTransientError(hint, resp.StatusCode)
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var envelope Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &MalformedResponseError{Err: eris.Wrap(err, "recherche: decode response")}
	}
	return &envelope, nil
}

// rateLimitHint carries the Retry-After header of a 429 response through the
// error chain to the backoff computation.
type rateLimitHint struct {
	err        error
	retryAfter string
}

func (e *rateLimitHint) Error() string {
	return e.err.Error()
}

func (e *rateLimitHint) Unwrap() error {
	return e.err
}

func isStatus(err error, status int) bool {
	var te *resilience.TransientError
	return errors.As(err, &te) && te.StatusCode == status
}

// chunkCodes partitions codes into slices of at most size elements,
// preserving order.
func chunkCodes(codes []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var chunks [][]string
	for len(codes) > size {
		chunks = append(chunks, codes[:size])
		codes = codes[size:]
	}
	return append(chunks, codes)
}

func joinSorted(values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// merger accumulates companies across pages and chunks, keeping first-seen
// order by SIREN and deduplicating establishments by SIRET.
type merger struct {
	order []string
	seen  map[string]*mergedCompany
}

type mergedCompany struct {
	company Company
	sirets  map[string]bool
}

func newMerger() *merger {
	return &merger{seen: make(map[string]*mergedCompany)}
}

func (m *merger) add(companies []Company) {
	for _, co := range companies {
		mc, ok := m.seen[co.Siren]
		if !ok {
			mc = &mergedCompany{company: co, sirets: make(map[string]bool)}
			mc.company.MatchingEtablissements = nil
			m.seen[co.Siren] = mc
			m.order = append(m.order, co.Siren)
		}
		for _, etab := range co.MatchingEtablissements {
			if mc.sirets[etab.Siret] {
				continue
			}
			mc.sirets[etab.Siret] = true
			mc.company.MatchingEtablissements = append(mc.company.MatchingEtablissements, etab)
		}
	}
}

func (m *merger) companies() []Company {
	out := make([]Company, 0, len(m.order))
	for _, siren := range m.order {
		out = append(out, m.seen[siren].company)
	}
	return out
}
