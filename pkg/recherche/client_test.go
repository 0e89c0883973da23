package recherche

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock advances its reading by the full duration of every sleep, so
// rate-window waits and retry backoffs complete instantly.
type testClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

func (c *testClock) sleepDurations() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func company(siren string, sirets ...string) Company {
	co := Company{Siren: siren, NomComplet: "Société " + siren}
	for _, siret := range sirets {
		co.MatchingEtablissements = append(co.MatchingEtablissements, Etablissement{
			Siret:             siret,
			EtatAdministratif: "A",
		})
	}
	return co
}

func writePage(w http.ResponseWriter, results []Company, page, totalPages, totalResults int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{
		Results:      results,
		TotalResults: totalResults,
		Page:         page,
		PerPage:      25,
		TotalPages:   totalPages,
	})
}

func TestSearch_EmptyCodes(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	res, err := client.Search(context.Background(), Request{})

	require.NoError(t, err)
	assert.Empty(t, res.Companies)
	assert.Zero(t, res.TotalResults)
	assert.Equal(t, int32(0), calls.Load(), "no request for an empty code set")
}

func TestSearch_SingleChunkParams(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "69001,69002", q.Get("code_commune"))
		assert.Equal(t, "43.22A,62.01Z", q.Get("activite_principale"))
		assert.Equal(t, "12,21", q.Get("tranche_effectif_salarie"))
		assert.Equal(t, "A", q.Get("etat_administratif"))
		assert.Equal(t, "25", q.Get("per_page"))
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "100", q.Get("limite_matching_etablissements"))

		writePage(w, []Company{company("123456789", "12345678900011")}, 1, 1, 1)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	res, err := client.Search(context.Background(), Request{
		LocationCodes: []string{"69001", "69002"},
		LocationKind:  LocationCommune,
		ActivityCodes: []string{"62.01Z", "43.22A"},
		Brackets:      []string{"21", "12"},
	})

	require.NoError(t, err)
	require.Len(t, res.Companies, 1)
	assert.Equal(t, "123456789", res.Companies[0].Siren)
	assert.Equal(t, 1, res.TotalResults)
	assert.Empty(t, res.FailedChunks)
	assert.False(t, res.NeedsConfirmation)
}

func TestSearch_PostalKind(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "69001", q.Get("code_postal"))
		assert.Empty(t, q.Get("code_commune"))
		writePage(w, nil, 1, 1, 0)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), Request{
		LocationCodes: []string{"69001"},
		LocationKind:  LocationPostal,
	})
	require.NoError(t, err)
}

func TestSearch_PaginatesSequentially(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var pages []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		mu.Lock()
		pages = append(pages, page)
		mu.Unlock()

		writePage(w, []Company{company(fmt.Sprintf("%09d", page), fmt.Sprintf("%09d00011", page))}, page, 3, 3)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithClock(newTestClock()))
	res, err := client.Search(context.Background(), Request{LocationCodes: []string{"69001"}})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pages, "pages fetched in order")
	require.Len(t, res.Companies, 3)
	assert.Equal(t, "000000001", res.Companies[0].Siren)
	assert.Equal(t, "000000003", res.Companies[2].Siren)
}

// perCode serves a fixed dataset keyed by location code, so the same search
// can be replayed with different chunk sizes.
func perCode(dataset map[string][]Company) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var results []Company
		for _, code := range strings.Split(r.URL.Query().Get("code_commune"), ",") {
			results = append(results, dataset[code]...)
		}
		writePage(w, results, 1, 1, len(results))
	}
}

func TestSearch_ChunkSizeDoesNotChangeResults(t *testing.T) {
	t.Parallel()

	dataset := map[string][]Company{
		"69001": {company("111111111", "11111111100011")},
		"69002": {company("111111111", "11111111100022"), company("222222222", "22222222200011")},
		"69003": {company("333333333", "33333333300011")},
	}
	codes := []string{"69001", "69002", "69003"}

	srv := httptest.NewServer(perCode(dataset))
	defer srv.Close()

	single := NewClient(WithBaseURL(srv.URL), WithClock(newTestClock()))
	oneChunk, err := single.Search(context.Background(), Request{LocationCodes: codes})
	require.NoError(t, err)

	split := NewClient(WithBaseURL(srv.URL), WithClock(newTestClock()), WithMaxCodesPerCall(1))
	threeChunks, err := split.Search(context.Background(), Request{LocationCodes: codes})
	require.NoError(t, err)

	assert.Equal(t, oneChunk.Companies, threeChunks.Companies)
	assert.Equal(t, oneChunk.TotalResults, threeChunks.TotalResults)
}

func TestSearch_DedupMergesEstablishmentsAcrossChunks(t *testing.T) {
	t.Parallel()

	dataset := map[string][]Company{
		"code1": {company("111111111", "11111111100011"), company("222222222", "22222222200011")},
		"code2": {company("111111111", "11111111100022"), company("333333333", "33333333300011")},
	}

	srv := httptest.NewServer(perCode(dataset))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithClock(newTestClock()), WithMaxCodesPerCall(1))
	res, err := client.Search(context.Background(), Request{LocationCodes: []string{"code1", "code2"}})

	require.NoError(t, err)
	require.Len(t, res.Companies, 3)

	// First-seen company order, establishments merged in arrival order.
	assert.Equal(t, "111111111", res.Companies[0].Siren)
	require.Len(t, res.Companies[0].MatchingEtablissements, 2)
	assert.Equal(t, "11111111100011", res.Companies[0].MatchingEtablissements[0].Siret)
	assert.Equal(t, "11111111100022", res.Companies[0].MatchingEtablissements[1].Siret)

	assert.Equal(t, "222222222", res.Companies[1].Siren)
	require.Len(t, res.Companies[1].MatchingEtablissements, 1)

	assert.Equal(t, "333333333", res.Companies[2].Siren)
	require.Len(t, res.Companies[2].MatchingEtablissements, 1)
}

func TestSearch_DedupIsIdempotent(t *testing.T) {
	t.Parallel()

	// Both codes return the same company and establishment.
	dup := company("111111111", "11111111100011")
	dataset := map[string][]Company{"a": {dup}, "b": {dup}}

	srv := httptest.NewServer(perCode(dataset))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithClock(newTestClock()), WithMaxCodesPerCall(1))
	res, err := client.Search(context.Background(), Request{LocationCodes: []string{"a", "b"}})

	require.NoError(t, err)
	require.Len(t, res.Companies, 1)
	assert.Len(t, res.Companies[0].MatchingEtablissements, 1)
}

func TestSearch_RateLimitRetriedOnce(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writePage(w, []Company{company("111111111", "11111111100011")}, 1, 1, 1)
	}))
	defer srv.Close()

	clock := newTestClock()
	client := NewClient(WithBaseURL(srv.URL), WithClock(clock))
	res, err := client.Search(context.Background(), Request{LocationCodes: []string{"69001"}})

	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
	require.Len(t, res.Companies, 1)
	assert.Empty(t, res.FailedChunks)

	// Default backoff dominates the one-second window.
	sleeps := clock.sleepDurations()
	require.NotEmpty(t, sleeps)
	assert.Equal(t, 5*time.Second, sleeps[0])
}

func TestSearch_RetryAfterExtendsBackoff(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writePage(w, nil, 1, 1, 0)
	}))
	defer srv.Close()

	clock := newTestClock()
	client := NewClient(WithBaseURL(srv.URL), WithClock(clock))
	_, err := client.Search(context.Background(), Request{LocationCodes: []string{"69001"}})

	require.NoError(t, err)
	sleeps := clock.sleepDurations()
	require.NotEmpty(t, sleeps)
	assert.Equal(t, 7*time.Second, sleeps[0], "server Retry-After above the configured backoff wins")
}

func TestSearch_RetryAfterHTTPDate(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", clock.Now().Add(9*time.Second).UTC().Format(http.TimeFormat))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writePage(w, nil, 1, 1, 0)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithClock(clock))
	_, err := client.Search(context.Background(), Request{LocationCodes: []string{"69001"}})

	require.NoError(t, err)
	sleeps := clock.sleepDurations()
	require.NotEmpty(t, sleeps)
	assert.Equal(t, 9*time.Second, sleeps[0])
}

func TestSearch_SecondRateLimitFailsChunkOnly(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code_commune")
		if code == "dense" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writePage(w, []Company{company(strings.Repeat(code, 3), code+"00011")}, 1, 1, 1)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithClock(newTestClock()), WithMaxCodesPerCall(1))
	res, err := client.Search(context.Background(), Request{
		LocationCodes: []string{"aaa", "dense", "bbb"},
	})

	require.NoError(t, err)
	require.Len(t, res.Companies, 2, "healthy chunks still contribute")
	require.Len(t, res.FailedChunks, 1)
	assert.Equal(t, []string{"dense"}, res.FailedChunks[0].Codes)

	var rle *RateLimitedError
	assert.ErrorAs(t, res.FailedChunks[0].Err, &rle)
}

func TestSearch_ServerErrorFailsChunkAfterRetry(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithClock(newTestClock()))
	res, err := client.Search(context.Background(), Request{LocationCodes: []string{"69001"}})

	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load(), "one retry, then the chunk fails")
	assert.Empty(t, res.Companies)
	require.Len(t, res.FailedChunks, 1)

	var rle *RateLimitedError
	assert.False(t, errors.As(res.FailedChunks[0].Err, &rle), "5xx failure is not a rate-limit failure")
}

func TestSearch_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithClock(newTestClock()))
	res, err := client.Search(context.Background(), Request{LocationCodes: []string{"69001"}})

	require.NoError(t, err)
	assert.Equal(t, int32(1), attempts.Load())
	require.Len(t, res.FailedChunks, 1)
	assert.Contains(t, res.FailedChunks[0].Err.Error(), "400")
}

func TestSearch_MalformedBodyNotRetried(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"results": [{`)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithClock(newTestClock()))
	res, err := client.Search(context.Background(), Request{LocationCodes: []string{"69001"}})

	require.NoError(t, err)
	assert.Equal(t, int32(1), attempts.Load())
	require.Len(t, res.FailedChunks, 1)

	var me *MalformedResponseError
	assert.ErrorAs(t, res.FailedChunks[0].Err, &me)
}

func TestSearch_StopsForConfirmationPastPageThreshold(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writePage(w, []Company{company("111111111", "11111111100011")}, 1, 15, 370)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithClock(newTestClock()))
	res, err := client.Search(context.Background(), Request{LocationCodes: []string{"69001", "69002"}})

	require.NoError(t, err)
	assert.True(t, res.NeedsConfirmation)
	assert.Equal(t, 15, res.EstimatedPages)
	assert.Equal(t, 370, res.EstimatedResults)
	assert.Equal(t, int32(1), calls.Load(), "stops after the first page, remaining chunks untouched")
	require.Len(t, res.Companies, 1, "first page kept for preview")
}

func TestSearch_ForceFullFetchPaginatesPastThreshold(t *testing.T) {
	t.Parallel()

	const totalPages = 12
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		writePage(w, []Company{company(fmt.Sprintf("%09d", page), fmt.Sprintf("%09d00011", page))}, page, totalPages, totalPages)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithClock(newTestClock()))
	res, err := client.Search(context.Background(), Request{
		LocationCodes:  []string{"69001"},
		ForceFullFetch: true,
	})

	require.NoError(t, err)
	assert.False(t, res.NeedsConfirmation)
	assert.Equal(t, int32(totalPages), calls.Load())
	assert.Len(t, res.Companies, totalPages)
}

func TestSearch_NeverExceedsQuotaInAnyWindow(t *testing.T) {
	t.Parallel()

	clock := newTestClock()

	var mu sync.Mutex
	var issues []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		issues = append(issues, clock.Now())
		mu.Unlock()
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		writePage(w, nil, page, 20, 0)
	}))
	defer srv.Close()

	const quota = 6
	span := time.Second
	client := NewClient(WithBaseURL(srv.URL), WithClock(clock), WithQuota(quota, span))
	_, err := client.Search(context.Background(), Request{
		LocationCodes:  []string{"69001"},
		ForceFullFetch: true,
	})
	require.NoError(t, err)
	require.Len(t, issues, 20)

	for i := 0; i+quota < len(issues); i++ {
		gap := issues[i+quota].Sub(issues[i])
		assert.GreaterOrEqual(t, gap, span,
			"issues %d and %d are only %v apart", i, i+quota, gap)
	}
}

func TestSearch_ContextCanceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writePage(w, nil, 1, 1, 0)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(WithBaseURL(srv.URL), WithClock(newTestClock()))
	_, err := client.Search(ctx, Request{LocationCodes: []string{"69001"}})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchNearPoint_ParamsAndPagination(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var pages []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/near_point", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "45.7675", q.Get("lat"))
		assert.Equal(t, "4.8357", q.Get("long"))
		assert.Equal(t, "50", q.Get("radius"), "radius capped at the API maximum")
		assert.Equal(t, "C,F", q.Get("section_activite_principale"))

		page, _ := strconv.Atoi(q.Get("page"))
		mu.Lock()
		pages = append(pages, page)
		mu.Unlock()
		writePage(w, []Company{company(fmt.Sprintf("%09d", page), fmt.Sprintf("%09d00011", page))}, page, 2, 2)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithClock(newTestClock()))
	res, err := client.SearchNearPoint(context.Background(), NearPointRequest{
		Latitude:  45.7675,
		Longitude: 4.8357,
		RadiusKM:  80,
		Sections:  []string{"F", "C"},
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, pages)
	assert.Len(t, res.Companies, 2)
	assert.Equal(t, 2, res.TotalResults)
}

func TestChunkCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		codes []string
		size  int
		want  [][]string
	}{
		{"under size", []string{"a", "b"}, 3, [][]string{{"a", "b"}}},
		{"exact size", []string{"a", "b", "c"}, 3, [][]string{{"a", "b", "c"}}},
		{"split", []string{"a", "b", "c", "d", "e"}, 2, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}},
		{"size one", []string{"a", "b"}, 1, [][]string{{"a"}, {"b"}}},
		{"zero size clamps to one", []string{"a", "b"}, 0, [][]string{{"a"}, {"b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunkCodes(tt.codes, tt.size))
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	c := NewClient()
	hc := c.(*httpClient)
	assert.Equal(t, "https://recherche-entreprises.api.gouv.fr", hc.baseURL)
	assert.Equal(t, 30*time.Second, hc.http.Timeout)
	assert.Equal(t, 6, hc.quota)
	assert.Equal(t, time.Second, hc.span)
	assert.Equal(t, 5*time.Second, hc.retryBackoff)
	assert.Equal(t, 25, hc.perPage)
	assert.Equal(t, 25, hc.maxCodes)
	assert.Equal(t, 10, hc.maxPagesAuto)
	assert.NotNil(t, hc.window)
}
