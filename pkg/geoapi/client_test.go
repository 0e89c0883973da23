package geoapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCommunes_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/communes", r.URL.Path)
		assert.Equal(t, "code,codesPostaux,nom,type,centre,mairie", r.URL.Query().Get("fields"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{
				"code": "69123",
				"nom": "Lyon",
				"codesPostaux": ["69001", "69002"],
				"type": "commune-actuelle",
				"centre": {"type": "Point", "coordinates": [4.8351, 45.758]},
				"mairie": {"type": "Point", "coordinates": [4.8357, 45.7675]}
			},
			{
				"code": "69266",
				"nom": "Villeurbanne",
				"codesPostaux": ["69100"],
				"type": "commune-actuelle",
				"centre": {"type": "Point", "coordinates": [4.8869, 45.7676]},
				"mairie": null
			}
		]`)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	communes, err := client.ListCommunes(context.Background())

	require.NoError(t, err)
	require.Len(t, communes, 2)
	assert.Equal(t, "69123", communes[0].Code)
	assert.Equal(t, "Lyon", communes[0].Nom)
	assert.Equal(t, []string{"69001", "69002"}, communes[0].CodesPostaux)
	assert.Nil(t, communes[1].Mairie)
}

func TestListCommunes_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "boom")
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.ListCommunes(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestListCommunes_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{not json`)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.ListCommunes(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestListCommunes_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.ListCommunes(ctx)
	require.Error(t, err)
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	c := NewClient()
	hc := c.(*httpClient)
	assert.Equal(t, "https://geo.api.gouv.fr", hc.baseURL)
	assert.Equal(t, 60*time.Second, hc.http.Timeout)
	assert.NotNil(t, hc.limiter)
}

func TestCommuneLatLon(t *testing.T) {
	t.Parallel()

	withBoth := Commune{
		Centre: &GeoPoint{Type: "Point", Coordinates: []float64{4.8351, 45.758}},
		Mairie: &GeoPoint{Type: "Point", Coordinates: []float64{4.8357, 45.7675}},
	}
	lat, lon, ok := withBoth.LatLon()
	assert.True(t, ok)
	assert.Equal(t, 45.7675, lat, "mairie preferred over centre")
	assert.Equal(t, 4.8357, lon)

	centreOnly := Commune{
		Centre: &GeoPoint{Type: "Point", Coordinates: []float64{4.8869, 45.7676}},
	}
	lat, lon, ok = centreOnly.LatLon()
	assert.True(t, ok)
	assert.Equal(t, 45.7676, lat)
	assert.Equal(t, 4.8869, lon)

	malformed := Commune{
		Centre: &GeoPoint{Type: "Point", Coordinates: []float64{4.9}},
	}
	_, _, ok = malformed.LatLon()
	assert.False(t, ok)

	_, _, ok = Commune{}.LatLon()
	assert.False(t, ok)
}
