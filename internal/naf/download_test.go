package naf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studio-carto/prospect-cli/internal/fetcher"
)

func newDownloadFetcher() fetcher.Fetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  "test-agent",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Code,Libellé\n62.01Z,Programmation informatique\n10.71C,Boulangerie et boulangerie-pâtisserie\n"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "ref", "NAF.csv")
	table, err := Download(context.Background(), newDownloadFetcher(), srv.URL+"/naf.csv", path)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, "Programmation informatique", table.Label("62.01Z"))

	// The file is installed and loadable on its own.
	reloaded, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
}

func TestDownload_UnusableContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "NAF.csv")
	_, err := Download(context.Background(), newDownloadFetcher(), srv.URL+"/naf.csv", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unusable")

	// Nothing was installed and no temp file leaked.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestDownload_KeepsPreviousTableOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "NAF.csv")
	require.NoError(t, os.WriteFile(path, []byte("Code,Libellé\n62.01Z,Programmation informatique\n"), 0o644))

	_, err := Download(context.Background(), newDownloadFetcher(), srv.URL+"/naf.csv", path)
	require.Error(t, err)

	table, loadErr := LoadTable(path)
	require.NoError(t, loadErr)
	assert.Equal(t, 1, table.Len())
}
