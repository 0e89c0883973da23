package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "prospect.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api-adresse.data.gouv.fr", cfg.BAN.BaseURL)
	assert.Equal(t, 15, cfg.BAN.TimeoutSecs)
	assert.Equal(t, 50, cfg.BAN.RequestsPerSecond)
	assert.Equal(t, "https://geo.api.gouv.fr", cfg.GeoAPI.BaseURL)
	assert.Equal(t, 60, cfg.GeoAPI.TimeoutSecs)
	assert.Equal(t, "https://recherche-entreprises.api.gouv.fr", cfg.Search.BaseURL)
	assert.Equal(t, 25, cfg.Search.PerPage)
	assert.Equal(t, 30, cfg.Search.TimeoutSecs)
	assert.Equal(t, 6, cfg.Search.RequestsPerWindow)
	assert.Equal(t, 1, cfg.Search.WindowSecs)
	assert.Equal(t, 5, cfg.Search.RetryBackoffSecs)
	assert.Equal(t, 25, cfg.Search.MaxCodesPerCall)
	assert.Equal(t, 10, cfg.Search.MaxPagesAuto)
	assert.Equal(t, "communes_cache.json", cfg.Commune.CachePath)
	assert.Equal(t, "NAF.csv", cfg.NAF.FilePath)
	assert.Equal(t, "exports", cfg.Export.Dir)
	assert.Equal(t, "utf-8", cfg.Export.Encoding)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, 1024, cfg.Anthropic.MaxTokens)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.Equal(t, 200, cfg.Salesforce.BatchSize)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/prospect
log:
  level: debug
  format: console
server:
  port: 9090
search:
  requests_per_window: 3
  max_codes_per_call: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/prospect", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Search.RequestsPerWindow)
	assert.Equal(t, 10, cfg.Search.MaxCodesPerCall)
	// Defaults still apply for unset values
	assert.Equal(t, 25, cfg.Search.PerPage)
	assert.Equal(t, 10, cfg.Search.MaxPagesAuto)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("PROSPECT_STORE_DRIVER", "postgres")
	t.Setenv("PROSPECT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("PROSPECT_SEARCH_REQUESTS_PER_WINDOW", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Search.RequestsPerWindow)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with bounds-satisfying values for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Search.RequestsPerWindow = 6
	cfg.Search.WindowSecs = 1
	cfg.Search.PerPage = 25
	cfg.Search.MaxCodesPerCall = 25
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateSearch_OK(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("search"))
}

func TestValidateSearch_Bounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Search.RequestsPerWindow = 0
	err := cfg.Validate("search")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "requests_per_window must be between 1 and 50")

	cfg.Search.RequestsPerWindow = 6
	cfg.Search.PerPage = 50
	err = cfg.Validate("search")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "per_page must be between 1 and 25")

	cfg.Search.PerPage = 25
	cfg.Search.MaxCodesPerCall = 0
	err = cfg.Validate("search")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_codes_per_call must be between 1 and 25")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateSuggest_MissingKey(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("suggest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("suggest"))
}

func TestValidateNotion_MissingFields(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("notion")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "notion.token is required")
	assert.Contains(t, err.Error(), "notion.lead_db is required")
}

func TestValidateSalesforce_MissingFields(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("salesforce")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce.client_id is required")
	assert.Contains(t, err.Error(), "salesforce.username is required")
	assert.Contains(t, err.Error(), "salesforce.key_path is required")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
