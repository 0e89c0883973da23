package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/studio-carto/prospect-cli/internal/commune"
	"github.com/studio-carto/prospect-cli/internal/geo"
	"github.com/studio-carto/prospect-cli/internal/naf"
	"github.com/studio-carto/prospect-cli/internal/pipeline"
	"github.com/studio-carto/prospect-cli/internal/store"
	"github.com/studio-carto/prospect-cli/pkg/ban"
	"github.com/studio-carto/prospect-cli/pkg/geoapi"
	"github.com/studio-carto/prospect-cli/pkg/recherche"
)

// searchEnv bundles the wired pipeline with the store it persists runs to.
type searchEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

func (e *searchEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func buildBANClient() ban.Client {
	opts := []ban.Option{
		ban.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.BAN.TimeoutSecs) * time.Second}),
		ban.WithRateLimit(float64(cfg.BAN.RequestsPerSecond)),
	}
	if cfg.BAN.BaseURL != "" {
		opts = append(opts, ban.WithBaseURL(cfg.BAN.BaseURL))
	}
	return ban.NewClient(opts...)
}

func buildGeoAPIClient() geoapi.Client {
	opts := []geoapi.Option{
		geoapi.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.GeoAPI.TimeoutSecs) * time.Second}),
	}
	if cfg.GeoAPI.BaseURL != "" {
		opts = append(opts, geoapi.WithBaseURL(cfg.GeoAPI.BaseURL))
	}
	return geoapi.NewClient(opts...)
}

func buildSearchClient() recherche.Client {
	opts := []recherche.Option{
		recherche.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Search.TimeoutSecs) * time.Second}),
		recherche.WithQuota(cfg.Search.RequestsPerWindow, time.Duration(cfg.Search.WindowSecs)*time.Second),
		recherche.WithRetryBackoff(time.Duration(cfg.Search.RetryBackoffSecs) * time.Second),
		recherche.WithPageSize(cfg.Search.PerPage),
		recherche.WithMaxCodesPerCall(cfg.Search.MaxCodesPerCall),
		recherche.WithMaxPagesAuto(cfg.Search.MaxPagesAuto),
	}
	if cfg.Search.BaseURL != "" {
		opts = append(opts, recherche.WithBaseURL(cfg.Search.BaseURL))
	}
	return recherche.NewClient(opts...)
}

// buildResolver wires the geocoder and the commune cache into a resolver.
func buildResolver() (*geo.Resolver, *commune.Cache) {
	cache := commune.NewCache(cfg.Commune.CachePath, buildGeoAPIClient())
	return geo.NewResolver(buildBANClient(), cache), cache
}

// loadLabelTable loads the NAF label table, degrading to an empty table when
// the file is missing. Activity labels are then blank but searches still work.
func loadLabelTable() *naf.Table {
	table, err := naf.LoadTable(cfg.NAF.FilePath)
	if err != nil {
		zap.L().Warn("NAF label table not loaded, labels will be empty",
			zap.String("path", cfg.NAF.FilePath),
			zap.Error(err))
		return naf.EmptyTable()
	}
	return table
}

// initSearchEnv validates search config and wires store, geocoder, commune
// cache, search client and label table into a ready pipeline.
func initSearchEnv(ctx context.Context) (*searchEnv, error) {
	if err := cfg.Validate("search"); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	resolver, _ := buildResolver()

	return &searchEnv{
		Store:    st,
		Pipeline: pipeline.New(st, resolver, buildSearchClient(), loadLabelTable()),
	}, nil
}
