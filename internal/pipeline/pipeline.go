// Package pipeline orchestrates one company search end to end: geocode the
// address, select the communes inside the radius, query the company registry
// and shape the result, recording a run whatever the outcome.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/studio-carto/prospect-cli/internal/commune"
	"github.com/studio-carto/prospect-cli/internal/geo"
	"github.com/studio-carto/prospect-cli/internal/model"
	"github.com/studio-carto/prospect-cli/internal/naf"
	"github.com/studio-carto/prospect-cli/internal/report"
	"github.com/studio-carto/prospect-cli/internal/store"
	"github.com/studio-carto/prospect-cli/pkg/recherche"
)

// Pipeline wires the search stages together.
type Pipeline struct {
	store    store.Store
	resolver *geo.Resolver
	search   recherche.Client
	labels   *naf.Table
}

// New creates a Pipeline with all dependencies.
func New(st store.Store, resolver *geo.Resolver, searchClient recherche.Client, labels *naf.Table) *Pipeline {
	return &Pipeline{
		store:    st,
		resolver: resolver,
		search:   searchClient,
		labels:   labels,
	}
}

// Run executes a single search. The run record is created up front and
// finished with the outcome summary even when a stage fails; the returned
// report carries partial data when some chunks failed and others did not.
func (p *Pipeline) Run(ctx context.Context, req model.SearchRequest) (*model.SearchReport, error) {
	log := zap.L().With(
		zap.String("address", req.Address),
		zap.Float64("radius_km", req.RadiusKM))
	log.Info("search: starting")

	run, err := p.store.CreateRun(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	start := time.Now()
	rep, err := p.execute(ctx, req, log)
	elapsed := time.Since(start)
	if rep != nil {
		rep.Duration = elapsed
	}

	if finErr := p.store.FinishRun(ctx, run.ID, model.RunStatusForReport(rep), summarize(rep, err, elapsed)); finErr != nil {
		log.Warn("search: failed to record run outcome", zap.Error(finErr))
	}

	if err != nil {
		log.Error("search: failed",
			zap.String("run_id", run.ID),
			zap.String("code", string(model.CodeOf(err))),
			zap.Error(err))
		return nil, err
	}

	log.Info("search: finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(rep.Status)),
		zap.Int("companies", rep.Companies),
		zap.Int("establishments", rep.Establishments),
		zap.Int("failed_chunks", len(rep.FailedChunks)),
		zap.Duration("duration", elapsed))
	return rep, nil
}

// execute runs the stages and builds the report. The caller owns run
// bookkeeping and the report duration.
func (p *Pipeline) execute(ctx context.Context, req model.SearchRequest, log *zap.Logger) (*model.SearchReport, error) {
	activityCodes, err := naf.ExpandSelection(req.Sections, req.ActivityCodes, p.labels)
	if err != nil {
		return nil, err
	}

	groups := req.HeadcountGroups
	if len(groups) == 0 && len(req.HeadcountCodes) == 0 {
		groups = naf.DefaultGroups()
	}
	brackets, err := naf.ExpandGroups(groups, req.HeadcountCodes)
	if err != nil {
		return nil, err
	}

	center, label, err := p.resolver.Geocode(ctx, req.Address)
	if err != nil {
		return nil, err
	}
	log.Info("search: address resolved",
		zap.String("label", label),
		zap.Float64("latitude", center.Latitude),
		zap.Float64("longitude", center.Longitude))

	if req.NearPoint {
		return p.executeNearPoint(ctx, req, center, label, activityCodes, brackets, log)
	}

	communes, err := p.resolver.CommunesInRadius(ctx, center, req.RadiusKM)
	if err != nil {
		return nil, err
	}
	codes, kind := locationCodes(communes, req.CodeKind)
	log.Info("search: communes selected",
		zap.Int("communes", len(communes)),
		zap.Int("location_codes", len(codes)),
		zap.String("code_kind", string(kind)))

	res, err := p.search.Search(ctx, recherche.Request{
		LocationCodes:  codes,
		LocationKind:   kind,
		ActivityCodes:  activityCodes,
		Brackets:       brackets,
		ForceFullFetch: req.ForceFullFetch,
	})
	if err != nil {
		return nil, err
	}

	rep := report.Build(res, brackets, p.labels)
	rep.Request = req
	rep.Center = center
	rep.CenterLabel = label
	rep.CommuneCodes = geo.InseeCodes(communes)
	return rep, nil
}

// executeNearPoint delegates the radius to the registry's own distance
// search. No commune expansion happens, so the report carries no commune
// codes; headcount filtering still applies when the rows are shaped.
func (p *Pipeline) executeNearPoint(ctx context.Context, req model.SearchRequest, center model.Coordinates, label string, activityCodes, brackets []string, log *zap.Logger) (*model.SearchReport, error) {
	log.Info("search: querying near point", zap.Int("activity_codes", len(activityCodes)))

	res, err := p.search.SearchNearPoint(ctx, recherche.NearPointRequest{
		Latitude:      center.Latitude,
		Longitude:     center.Longitude,
		RadiusKM:      req.RadiusKM,
		ActivityCodes: activityCodes,
	})
	if err != nil {
		return nil, err
	}

	rep := report.Build(res, brackets, p.labels)
	rep.Request = req
	rep.Center = center
	rep.CenterLabel = label
	return rep, nil
}

// locationCodes picks the code set matching the requested kind. Postal codes
// cover slightly different ground than INSEE codes: one postal code can span
// several communes and vice versa.
func locationCodes(communes []commune.Commune, kind model.CodeKind) ([]string, recherche.LocationKind) {
	if kind == model.CodeKindPostal {
		return geo.PostalCodes(communes), recherche.LocationPostal
	}
	return geo.InseeCodes(communes), recherche.LocationCommune
}

// summarize condenses a search outcome into the persisted run summary.
func summarize(rep *model.SearchReport, err error, elapsed time.Duration) *model.RunSummary {
	s := &model.RunSummary{DurationMS: elapsed.Milliseconds()}
	if err != nil {
		s.SearchStatus = model.SearchStatusFailed
		s.Error = err.Error()
		return s
	}
	s.Companies = rep.Companies
	s.Establishments = rep.Establishments
	s.CommuneCount = len(rep.CommuneCodes)
	s.FailedChunks = len(rep.FailedChunks)
	s.SearchStatus = rep.Status
	return s
}
