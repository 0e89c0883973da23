package geo

import (
	"context"
	"errors"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/studio-carto/prospect-cli/internal/commune"
	"github.com/studio-carto/prospect-cli/internal/model"
	"github.com/studio-carto/prospect-cli/pkg/ban"
)

// Geocoder resolves a free-form address to its best match.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*ban.Result, error)
}

// CommuneSource provides the full known commune set.
type CommuneSource interface {
	All(ctx context.Context) ([]commune.Commune, error)
}

// Resolver turns an address and a radius into the set of communes to search.
type Resolver struct {
	geocoder Geocoder
	communes CommuneSource
}

// NewResolver creates a resolver over the given geocoder and commune source.
func NewResolver(geocoder Geocoder, communes CommuneSource) *Resolver {
	return &Resolver{geocoder: geocoder, communes: communes}
}

// Geocode resolves an address to coordinates and the normalized label the
// geocoder matched. Failures carry a model error code: GEOCODE_NOT_FOUND when
// there is no candidate (the caller should ask the user to refine the
// address), GEOCODE_SERVICE_ERROR on transport failure.
func (r *Resolver) Geocode(ctx context.Context, address string) (model.Coordinates, string, error) {
	res, err := r.geocoder.Geocode(ctx, address)
	if err != nil {
		if errors.Is(err, ban.ErrNoMatch) || errors.Is(err, ban.ErrEmptyQuery) {
			return model.Coordinates{}, "", model.Coded(model.CodeGeocodeNotFound, err)
		}
		return model.Coordinates{}, "", model.Coded(model.CodeGeocodeServiceError, err)
	}

	zap.L().Debug("address geocoded",
		zap.String("label", res.Label),
		zap.Float64("latitude", res.Latitude),
		zap.Float64("longitude", res.Longitude),
		zap.Float64("score", res.Score))

	return model.Coordinates{Latitude: res.Latitude, Longitude: res.Longitude}, res.Label, nil
}

// CommunesInRadius returns every commune whose centroid lies within radiusKM
// of center, sorted by INSEE code. The boundary is inclusive: a commune at
// exactly radiusKM is part of the result.
func (r *Resolver) CommunesInRadius(ctx context.Context, center model.Coordinates, radiusKM float64) ([]commune.Commune, error) {
	if radiusKM < 0 {
		return nil, eris.Errorf("geo: negative radius %.3f", radiusKM)
	}

	all, err := r.communes.All(ctx)
	if err != nil {
		return nil, model.Coded(model.CodeCommuneFetchError, err)
	}

	var in []commune.Commune
	for _, c := range all {
		d := Haversine(center.Latitude, center.Longitude, c.Latitude, c.Longitude)
		if d <= radiusKM {
			in = append(in, c)
		}
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Code < in[j].Code })

	zap.L().Debug("communes in radius",
		zap.Float64("radius_km", radiusKM),
		zap.Int("scanned", len(all)),
		zap.Int("matched", len(in)))

	return in, nil
}

// InseeCodes extracts the INSEE codes of the given communes, in order.
func InseeCodes(communes []commune.Commune) []string {
	codes := make([]string, 0, len(communes))
	for _, c := range communes {
		codes = append(codes, c.Code)
	}
	return codes
}

// PostalCodes returns the deduplicated union of the communes' postal codes,
// sorted. A commune can carry several postal codes and a postal code can span
// several communes.
func PostalCodes(communes []commune.Commune) []string {
	seen := make(map[string]struct{})
	var codes []string
	for _, c := range communes {
		for _, cp := range c.CodesPostaux {
			if _, ok := seen[cp]; ok {
				continue
			}
			seen[cp] = struct{}{}
			codes = append(codes, cp)
		}
	}
	sort.Strings(codes)
	return codes
}
