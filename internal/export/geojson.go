package export

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/studio-carto/prospect-cli/internal/model"
	"github.com/studio-carto/prospect-cli/internal/naf"
)

// FeatureCollection converts geolocated rows into GeoJSON point features.
// Rows the API did not geolocate are skipped.
func FeatureCollection(rows []model.ReportRow) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, r := range rows {
		if !r.HasCoordinates() {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       r.SIRET,
			Geometry: geom.NewPointFlat(geom.XY, []float64{r.Longitude, r.Latitude}),
			Properties: map[string]interface{}{
				"siren":         r.SIREN,
				"siret":         r.SIRET,
				"name":          r.DisplayName(),
				"address":       r.Address,
				"naf_code":      r.NAFCode,
				"naf_label":     r.NAFLabel,
				"naf_section":   r.NAFSection,
				"headcount":     r.HeadcountLabel,
				"siege":         r.IsSiege,
				"color":         naf.SectionColorHex(r.NAFSection),
				"marker_radius": naf.MarkerRadius(r.Headcount),
			},
		})
	}
	return fc
}

// WriteGeoJSON renders rows as a GeoJSON FeatureCollection.
func WriteGeoJSON(w io.Writer, rows []model.ReportRow) error {
	if err := json.NewEncoder(w).Encode(FeatureCollection(rows)); err != nil {
		return eris.Wrap(err, "geojson export: encode")
	}
	return nil
}

// ExportGeoJSON writes rows as a GeoJSON file.
func ExportGeoJSON(rows []model.ReportRow, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "geojson export: create file")
	}
	defer f.Close()

	return WriteGeoJSON(f, rows)
}
