package export

import (
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/studio-carto/prospect-cli/internal/model"
)

// shapefileFields is the DBF schema. DBF field names are capped at ten
// ASCII characters.
var shapefileFields = []shp.Field{
	shp.StringField("SIREN", 9),
	shp.StringField("SIRET", 14),
	shp.StringField("NOM", 100),
	shp.StringField("NAF", 6),
	shp.StringField("SECTION", 1),
	shp.StringField("EFFECTIF", 40),
	shp.StringField("ADRESSE", 120),
}

// ExportShapefile writes geolocated rows as an ESRI point shapefile. The
// .shx and .dbf sidecars share outputPath's base name, and a .cpg sidecar
// declares UTF-8 so GIS tools read accented names correctly.
func ExportShapefile(rows []model.ReportRow, outputPath string) error {
	w, err := shp.Create(outputPath, shp.POINT)
	if err != nil {
		return eris.Wrap(err, "shapefile export: create")
	}
	defer w.Close() //nolint:errcheck

	w.SetFields(shapefileFields) //nolint:errcheck

	n := 0
	for _, r := range rows {
		if !r.HasCoordinates() {
			continue
		}
		w.Write(&shp.Point{X: r.Longitude, Y: r.Latitude}) //nolint:errcheck
		attrs := []string{
			r.SIREN,
			r.SIRET,
			r.DisplayName(),
			r.NAFCode,
			r.NAFSection,
			r.HeadcountLabel,
			r.Address,
		}
		for i, v := range attrs {
			w.WriteAttribute(n, i, v) //nolint:errcheck
		}
		n++
	}

	cpgPath := strings.TrimSuffix(outputPath, ".shp") + ".cpg"
	if err := os.WriteFile(cpgPath, []byte("UTF-8"), 0o644); err != nil {
		return eris.Wrap(err, "shapefile export: write cpg")
	}
	return nil
}
