package export

import (
	"encoding/json"
	"html/template"
	"io"
	"os"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/studio-carto/prospect-cli/internal/model"
	"github.com/studio-carto/prospect-cli/internal/naf"
)

// mapPage feeds the Leaflet template.
type mapPage struct {
	Title       string
	CenterLabel string
	Lat         float64
	Lon         float64
	RadiusKM    float64
	Zoom        int
	Count       int
	GeoJSON     template.JS
	Legend      []legendEntry
}

type legendEntry struct {
	Section string
	Label   string
	Color   string
}

// ExportHTMLMap writes a self-contained Leaflet page showing the results
// around the searched address. Tiles and the Leaflet assets load from public
// CDNs; everything else is embedded.
func ExportHTMLMap(report *model.SearchReport, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "map export: create file")
	}
	defer f.Close()

	return WriteHTMLMap(f, report)
}

// WriteHTMLMap renders the Leaflet page to w.
func WriteHTMLMap(w io.Writer, report *model.SearchReport) error {
	raw, err := json.Marshal(FeatureCollection(report.Rows))
	if err != nil {
		return eris.Wrap(err, "map export: encode features")
	}

	title := "Prospection"
	if report.CenterLabel != "" {
		title = "Prospection - " + report.CenterLabel
	}
	page := mapPage{
		Title:       title,
		CenterLabel: report.CenterLabel,
		Lat:         report.Center.Latitude,
		Lon:         report.Center.Longitude,
		RadiusKM:    report.Request.RadiusKM,
		Zoom:        zoomForRadius(report.Request.RadiusKM),
		Count:       len(report.Rows),
		GeoJSON:     template.JS(raw),
		Legend:      buildLegend(report.Rows),
	}

	if err := mapTemplate.Execute(w, page); err != nil {
		return eris.Wrap(err, "map export: render template")
	}
	return nil
}

// zoomForRadius picks an initial zoom level that keeps the whole search
// circle in view.
func zoomForRadius(radiusKM float64) int {
	switch {
	case radiusKM <= 1:
		return 14
	case radiusKM <= 5:
		return 12
	case radiusKM <= 10:
		return 11
	case radiusKM <= 25:
		return 10
	default:
		return 9
	}
}

// buildLegend lists the activity sections present in the rows, in section
// letter order.
func buildLegend(rows []model.ReportRow) []legendEntry {
	seen := make(map[string]bool)
	for _, r := range rows {
		if r.NAFSection != "" && r.NAFSection != "N/A" {
			seen[r.NAFSection] = true
		}
	}

	letters := make([]string, 0, len(seen))
	for letter := range seen {
		letters = append(letters, letter)
	}
	sort.Strings(letters)

	legend := make([]legendEntry, 0, len(letters))
	for _, letter := range letters {
		label, ok := naf.SectionLabel(letter)
		if !ok {
			label = letter
		}
		legend = append(legend, legendEntry{
			Section: letter,
			Label:   label,
			Color:   naf.SectionColorHex(letter),
		})
	}
	return legend
}

var mapTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8"/>
<meta name="viewport" content="width=device-width, initial-scale=1"/>
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css"/>
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>
html, body { margin: 0; height: 100%; }
#map { height: 100%; }
.panel {
  position: absolute; z-index: 1000; background: rgba(255,255,255,0.92);
  border-radius: 6px; box-shadow: 0 1px 4px rgba(0,0,0,0.3);
  font: 13px/1.5 system-ui, sans-serif; padding: 8px 12px;
}
#info { top: 10px; right: 10px; }
#legend { bottom: 20px; right: 10px; max-height: 50%; overflow-y: auto; }
.swatch {
  display: inline-block; width: 12px; height: 12px; margin-right: 6px;
  border-radius: 50%; vertical-align: -1px;
}
</style>
</head>
<body>
<div id="map"></div>
<div id="info" class="panel"><b>{{.CenterLabel}}</b><br/>{{.Count}} établissements dans un rayon de {{.RadiusKM}} km</div>
<div id="legend" class="panel"><b>Sections NAF</b>
{{range .Legend}}<div><span class="swatch" style="background: {{.Color}}"></span>{{.Section}} - {{.Label}}</div>
{{end}}</div>
<script>
var map = L.map('map').setView([{{.Lat}}, {{.Lon}}], {{.Zoom}});
L.tileLayer('https://tile.openstreetmap.org/{z}/{x}/{y}.png', {
  maxZoom: 19,
  attribution: '&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a>'
}).addTo(map);

L.circle([{{.Lat}}, {{.Lon}}], {
  radius: {{.RadiusKM}} * 1000,
  color: '#4472c4',
  weight: 1,
  fillOpacity: 0.05
}).addTo(map);
L.marker([{{.Lat}}, {{.Lon}}]).addTo(map).bindPopup({{.CenterLabel}});

var data = {{.GeoJSON}};
L.geoJSON(data, {
  pointToLayer: function (feature, latlng) {
    var p = feature.properties;
    return L.circleMarker(latlng, {
      radius: Math.max(5, Math.min(16, Math.sqrt(p.marker_radius))),
      color: p.color,
      weight: 1,
      fillColor: p.color,
      fillOpacity: 0.7
    });
  },
  onEachFeature: function (feature, layer) {
    var p = feature.properties;
    layer.bindPopup(
      '<b>' + p.name + '</b><br/>' +
      'SIRET ' + p.siret + '<br/>' +
      p.naf_label + '<br/>' +
      p.headcount + '<br/>' +
      p.address
    );
  }
}).addTo(map);
</script>
</body>
</html>
`))
