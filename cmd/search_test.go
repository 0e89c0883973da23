package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studio-carto/prospect-cli/internal/config"
	"github.com/studio-carto/prospect-cli/internal/model"
)

// resetSearchFlags puts every search flag variable back to its default so
// tests do not leak state into each other.
func resetSearchFlags() {
	searchAddress = ""
	searchRadius = 5
	searchSections = nil
	searchNAF = nil
	searchGroups = nil
	searchBrackets = nil
	searchPostal = false
	searchNear = false
	searchForce = false
	searchProfile = ""
	searchSaveProfile = ""
}

func TestBuildSearchRequest(t *testing.T) {
	resetSearchFlags()
	searchAddress = "Place Bellecour, Lyon"
	searchRadius = 10
	searchSections = []string{"C"}
	searchNAF = []string{"62.01Z"}
	searchGroups = []string{"PME_S"}
	searchBrackets = []string{"11"}
	searchForce = true

	req, err := buildSearchRequest(&cobra.Command{})
	require.NoError(t, err)

	assert.Equal(t, "Place Bellecour, Lyon", req.Address)
	assert.Equal(t, 10.0, req.RadiusKM)
	assert.Equal(t, []string{"C"}, req.Sections)
	assert.Equal(t, []string{"62.01Z"}, req.ActivityCodes)
	assert.Equal(t, []string{"PME_S"}, req.HeadcountGroups)
	assert.Equal(t, []string{"11"}, req.HeadcountCodes)
	assert.True(t, req.ForceFullFetch)
	assert.Empty(t, req.CodeKind, "commune codes are the default")
}

func TestBuildSearchRequest_Postal(t *testing.T) {
	resetSearchFlags()
	searchAddress = "Lyon"
	searchPostal = true

	req, err := buildSearchRequest(&cobra.Command{})
	require.NoError(t, err)
	assert.Equal(t, model.CodeKindPostal, req.CodeKind)
}

func TestBuildSearchRequest_NearPoint(t *testing.T) {
	resetSearchFlags()
	searchAddress = "Lyon"
	searchNear = true

	req, err := buildSearchRequest(&cobra.Command{})
	require.NoError(t, err)
	assert.True(t, req.NearPoint)
}

func TestBuildSearchRequest_NearPointRadiusCap(t *testing.T) {
	resetSearchFlags()
	searchAddress = "Lyon"
	searchNear = true
	searchRadius = 60

	_, err := buildSearchRequest(&cobra.Command{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 50 km")
}

func TestBuildSearchRequest_MissingAddress(t *testing.T) {
	resetSearchFlags()

	_, err := buildSearchRequest(&cobra.Command{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address is required")
}

func TestBuildSearchRequest_BadRadius(t *testing.T) {
	resetSearchFlags()
	searchAddress = "Lyon"
	searchRadius = 0

	_, err := buildSearchRequest(&cobra.Command{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "radius")
}

func TestApplyProfile_FillsUnsetFlags(t *testing.T) {
	req := model.SearchRequest{Address: "", RadiusKM: 5}
	p := config.Profile{
		Address:        "Rue de la Paix, Paris",
		RadiusKM:       15,
		Sections:       []string{"J"},
		Codes:          []string{"62.01Z"},
		Groups:         []string{"TPE"},
		Headcount:      []string{"11", "12"},
		CodeKind:       "postal",
		ForceFullFetch: true,
	}

	got := applyProfile(req, p, func(string) bool { return false })

	assert.Equal(t, "Rue de la Paix, Paris", got.Address)
	assert.Equal(t, 15.0, got.RadiusKM)
	assert.Equal(t, []string{"J"}, got.Sections)
	assert.Equal(t, []string{"62.01Z"}, got.ActivityCodes)
	assert.Equal(t, []string{"TPE"}, got.HeadcountGroups)
	assert.Equal(t, []string{"11", "12"}, got.HeadcountCodes)
	assert.Equal(t, model.CodeKindPostal, got.CodeKind)
	assert.True(t, got.ForceFullFetch)
}

func TestApplyProfile_ExplicitFlagsWin(t *testing.T) {
	req := model.SearchRequest{Address: "Lyon", RadiusKM: 3, Sections: []string{"C"}}
	p := config.Profile{Address: "Paris", RadiusKM: 15, Sections: []string{"J"}}

	changed := func(name string) bool {
		return name == "address" || name == "radius" || name == "section"
	}
	got := applyProfile(req, p, changed)

	assert.Equal(t, "Lyon", got.Address)
	assert.Equal(t, 3.0, got.RadiusKM)
	assert.Equal(t, []string{"C"}, got.Sections)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly-10", truncate("exactly-10", 10))
	assert.Equal(t, "a long ...", truncate("a long string over", 10))
	// Accented runes are never split mid-byte.
	assert.Equal(t, "Bo...", truncate("Boulangerie pâtisserie", 5))
}

func TestFormatReportTable(t *testing.T) {
	rep := &model.SearchReport{
		Rows: []model.ReportRow{
			{
				SIRET:          "12345678900015",
				CompanyName:    "BOULANGERIE DUPONT",
				NAFCode:        "10.71C",
				HeadcountLabel: "10 à 19 salariés",
				Commune:        "Lyon",
				Address:        "10 Rue de la République 69001 Lyon",
			},
			{
				SIRET:       "98765432100012",
				CompanyName: "MENUISERIE MARTIN",
				NAFCode:     "16.23Z",
				Commune:     "Villeurbanne",
			},
		},
		Companies:      2,
		Establishments: 2,
		CommuneCodes:   []string{"69123", "69266"},
		Duration:       1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	formatReportTable(&buf, rep, 0)
	out := buf.String()

	assert.Contains(t, out, "SIRET")
	assert.Contains(t, out, "12345678900015")
	assert.Contains(t, out, "BOULANGERIE DUPONT")
	assert.Contains(t, out, "MENUISERIE MARTIN")
	assert.Contains(t, out, "2 establishment(s), 2 company(ies), 2 commune(s)")
	assert.NotContains(t, out, "showing first")
}

func TestFormatReportTable_Limit(t *testing.T) {
	rep := &model.SearchReport{
		Rows: []model.ReportRow{
			{SIRET: "11111111100001", CompanyName: "A"},
			{SIRET: "22222222200002", CompanyName: "B"},
			{SIRET: "33333333300003", CompanyName: "C"},
		},
		Companies:      3,
		Establishments: 3,
	}

	var buf bytes.Buffer
	formatReportTable(&buf, rep, 2)
	out := buf.String()

	assert.Contains(t, out, "11111111100001")
	assert.Contains(t, out, "22222222200002")
	assert.NotContains(t, out, "33333333300003")
	assert.Contains(t, out, "showing first 2")
}

func TestAnnuaireURL(t *testing.T) {
	assert.Equal(t, "https://annuaire-entreprises.data.gouv.fr/entreprise/123456789", annuaireURL("123456789"))
	assert.Empty(t, annuaireURL(""))
}

func TestRowActivity(t *testing.T) {
	assert.Equal(t, "10.71C - Boulangerie", rowActivity(model.ReportRow{NAFCode: "10.71C", NAFLabel: "Boulangerie"}))
	assert.Equal(t, "10.71C", rowActivity(model.ReportRow{NAFCode: "10.71C"}))
}

func TestLeadBuilders(t *testing.T) {
	rows := []model.ReportRow{
		{
			SIREN:          "123456789",
			SIRET:          "12345678900015",
			CompanyName:    "BOULANGERIE DUPONT",
			NAFCode:        "10.71C",
			NAFLabel:       "Boulangerie et boulangerie-pâtisserie",
			Address:        "10 Rue de la République 69001 Lyon",
			HeadcountLabel: "10 à 19 salariés",
		},
	}

	nl := notionLeads(rows)
	require.Len(t, nl, 1)
	assert.Equal(t, "BOULANGERIE DUPONT", nl[0].Name)
	assert.Equal(t, "12345678900015", nl[0].SIRET)
	assert.Equal(t, "10.71C - Boulangerie et boulangerie-pâtisserie", nl[0].Activity)
	assert.True(t, strings.HasSuffix(nl[0].URL, "/123456789"))

	sl := salesforceLeads(rows)
	require.Len(t, sl, 1)
	assert.Equal(t, "BOULANGERIE DUPONT", sl[0].Name)
	assert.Equal(t, "10 à 19 salariés", sl[0].Headcount)
	assert.Equal(t, nl[0].URL, sl[0].URL)
}
