package export

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/studio-carto/prospect-cli/internal/model"
	"github.com/studio-carto/prospect-cli/internal/naf"
)

// csvColumns defines the ordered CSV output columns.
var csvColumns = []string{
	"SIRET",
	"Dénomination - Enseigne",
	"Activité NAF/APE Etablissement",
	"code_naf_etablissement",
	"Activité NAF/APE Entreprise",
	"code_naf_entreprise",
	"Est siège social",
	"Adresse établissement",
	"Nb salariés établissement",
	"Année nb salariés établissement",
	"Code effectif établissement",
	"Effectif Numérique",
	"Raison sociale",
	"Date de création Entreprise",
	"Nb total établissements ouverts",
	"Nb salariés entreprise",
	"Année Finances Entreprise",
	"Chiffre d'Affaires Entreprise",
	"Résultat Net Entreprise",
	"Latitude",
	"Longitude",
	"Section NAF",
	"Color",
	"Radius",
}

// ExportCSV writes shaped rows to a CSV file.
func ExportCSV(rows []model.ReportRow, outputPath string, enc Encoding) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "csv export: create file")
	}
	defer f.Close()

	return WriteCSV(f, rows, enc)
}

// WriteCSV renders rows to w separated by ';', which French spreadsheet
// locales expect.
func WriteCSV(w io.Writer, rows []model.ReportRow, enc Encoding) error {
	out, err := encodedWriter(w, enc)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(out)
	cw.Comma = ';'

	if err := cw.Write(csvColumns); err != nil {
		return eris.Wrap(err, "csv export: write header")
	}

	for _, r := range rows {
		if err := cw.Write(buildCSVRow(r)); err != nil {
			return eris.Wrap(err, "csv export: write row")
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "csv export: flush")
	}
	return nil
}

// buildCSVRow maps a ReportRow onto the CSV column order.
func buildCSVRow(r model.ReportRow) []string {
	lat, lon := "", ""
	if r.HasCoordinates() {
		lat = strconv.FormatFloat(r.Latitude, 'f', -1, 64)
		lon = strconv.FormatFloat(r.Longitude, 'f', -1, 64)
	}

	return []string{
		r.SIRET,                       // SIRET
		r.DisplayName(),               // Dénomination - Enseigne
		r.NAFLabel,                    // Activité NAF/APE Etablissement
		r.NAFCode,                     // code_naf_etablissement
		r.CompanyNAFLabel,             // Activité NAF/APE Entreprise
		r.CompanyNAFCode,              // code_naf_entreprise
		strconv.FormatBool(r.IsSiege), // Est siège social
		r.Address,                     // Adresse établissement
		r.HeadcountLabel,              // Nb salariés établissement
		r.HeadcountYear,               // Année nb salariés établissement
		r.Headcount,                   // Code effectif établissement
		strconv.Itoa(naf.BracketValue(r.Headcount)), // Effectif Numérique
		r.LegalName,                        // Raison sociale
		r.CreationDate,                     // Date de création Entreprise
		strconv.Itoa(r.OpenEstablishments), // Nb total établissements ouverts
		r.CompanyHeadcountLabel,            // Nb salariés entreprise
		r.FinanceYear,                      // Année Finances Entreprise
		formatOptionalFloat(r.Revenue),     // Chiffre d'Affaires Entreprise
		formatOptionalFloat(r.NetIncome),   // Résultat Net Entreprise
		lat,                                // Latitude
		lon,                                // Longitude
		r.NAFSection,                       // Section NAF
		naf.SectionColorHex(r.NAFSection),  // Color
		strconv.Itoa(naf.MarkerRadius(r.Headcount)), // Radius
	}
}
