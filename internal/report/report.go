// Package report shapes raw company-search results into the rows the CLI
// displays and exports: one row per active establishment in the selected
// headcount brackets, labeled against the NAF reference.
package report

import (
	"errors"
	"strings"

	"github.com/studio-carto/prospect-cli/internal/model"
	"github.com/studio-carto/prospect-cli/internal/naf"
	"github.com/studio-carto/prospect-cli/pkg/recherche"
)

// Build fills the result-dependent part of a SearchReport: rows, counts,
// failed chunks and status. The caller adds the request context (center,
// commune codes, duration).
func Build(res *recherche.Result, bracketCodes []string, labels *naf.Table) *model.SearchReport {
	rep := &model.SearchReport{
		Rows:             Rows(res.Companies, bracketCodes, labels),
		TotalResults:     res.TotalResults,
		FailedChunks:     Failures(res.FailedChunks),
		EstimatedPages:   res.EstimatedPages,
		EstimatedResults: res.EstimatedResults,
	}
	rep.Establishments = len(rep.Rows)
	rep.Companies = countCompanies(rep.Rows)
	rep.Status = statusOf(res, len(rep.Rows))
	return rep
}

// Rows flattens companies into one row per establishment that is
// administratively active and inside the selected brackets. An empty bracket
// selection lets every establishment through. Establishment order follows the
// input, which the client keeps in first-seen order.
func Rows(companies []recherche.Company, bracketCodes []string, labels *naf.Table) []model.ReportRow {
	if labels == nil {
		labels = naf.EmptyTable()
	}
	selected := make(map[string]bool, len(bracketCodes))
	for _, c := range bracketCodes {
		selected[c] = true
	}

	var rows []model.ReportRow
	for _, co := range companies {
		year, revenue, netIncome := latestFinances(co.Finances)
		for _, etab := range co.MatchingEtablissements {
			if etab.EtatAdministratif != "A" {
				continue
			}
			if len(selected) > 0 && !selected[etab.TrancheEffectifSalarie] {
				continue
			}

			row := model.ReportRow{
				SIREN:       co.Siren,
				SIRET:       etab.Siret,
				CompanyName: co.NomComplet,
				LegalName:   co.NomRaisonSociale,
				Address:     etab.Adresse,
				PostalCode:  etab.CodePostal,
				Commune:     etab.LibelleCommune,

				NAFCode:         etab.ActivitePrincipale,
				NAFLabel:        labelFor(etab.ActivitePrincipale, labels),
				CompanyNAFCode:  co.ActivitePrincipale,
				CompanyNAFLabel: labelFor(co.ActivitePrincipale, labels),
				NAFSection:      sectionFor(etab.ActivitePrincipale),

				Headcount:             etab.TrancheEffectifSalarie,
				HeadcountLabel:        naf.BracketLabel(etab.TrancheEffectifSalarie),
				HeadcountYear:         etab.AnneeTrancheEffectifSalarie,
				CompanyHeadcountLabel: naf.BracketLabel(co.TrancheEffectifSalarie),

				CreationDate:       co.DateCreation,
				IsSiege:            etab.EstSiege,
				OpenEstablishments: co.NombreEtablissementsOuverts,
				Enseignes:          strings.Join(etab.ListeEnseignes, ", "),

				FinanceYear: year,
				Revenue:     revenue,
				NetIncome:   netIncome,
			}
			if lat, lon, ok := etab.LatLon(); ok {
				row.Latitude = lat
				row.Longitude = lon
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// Failures converts client chunk failures into coded report notices.
func Failures(failures []recherche.ChunkFailure) []model.ChunkFailure {
	if len(failures) == 0 {
		return nil
	}
	out := make([]model.ChunkFailure, 0, len(failures))
	for _, f := range failures {
		out = append(out, model.ChunkFailure{
			Codes:  f.Codes,
			Code:   classify(f.Err),
			Reason: reasonOf(f.Err),
		})
	}
	return out
}

// classify maps a chunk failure onto the error taxonomy.
func classify(err error) model.ErrorCode {
	var rle *recherche.RateLimitedError
	if errors.As(err, &rle) {
		return model.CodeRateLimitExceeded
	}
	var me *recherche.MalformedResponseError
	if errors.As(err, &me) {
		return model.CodeMalformedResponse
	}
	return model.CodeSearchServiceError
}

func reasonOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func statusOf(res *recherche.Result, rowCount int) model.SearchStatus {
	switch {
	case res.NeedsConfirmation:
		return model.SearchStatusNeedsConfirmation
	case len(res.FailedChunks) > 0:
		return model.SearchStatusPartial
	case rowCount == 0:
		return model.SearchStatusEmpty
	default:
		return model.SearchStatusComplete
	}
}

func countCompanies(rows []model.ReportRow) int {
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		seen[r.SIREN] = true
	}
	return len(seen)
}

// labelFor resolves a NAF code against the reference table, with the
// original's "N/A" placeholder for absent codes.
func labelFor(code string, labels *naf.Table) string {
	if strings.TrimSpace(code) == "" {
		return "N/A"
	}
	return labels.Label(code)
}

func sectionFor(code string) string {
	if letter, ok := naf.SectionForCode(code); ok {
		return letter
	}
	return "N/A"
}

// latestFinances picks the most recent published yearly statement. Keys that
// are not plain years are ignored.
func latestFinances(finances map[string]recherche.YearFinances) (year string, revenue, netIncome *float64) {
	for y := range finances {
		if !isYear(y) {
			continue
		}
		if y > year {
			year = y
		}
	}
	if year == "" {
		return "", nil, nil
	}
	latest := finances[year]
	return year, latest.CA, latest.ResultatNet
}

func isYear(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
