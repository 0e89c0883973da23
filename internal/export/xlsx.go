package export

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/studio-carto/prospect-cli/internal/model"
)

// Sheets of the CRM workbook. DATA_IMPORT holds the raw rows and stays
// hidden; ENTREPRISES mirrors it through formulas so users can prune rows
// without losing the source data.
const (
	sheetEntreprises = "ENTREPRISES"
	sheetContacts    = "CONTACTS"
	sheetActions     = "ACTIONS"
	sheetListes      = "VALEURS_LISTE"
	sheetDataImport  = "DATA_IMPORT"
)

// validationRows is the last worksheet row covered by drop-down lists, so
// contacts and actions typed in later still get them.
const validationRows = 5000

const maxColumnWidth = 60

const (
	validationErrTitle = "Entrée non valide"
	validationErrMsg   = "Veuillez sélectionner une valeur dans la liste"
)

var dataImportColumns = []string{
	"SIRET",
	"Nom complet",
	"Enseignes",
	"Activité NAF/APE Etablissement",
	"code_naf_etablissement",
	"Activité NAF/APE Entreprise",
	"code_naf_entreprise",
	"Adresse établissement",
	"Nb salariés établissement",
	"Est siège social",
	"Date de création Entreprise",
	"Chiffre d'Affaires Entreprise",
	"Résultat Net Entreprise",
	"Année Finances Entreprise",
	"SIREN",
}

var entreprisesColumns = []string{
	"SIRET",
	"Nom complet",
	"Enseignes",
	"Activité NAF/APE établissement",
	"Adresse établissement",
	"Recherche LinkedIn",
	"Recherche Google Maps",
	"Nb salariés établissement",
	"Est siège social",
	"Date de création Entreprise",
	"Chiffre d'Affaires Entreprise",
	"Résultat Net Entreprise",
	"Année Finances Entreprise",
	"SIREN",
}

// entrepriseSources maps each ENTREPRISES column to the DATA_IMPORT column
// it mirrors. The two empty entries are the generated search links.
var entrepriseSources = []string{"A", "B", "C", "D", "H", "", "", "I", "J", "K", "L", "M", "N", "O"}

var contactsColumns = []string{
	"Prénom Nom",
	"Entreprise",
	"Poste",
	"Direction",
	"Email",
	"Téléphone",
	"Profil LinkedIn URL",
	"Notes",
}

var actionsColumns = []string{
	"Entreprise",
	"Contact (Prénom Nom)",
	"Type Action",
	"Date Action",
	"Description/Notes",
	"Statut Action",
	"Statut Opportunuité Taf",
}

var listesColumns = []string{
	"CONTACTS_Direction",
	"ACTIONS_TypeAction",
	"ACTIONS_StatutAction",
	"ACTIONS_StatutOpportunuiteTaf",
}

// Reference lists backing the VALEURS_LISTE sheet.
var (
	listeDirections = []string{
		"Dir. Achats",
		"Dir. Commerciale",
		"Dir. Communication",
		"Dir. Financière / Admin&Fin",
		"Dir. Générale",
		"Dir. Juridique",
		"Dir. Marketing",
		"Dir. Production",
		"Dir. R&D",
		"Dir. RH",
	}
	listeTypesAction = []string{
		"Mise en relation",
		"Prise de contact",
		"Visite de l'entreprise",
		"Échange par e-mail",
		"Envoi de CV et lettre de motivation",
		"Entretien téléphonique",
		"Test de compétences",
		"Entretien physique",
		"Relance",
	}
	listeStatutsAction = []string{
		"A faire",
		"En attente",
		"En cours",
		"Terminé",
		"Annulé",
	}
	listeStatutsOpportunite = []string{
		"Ciblée",
		"En veille",
		"Postulée",
		"Abandonnée",
		"Refusée",
		"Offre reçue",
		"Acceptée",
	}
)

// Search links follow the company name in column B, so a manual fix to a
// name updates the links too.
const (
	linkedinFormula = `HYPERLINK("https://www.google.com/search?q="&B%d&"+site%%3Alinkedin.com","Recherche LinkedIn "&B%d)`
	mapsFormula     = `HYPERLINK("https://www.google.com/maps/search/?api=1&query="&B%d&","&E%d,"Recherche Google Maps "&B%d)`
)

// ExportCRMWorkbook writes rows as a ready-to-use prospecting workbook.
func ExportCRMWorkbook(rows []model.ReportRow, outputPath string) error {
	f, err := BuildCRMWorkbook(rows)
	if err != nil {
		return err
	}
	if err := f.Save(outputPath); err != nil {
		return eris.Wrap(err, "crm export: save workbook")
	}
	return nil
}

// WriteCRMWorkbook streams the workbook to w.
func WriteCRMWorkbook(w io.Writer, rows []model.ReportRow) error {
	f, err := BuildCRMWorkbook(rows)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "crm export: write workbook")
	}
	return nil
}

// BuildCRMWorkbook assembles the workbook in memory: raw rows on a hidden
// DATA_IMPORT sheet, an ENTREPRISES view with search links, CONTACTS and
// ACTIONS follow-up sheets wired with drop-down lists, and the VALEURS_LISTE
// sheet backing them.
func BuildCRMWorkbook(rows []model.ReportRow) (*xlsx.File, error) {
	f := xlsx.NewFile()

	entreprises, err := f.AddSheet(sheetEntreprises)
	if err != nil {
		return nil, eris.Wrap(err, "crm export: add sheet")
	}
	contacts, err := f.AddSheet(sheetContacts)
	if err != nil {
		return nil, eris.Wrap(err, "crm export: add sheet")
	}
	actions, err := f.AddSheet(sheetActions)
	if err != nil {
		return nil, eris.Wrap(err, "crm export: add sheet")
	}
	listes, err := f.AddSheet(sheetListes)
	if err != nil {
		return nil, eris.Wrap(err, "crm export: add sheet")
	}
	dataImport, err := f.AddSheet(sheetDataImport)
	if err != nil {
		return nil, eris.Wrap(err, "crm export: add sheet")
	}

	fillDataImport(dataImport, rows)
	fillEntreprises(entreprises, len(rows))
	addHeaderRow(contacts, contactsColumns)
	addHeaderRow(actions, actionsColumns)
	fillListes(listes)

	if err := wireValidations(contacts, actions); err != nil {
		return nil, err
	}

	for _, sheet := range []*xlsx.Sheet{entreprises, contacts, actions, listes} {
		styleHeaderRow(sheet)
		if err := fitColumns(sheet); err != nil {
			return nil, err
		}
	}
	dataImport.Hidden = true

	return f, nil
}

func addHeaderRow(sheet *xlsx.Sheet, names []string) {
	row := sheet.AddRow()
	for _, name := range names {
		row.AddCell().SetString(name)
	}
}

func fillDataImport(sheet *xlsx.Sheet, rows []model.ReportRow) {
	addHeaderRow(sheet, dataImportColumns)
	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.SIRET)
		row.AddCell().SetString(r.CompanyName)
		row.AddCell().SetString(r.Enseignes)
		row.AddCell().SetString(r.NAFLabel)
		row.AddCell().SetString(r.NAFCode)
		row.AddCell().SetString(r.CompanyNAFLabel)
		row.AddCell().SetString(r.CompanyNAFCode)
		row.AddCell().SetString(r.Address)
		row.AddCell().SetString(r.HeadcountLabel)
		row.AddCell().SetBool(r.IsSiege)
		row.AddCell().SetString(r.CreationDate)
		setOptionalFloat(row.AddCell(), r.Revenue)
		setOptionalFloat(row.AddCell(), r.NetIncome)
		row.AddCell().SetString(r.FinanceYear)
		row.AddCell().SetString(r.SIREN)
	}
}

func fillEntreprises(sheet *xlsx.Sheet, count int) {
	addHeaderRow(sheet, entreprisesColumns)
	for i := 0; i < count; i++ {
		row := sheet.AddRow()
		n := i + 2
		for c, src := range entrepriseSources {
			cell := row.AddCell()
			switch {
			case src != "":
				cell.SetFormula(fmt.Sprintf("%s!%s%d", sheetDataImport, src, n))
			case c == 5:
				cell.SetFormula(fmt.Sprintf(linkedinFormula, n, n))
			default:
				cell.SetFormula(fmt.Sprintf(mapsFormula, n, n, n))
			}
		}
	}
}

func fillListes(sheet *xlsx.Sheet) {
	addHeaderRow(sheet, listesColumns)
	lists := [][]string{listeDirections, listeTypesAction, listeStatutsAction, listeStatutsOpportunite}

	depth := 0
	for _, l := range lists {
		if len(l) > depth {
			depth = len(l)
		}
	}
	for i := 0; i < depth; i++ {
		row := sheet.AddRow()
		for _, l := range lists {
			cell := row.AddCell()
			if i < len(l) {
				cell.SetString(l[i])
			}
		}
	}
}

// wireValidations attaches the drop-down rules: companies and contacts
// reference the sheets where they are typed, the rest come from
// VALEURS_LISTE.
func wireValidations(contacts, actions *xlsx.Sheet) error {
	rules := []struct {
		sheet    *xlsx.Sheet
		col      int
		colName  string
		srcSheet string
		srcCol   int
	}{
		{contacts, 1, "B", sheetEntreprises, 1}, // Entreprise
		{contacts, 3, "D", sheetListes, 0},      // Direction
		{actions, 0, "A", sheetEntreprises, 1},  // Entreprise
		{actions, 1, "B", sheetContacts, 0},     // Contact
		{actions, 2, "C", sheetListes, 1},       // Type Action
		{actions, 5, "F", sheetListes, 2},       // Statut Action
		{actions, 6, "G", sheetListes, 3},       // Statut Opportunité
	}

	for _, rule := range rules {
		dv := xlsx.NewXlsxCellDataValidation(true)
		if err := dv.SetInFileList(rule.srcSheet, rule.srcCol, 1, rule.srcCol, validationRows-1); err != nil {
			return eris.Wrapf(err, "crm export: validation %s!%s", rule.sheet.Name, rule.colName)
		}
		title, msg := validationErrTitle, validationErrMsg
		dv.SetError(xlsx.StyleStop, &title, &msg)
		dv.Sqref = fmt.Sprintf("%s2:%s%d", rule.colName, rule.colName, validationRows)
		rule.sheet.Cell(1, rule.col).SetDataValidation(dv)
	}
	return nil
}

// styleHeaderRow applies the blue banner used across the visible sheets.
func styleHeaderRow(sheet *xlsx.Sheet) {
	if len(sheet.Rows) == 0 {
		return
	}
	style := xlsx.NewStyle()
	style.Font = *xlsx.NewFont(11, "Calibri")
	style.Font.Bold = true
	style.Font.Color = "FFFFFFFF"
	style.Fill = *xlsx.NewFill("solid", "FF4472C4", "FF4472C4")
	style.Alignment.Horizontal = "center"
	style.Alignment.Vertical = "center"
	style.ApplyFont = true
	style.ApplyFill = true
	style.ApplyAlignment = true

	for _, cell := range sheet.Rows[0].Cells {
		cell.SetStyle(style)
	}
}

// fitColumns approximates spreadsheet auto-fit: each column tracks its
// longest value. Formula results are unknown at write time and count as a
// link-caption sized cell.
func fitColumns(sheet *xlsx.Sheet) error {
	var widths []float64
	for _, row := range sheet.Rows {
		for c, cell := range row.Cells {
			for len(widths) <= c {
				widths = append(widths, 0)
			}
			n := len([]rune(cell.Value))
			if cell.Formula() != "" {
				n = 25
			}
			if w := float64(n+2) * 1.2; w > widths[c] {
				widths[c] = w
			}
		}
	}

	for c, w := range widths {
		if w == 0 {
			continue
		}
		if w > maxColumnWidth {
			w = maxColumnWidth
		}
		if err := sheet.SetColWidth(c, c, w); err != nil {
			return eris.Wrapf(err, "crm export: column width %d", c)
		}
	}
	return nil
}

func setOptionalFloat(cell *xlsx.Cell, v *float64) {
	if v != nil {
		cell.SetFloat(*v)
	}
}
