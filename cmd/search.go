package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/studio-carto/prospect-cli/internal/config"
	"github.com/studio-carto/prospect-cli/internal/export"
	"github.com/studio-carto/prospect-cli/internal/model"
	"github.com/studio-carto/prospect-cli/pkg/notion"
	"github.com/studio-carto/prospect-cli/pkg/salesforce"
)

var (
	searchAddress     string
	searchRadius      float64
	searchSections    []string
	searchNAF         []string
	searchGroups      []string
	searchBrackets    []string
	searchPostal      bool
	searchNear        bool
	searchForce       bool
	searchProfile     string
	searchSaveProfile string
	searchLimit       int
	searchJSON        bool

	searchCSV     bool
	searchXLSX    bool
	searchGeoJSON bool
	searchMap     bool
	searchSHP     bool
	searchOut     string

	searchNotion     bool
	searchNotionDB   string
	searchSalesforce bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search companies around an address",
	Long: `Geocodes the address, finds every commune within the radius and fetches the
matching establishments from recherche-entreprises.api.gouv.fr. Results can be
displayed, exported (CSV, XLSX, GeoJSON, Leaflet map, shapefile) and pushed to
Notion or Salesforce.`,
	Example: `  prospect-cli search --address "Place Bellecour, Lyon" --radius 10 --section C --csv
  prospect-cli search --profile bakeries --xlsx --map
  prospect-cli search --address "Rue de la Paix, Paris" --naf 62.01Z --headcount-group PME_S,PME_M`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, err := buildSearchRequest(cmd)
		if err != nil {
			return err
		}

		if searchSaveProfile != "" {
			if err := saveProfile(searchSaveProfile, req); err != nil {
				return err
			}
		}

		env, err := initSearchEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := env.Pipeline.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "search")
		}

		if searchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}

		printReport(rep)

		if rep.Status == model.SearchStatusNeedsConfirmation || len(rep.Rows) == 0 {
			return nil
		}

		if err := runExports(rep); err != nil {
			return err
		}
		return runPushes(ctx, rep)
	},
}

// buildSearchRequest assembles the request from flags, with profile values
// filling in every flag the user did not set explicitly.
func buildSearchRequest(cmd *cobra.Command) (model.SearchRequest, error) {
	req := model.SearchRequest{
		Address:         searchAddress,
		RadiusKM:        searchRadius,
		Sections:        searchSections,
		ActivityCodes:   searchNAF,
		HeadcountGroups: searchGroups,
		HeadcountCodes:  searchBrackets,
		NearPoint:       searchNear,
		ForceFullFetch:  searchForce,
	}
	if searchPostal {
		req.CodeKind = model.CodeKindPostal
	}

	if searchProfile != "" {
		p, err := loadProfile(searchProfile)
		if err != nil {
			return model.SearchRequest{}, err
		}
		req = applyProfile(req, p, cmd.Flags().Changed)
	}

	if strings.TrimSpace(req.Address) == "" {
		return model.SearchRequest{}, eris.New("an address is required: pass --address or --profile")
	}
	if req.RadiusKM <= 0 {
		return model.SearchRequest{}, eris.New("--radius must be greater than zero")
	}
	if req.NearPoint && req.RadiusKM > 50 {
		return model.SearchRequest{}, eris.New("--near supports a radius of at most 50 km")
	}
	return req, nil
}

// applyProfile overlays profile values onto the request for every flag the
// user left at its default. Explicit flags always win.
func applyProfile(req model.SearchRequest, p config.Profile, changed func(string) bool) model.SearchRequest {
	if !changed("address") && p.Address != "" {
		req.Address = p.Address
	}
	if !changed("radius") && p.RadiusKM > 0 {
		req.RadiusKM = p.RadiusKM
	}
	if !changed("section") && len(p.Sections) > 0 {
		req.Sections = p.Sections
	}
	if !changed("naf") && len(p.Codes) > 0 {
		req.ActivityCodes = p.Codes
	}
	if !changed("headcount-group") && len(p.Groups) > 0 {
		req.HeadcountGroups = p.Groups
	}
	if !changed("headcount") && len(p.Headcount) > 0 {
		req.HeadcountCodes = p.Headcount
	}
	if !changed("postal") && p.CodeKind == string(model.CodeKindPostal) {
		req.CodeKind = model.CodeKindPostal
	}
	if !changed("near") && p.NearPoint {
		req.NearPoint = true
	}
	if !changed("force") && p.ForceFullFetch {
		req.ForceFullFetch = true
	}
	return req
}

func printReport(rep *model.SearchReport) {
	switch rep.Status {
	case model.SearchStatusEmpty:
		fmt.Fprintln(os.Stderr, "No establishments found.")
		return
	case model.SearchStatusNeedsConfirmation:
		fmt.Fprintf(os.Stderr, "About %d results across %d pages match; rerun with --force to fetch everything.\n",
			rep.EstimatedResults, rep.EstimatedPages)
		return
	}

	formatReportTable(os.Stdout, rep, searchLimit)

	if rep.Partial() {
		fmt.Fprintf(os.Stderr, "Warning: %d location chunk(s) failed, results are incomplete.\n", len(rep.FailedChunks))
	}
}

func formatReportTable(out io.Writer, rep *model.SearchReport, limit int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SIRET\tNAME\tNAF\tHEADCOUNT\tCOMMUNE\tADDRESS")

	shown := 0
	for _, row := range rep.Rows {
		if limit > 0 && shown >= limit {
			break
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.SIRET,
			truncate(row.DisplayName(), 32),
			row.NAFCode,
			truncate(row.HeadcountLabel, 24),
			truncate(row.Commune, 20),
			truncate(row.Address, 40),
		)
		shown++
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\n%d establishment(s), %d company(ies), %d commune(s), %s",
		rep.Establishments, rep.Companies, len(rep.CommuneCodes), rep.Duration.Round(time.Millisecond))
	if limit > 0 && len(rep.Rows) > limit {
		_, _ = fmt.Fprintf(out, ", showing first %d", limit)
	}
	_, _ = fmt.Fprintln(out)
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// runExports writes every requested format under one timestamped base name.
// The writers touch separate files, so they fan out concurrently.
func runExports(rep *model.SearchReport) error {
	if !searchCSV && !searchXLSX && !searchGeoJSON && !searchMap && !searchSHP {
		return nil
	}

	dir := searchOut
	if dir == "" {
		dir = cfg.Export.Dir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "create export dir %s", dir)
	}

	base := filepath.Join(dir, "prospect_"+time.Now().Format("20060102_150405"))

	var g errgroup.Group
	add := func(path string, write func(string) error) {
		g.Go(func() error {
			if err := write(path); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
			return nil
		})
	}

	if searchCSV {
		add(base+".csv", func(p string) error {
			return export.ExportCSV(rep.Rows, p, export.Encoding(cfg.Export.Encoding))
		})
	}
	if searchXLSX {
		add(base+".xlsx", func(p string) error { return export.ExportCRMWorkbook(rep.Rows, p) })
	}
	if searchGeoJSON {
		add(base+".geojson", func(p string) error { return export.ExportGeoJSON(rep.Rows, p) })
	}
	if searchMap {
		add(base+".html", func(p string) error { return export.ExportHTMLMap(rep, p) })
	}
	if searchSHP {
		add(base+".shp", func(p string) error { return export.ExportShapefile(rep.Rows, p) })
	}
	return g.Wait()
}

func runPushes(ctx context.Context, rep *model.SearchReport) error {
	if searchNotion || searchNotionDB != "" {
		if err := pushNotion(ctx, rep); err != nil {
			return err
		}
	}
	if searchSalesforce {
		if err := pushSalesforce(ctx, rep); err != nil {
			return err
		}
	}
	return nil
}

func pushNotion(ctx context.Context, rep *model.SearchReport) error {
	dbID := searchNotionDB
	if dbID == "" {
		if err := cfg.Validate("notion"); err != nil {
			return err
		}
		dbID = cfg.Notion.LeadDB
	} else if cfg.Notion.Token == "" {
		return eris.New("notion.token is required (PROSPECT_NOTION_TOKEN)")
	}

	client := notion.NewClient(cfg.Notion.Token)
	created, err := notion.PushLeads(ctx, client, dbID, notionLeads(rep.Rows))
	if err != nil {
		return eris.Wrap(err, "notion push")
	}
	fmt.Fprintf(os.Stderr, "Pushed %d lead(s) to Notion.\n", created)
	return nil
}

func pushSalesforce(ctx context.Context, rep *model.SearchReport) error {
	client, err := initSalesforce()
	if err != nil {
		return err
	}

	created, err := salesforce.PushLeads(ctx, client, salesforceLeads(rep.Rows))
	if err != nil {
		return eris.Wrap(err, "salesforce push")
	}
	fmt.Fprintf(os.Stderr, "Pushed %d lead(s) to Salesforce.\n", created)
	return nil
}

// annuaireURL links a company to its public annuaire-entreprises page.
func annuaireURL(siren string) string {
	if siren == "" {
		return ""
	}
	return "https://annuaire-entreprises.data.gouv.fr/entreprise/" + siren
}

// rowActivity renders the establishment activity as "code - label".
func rowActivity(row model.ReportRow) string {
	if row.NAFLabel == "" {
		return row.NAFCode
	}
	return row.NAFCode + " - " + row.NAFLabel
}

func notionLeads(rows []model.ReportRow) []notion.Lead {
	leads := make([]notion.Lead, 0, len(rows))
	for _, row := range rows {
		leads = append(leads, notion.Lead{
			Name:      row.DisplayName(),
			SIREN:     row.SIREN,
			SIRET:     row.SIRET,
			Activity:  rowActivity(row),
			Address:   row.Address,
			Headcount: row.HeadcountLabel,
			URL:       annuaireURL(row.SIREN),
		})
	}
	return leads
}

func salesforceLeads(rows []model.ReportRow) []salesforce.Lead {
	leads := make([]salesforce.Lead, 0, len(rows))
	for _, row := range rows {
		leads = append(leads, salesforce.Lead{
			Name:      row.DisplayName(),
			SIREN:     row.SIREN,
			SIRET:     row.SIRET,
			Activity:  rowActivity(row),
			Address:   row.Address,
			Headcount: row.HeadcountLabel,
			URL:       annuaireURL(row.SIREN),
		})
	}
	return leads
}

func init() {
	searchCmd.Flags().StringVar(&searchAddress, "address", "", "reference address to search around")
	searchCmd.Flags().Float64Var(&searchRadius, "radius", 5, "search radius in kilometers")
	searchCmd.Flags().StringSliceVar(&searchSections, "section", nil, "NAF section letters to include (e.g. C,J)")
	searchCmd.Flags().StringSliceVar(&searchNAF, "naf", nil, "specific NAF codes to include (e.g. 62.01Z)")
	searchCmd.Flags().StringSliceVar(&searchGroups, "headcount-group", nil, "headcount groups (INDIV, TPE, PME_S, PME_M, GE, NN)")
	searchCmd.Flags().StringSliceVar(&searchBrackets, "headcount", nil, "INSEE headcount bracket codes (e.g. 11,12)")
	searchCmd.Flags().BoolVar(&searchPostal, "postal", false, "filter by postal codes instead of INSEE commune codes")
	searchCmd.Flags().BoolVar(&searchNear, "near", false, "use the registry's own distance search instead of commune expansion (max 50 km)")
	searchCmd.Flags().BoolVar(&searchForce, "force", false, "fetch every page even past the automatic threshold")
	searchCmd.Flags().StringVar(&searchProfile, "profile", "", "load search parameters from a saved profile")
	searchCmd.Flags().StringVar(&searchSaveProfile, "save-profile", "", "save these search parameters under a name")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 50, "max rows to display, 0 shows all")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print the full report as JSON")

	searchCmd.Flags().BoolVar(&searchCSV, "csv", false, "export rows as semicolon-separated CSV")
	searchCmd.Flags().BoolVar(&searchXLSX, "xlsx", false, "export the CRM workbook (results, summary, CRM import sheets)")
	searchCmd.Flags().BoolVar(&searchGeoJSON, "geojson", false, "export a GeoJSON FeatureCollection")
	searchCmd.Flags().BoolVar(&searchMap, "map", false, "export a self-contained Leaflet map")
	searchCmd.Flags().BoolVar(&searchSHP, "shp", false, "export a point shapefile")
	searchCmd.Flags().StringVar(&searchOut, "out", "", "export directory (default export.dir from config)")

	searchCmd.Flags().BoolVar(&searchNotion, "notion", false, "push results to the configured Notion lead database")
	searchCmd.Flags().StringVar(&searchNotionDB, "notion-db", "", "push results to this Notion database ID")
	searchCmd.Flags().BoolVar(&searchSalesforce, "salesforce", false, "push results to Salesforce as Lead records")

	rootCmd.AddCommand(searchCmd)
}
