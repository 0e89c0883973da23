package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/studio-carto/prospect-cli/internal/fetcher"
	"github.com/studio-carto/prospect-cli/internal/naf"
	"github.com/studio-carto/prospect-cli/pkg/anthropic"
)

var nafCmd = &cobra.Command{
	Use:   "naf",
	Short: "Browse the NAF activity nomenclature",
}

var nafSectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "List the 21 NAF sections",
	RunE: func(cmd *cobra.Command, args []string) error {
		table := loadLabelTable()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "LETTER\tLABEL\tCODES")
		for _, s := range naf.Sections() {
			count := "-"
			if table.Len() > 0 {
				count = fmt.Sprintf("%d", len(table.CodesInSection(s.Letter)))
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Letter, s.Label, count)
		}
		return w.Flush()
	},
}

var nafCodesCmd = &cobra.Command{
	Use:   "codes <section>",
	Short: "List the NAF codes of one section with their labels",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		letter := strings.ToUpper(strings.TrimSpace(args[0]))
		label, ok := naf.SectionLabel(letter)
		if !ok {
			return eris.Errorf("unknown NAF section %q", args[0])
		}

		table := loadLabelTable()
		if table.Len() == 0 {
			return eris.Errorf("no NAF label table at %s, run `prospect-cli naf download` first", cfg.NAF.FilePath)
		}

		codes := table.CodesInSection(letter)
		fmt.Fprintf(os.Stderr, "Section %s - %s\n", letter, label)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, code := range codes {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", code, table.Label(code))
		}
		_ = w.Flush()
		fmt.Fprintf(os.Stdout, "\n%d code(s)\n", len(codes))
		return nil
	},
}

var nafDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the NAF code/label table from data.gouv.fr",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			RateLimiters: fetcher.DefaultRateLimiters(),
		})

		table, err := naf.Download(cmd.Context(), f, cfg.NAF.DownloadURL, cfg.NAF.FilePath)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Downloaded %d NAF labels to %s\n", table.Len(), cfg.NAF.FilePath)
		return nil
	},
}

var nafSuggestCmd = &cobra.Command{
	Use:   "suggest <activity description>",
	Short: "Suggest NAF codes and headcount brackets for a plain-language activity",
	Long: `Asks Claude to translate a plain-language description ("les boulangeries
artisanales", "software consulting firms") into NAF sections, codes and
headcount brackets, then keeps only the criteria that exist in the referential.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("suggest"); err != nil {
			return err
		}

		client := anthropic.NewClient(cfg.Anthropic.Key)
		sug, err := anthropic.SuggestNAF(cmd.Context(), client, anthropic.SuggestRequest{
			Model:     cfg.Anthropic.Model,
			MaxTokens: int64(cfg.Anthropic.MaxTokens),
			Query:     strings.Join(args, " "),
		})
		if err != nil {
			return err
		}

		table := loadLabelTable()
		valid := validateSuggestion(sug, table)
		if len(valid.Sections)+len(valid.Codes)+len(valid.HeadcountCodes) == 0 {
			return eris.New("the suggestion contained no criteria present in the referential, try rephrasing")
		}

		formatSuggestion(os.Stdout, valid, table)
		return nil
	},
}

// validateSuggestion keeps only criteria that exist in the referential:
// known section letters, codes present in the label table (or merely
// well-formed when no table is loaded), and valid headcount brackets.
func validateSuggestion(s *anthropic.Suggestion, table *naf.Table) *anthropic.Suggestion {
	out := &anthropic.Suggestion{Summary: s.Summary}

	for _, letter := range s.Sections {
		if _, ok := naf.SectionLabel(letter); ok {
			out.Sections = append(out.Sections, letter)
		}
	}

	for _, code := range s.Codes {
		if table.Len() > 0 {
			if table.Has(code) {
				out.Codes = append(out.Codes, code)
			}
			continue
		}
		if _, ok := naf.SectionForCode(code); ok {
			out.Codes = append(out.Codes, code)
		}
	}

	for _, code := range s.HeadcountCodes {
		if naf.ValidBracket(code) {
			out.HeadcountCodes = append(out.HeadcountCodes, code)
		}
	}

	return out
}

func formatSuggestion(out io.Writer, s *anthropic.Suggestion, table *naf.Table) {
	if s.Summary != "" {
		_, _ = fmt.Fprintln(out, s.Summary)
		_, _ = fmt.Fprintln(out)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, letter := range s.Sections {
		label, _ := naf.SectionLabel(letter)
		_, _ = fmt.Fprintf(w, "section\t%s\t%s\n", letter, label)
	}
	for _, code := range s.Codes {
		_, _ = fmt.Fprintf(w, "naf\t%s\t%s\n", code, table.Label(code))
	}
	for _, code := range s.HeadcountCodes {
		_, _ = fmt.Fprintf(w, "headcount\t%s\t%s\n", code, naf.BracketLabel(code))
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nTry: prospect-cli search --address \"...\"%s\n", suggestionFlags(s))
}

// suggestionFlags renders the suggestion as search flags for copy-paste.
func suggestionFlags(s *anthropic.Suggestion) string {
	var b strings.Builder
	if len(s.Sections) > 0 {
		fmt.Fprintf(&b, " --section %s", strings.Join(s.Sections, ","))
	}
	if len(s.Codes) > 0 {
		fmt.Fprintf(&b, " --naf %s", strings.Join(s.Codes, ","))
	}
	if len(s.HeadcountCodes) > 0 {
		fmt.Fprintf(&b, " --headcount %s", strings.Join(s.HeadcountCodes, ","))
	}
	return b.String()
}

func init() {
	nafCmd.AddCommand(nafSectionsCmd, nafCodesCmd, nafDownloadCmd, nafSuggestCmd)
	rootCmd.AddCommand(nafCmd)
}
