package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/studio-carto/prospect-cli/internal/commune"
	"github.com/studio-carto/prospect-cli/internal/geo"
)

var (
	communesAddress   string
	communesKM        float64
	communesPostal    bool
	communesCodesOnly bool
)

var communesCmd = &cobra.Command{
	Use:   "communes",
	Short: "Inspect the commune referential",
}

var communesRadiusCmd = &cobra.Command{
	Use:   "radius",
	Short: "List communes whose centroid falls within a radius of an address",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if communesKM <= 0 {
			return eris.New("--km must be greater than zero")
		}

		resolver, _ := buildResolver()
		center, label, err := resolver.Geocode(ctx, communesAddress)
		if err != nil {
			return err
		}

		list, err := resolver.CommunesInRadius(ctx, center, communesKM)
		if err != nil {
			return err
		}

		if communesCodesOnly {
			codes := geo.InseeCodes(list)
			if communesPostal {
				codes = geo.PostalCodes(list)
			}
			for _, code := range codes {
				fmt.Println(code)
			}
			return nil
		}

		fmt.Fprintf(os.Stderr, "Center: %s (%.5f, %.5f)\n", label, center.Latitude, center.Longitude)
		formatCommunesTable(os.Stdout, list)
		fmt.Fprintf(os.Stdout, "\n%d commune(s), %d postal code(s)\n", len(list), len(geo.PostalCodes(list)))
		return nil
	},
}

var communesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the commune centroid cache from geo.api.gouv.fr",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cache := commune.NewCache(cfg.Commune.CachePath, buildGeoAPIClient())
		if err := cache.Refresh(ctx); err != nil {
			return err
		}

		n, err := cache.Len()
		if err != nil {
			return err
		}
		zap.L().Info("commune cache rebuilt", zap.Int("communes", n), zap.String("path", cfg.Commune.CachePath))
		fmt.Fprintf(os.Stderr, "Refreshed %d communes.\n", n)
		return nil
	},
}

var communesResolveCmd = &cobra.Command{
	Use:   "resolve <insee-code>",
	Short: "Show the cached entry for one INSEE commune code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cache := commune.NewCache(cfg.Commune.CachePath, buildGeoAPIClient())

		c, err := cache.Resolve(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, commune.ErrUnknownCode) {
				return eris.Errorf("%q is not a known INSEE commune code", args[0])
			}
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	},
}

func formatCommunesTable(out io.Writer, list []commune.Commune) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CODE\tNOM\tCODES POSTAUX")
	for _, c := range list {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", c.Code, truncate(c.Nom, 32), strings.Join(c.CodesPostaux, ","))
	}
	_ = w.Flush()
}

func init() {
	communesRadiusCmd.Flags().StringVar(&communesAddress, "address", "", "reference address")
	communesRadiusCmd.Flags().Float64Var(&communesKM, "km", 5, "radius in kilometers")
	communesRadiusCmd.Flags().BoolVar(&communesPostal, "postal", false, "with --codes-only, print postal codes instead of INSEE codes")
	communesRadiusCmd.Flags().BoolVar(&communesCodesOnly, "codes-only", false, "print bare codes, one per line")
	_ = communesRadiusCmd.MarkFlagRequired("address")

	communesCmd.AddCommand(communesRadiusCmd, communesRefreshCmd, communesResolveCmd)
	rootCmd.AddCommand(communesCmd)
}
