package main

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/studio-carto/prospect-cli/pkg/ban"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Geocode an address via the Base Adresse Nationale",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := strings.Join(args, " ")

		res, err := buildBANClient().Geocode(cmd.Context(), address)
		if err != nil {
			if errors.Is(err, ban.ErrNoMatch) {
				return eris.Errorf("no geocoding result for %q", address)
			}
			return eris.Wrap(err, "geocode")
		}

		out := struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Label     string  `json:"label"`
			Score     float64 `json:"score"`
			Type      string  `json:"type,omitempty"`
			City      string  `json:"city,omitempty"`
			Postcode  string  `json:"postcode,omitempty"`
		}{
			Latitude:  res.Latitude,
			Longitude: res.Longitude,
			Label:     res.Label,
			Score:     res.Score,
			Type:      res.Type,
			City:      res.City,
			Postcode:  res.Postcode,
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
}
