package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/studio-carto/prospect-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "prospect-cli",
	Short: "Company prospecting around a French address",
	Long:  "Geocodes an address, finds the communes within a radius, queries the recherche-entreprises API for matching companies, and exports the results to CSV, XLSX, GeoJSON, maps or a CRM.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		resolveDataPaths(cfg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// appDir returns the per-user data directory, creating it if needed. Falls
// back to the working directory when the home directory is unavailable.
func appDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	dir := filepath.Join(home, ".prospect-cli")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "."
	}
	return dir
}

// anchorPath joins a relative path onto dir, leaving absolute and empty
// paths untouched.
func anchorPath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// resolveDataPaths anchors the internal data files (store, commune cache,
// NAF table) under the app directory. Export paths stay relative to the
// working directory since they are user-facing artifacts.
func resolveDataPaths(c *config.Config) {
	dir := appDir()
	c.Store.Path = anchorPath(dir, c.Store.Path)
	c.Commune.CachePath = anchorPath(dir, c.Commune.CachePath)
	c.NAF.FilePath = anchorPath(dir, c.NAF.FilePath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
