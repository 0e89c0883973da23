package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/studio-carto/prospect-cli/internal/config"
	"github.com/studio-carto/prospect-cli/internal/model"
)

func profilesPath() string {
	return filepath.Join(appDir(), "profiles.yaml")
}

func loadProfile(name string) (config.Profile, error) {
	return loadProfileFrom(profilesPath(), name)
}

// loadProfileFrom returns the named profile, or an error listing the known
// names so a typo is easy to spot.
func loadProfileFrom(path, name string) (config.Profile, error) {
	profiles, err := config.LoadProfiles(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Profile{}, eris.Errorf("no profiles saved yet (%s does not exist)", path)
		}
		return config.Profile{}, err
	}

	p, ok := profiles[name]
	if !ok {
		names := make([]string, 0, len(profiles))
		for n := range profiles {
			names = append(names, n)
		}
		sort.Strings(names)
		if len(names) == 0 {
			return config.Profile{}, eris.Errorf("unknown profile %q: no profiles saved in %s", name, path)
		}
		return config.Profile{}, eris.Errorf("unknown profile %q, known profiles: %s", name, strings.Join(names, ", "))
	}
	return p, nil
}

func saveProfile(name string, req model.SearchRequest) error {
	return saveProfileTo(profilesPath(), name, req)
}

// saveProfileTo stores the request parameters under name, overwriting any
// existing profile with that name.
func saveProfileTo(path, name string, req model.SearchRequest) error {
	profiles, err := config.LoadProfiles(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		profiles = map[string]config.Profile{}
	}

	profiles[name] = config.Profile{
		Address:        req.Address,
		RadiusKM:       req.RadiusKM,
		Sections:       req.Sections,
		Codes:          req.ActivityCodes,
		Groups:         req.HeadcountGroups,
		Headcount:      req.HeadcountCodes,
		CodeKind:       string(req.CodeKind),
		NearPoint:      req.NearPoint,
		ForceFullFetch: req.ForceFullFetch,
	}

	if err := config.SaveProfiles(path, profiles); err != nil {
		return err
	}
	zap.L().Info("profile saved", zap.String("name", name), zap.String("path", path))
	return nil
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List saved search profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, err := config.LoadProfiles(profilesPath())
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(os.Stderr, "No profiles saved.")
				return nil
			}
			return err
		}
		if len(profiles) == 0 {
			fmt.Fprintln(os.Stderr, "No profiles saved.")
			return nil
		}

		formatProfilesTable(os.Stdout, profiles)
		return nil
	},
}

func formatProfilesTable(out io.Writer, profiles map[string]config.Profile) {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tADDRESS\tRADIUS\tCRITERIA")
	for _, n := range names {
		p := profiles[n]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f km\t%s\n", n, truncate(p.Address, 40), p.RadiusKM, profileCriteria(p))
	}
	_ = w.Flush()
}

// profileCriteria summarizes a profile's filters in one cell.
func profileCriteria(p config.Profile) string {
	var parts []string
	if len(p.Sections) > 0 {
		parts = append(parts, "sections "+strings.Join(p.Sections, ","))
	}
	if len(p.Codes) > 0 {
		parts = append(parts, "naf "+strings.Join(p.Codes, ","))
	}
	if len(p.Groups) > 0 {
		parts = append(parts, "groups "+strings.Join(p.Groups, ","))
	}
	if len(p.Headcount) > 0 {
		parts = append(parts, "headcount "+strings.Join(p.Headcount, ","))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "; ")
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}
