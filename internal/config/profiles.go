package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Profile is a saved set of search parameters. The search command loads one
// with --profile instead of repeating flags.
type Profile struct {
	Address        string   `yaml:"address"`
	RadiusKM       float64  `yaml:"radius_km"`
	Sections       []string `yaml:"sections,omitempty"`
	Codes          []string `yaml:"codes,omitempty"`
	Groups         []string `yaml:"groups,omitempty"`
	Headcount      []string `yaml:"headcount,omitempty"`
	CodeKind       string   `yaml:"code_kind,omitempty"`
	NearPoint      bool     `yaml:"near_point,omitempty"`
	ForceFullFetch bool     `yaml:"force_full_fetch,omitempty"`
}

// LoadProfiles reads named search profiles from a YAML file.
func LoadProfiles(path string) (map[string]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read profiles %s", path)
	}

	// The YAML has a top-level "profiles" key
	var wrapper struct {
		Profiles map[string]Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "config: parse profiles")
	}

	if wrapper.Profiles == nil {
		wrapper.Profiles = map[string]Profile{}
	}
	return wrapper.Profiles, nil
}

// SaveProfiles writes named search profiles to a YAML file.
func SaveProfiles(path string, profiles map[string]Profile) error {
	wrapper := struct {
		Profiles map[string]Profile `yaml:"profiles"`
	}{Profiles: profiles}

	data, err := yaml.Marshal(wrapper)
	if err != nil {
		return eris.Wrap(err, "config: marshal profiles")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "config: write profiles %s", path)
	}
	return nil
}
