package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// SiteFields describes the columns of one site's snapshots.
type SiteFields struct {
	// Columns is the full ordered column list of the missing dataset.
	Columns []string `yaml:"columns"`
	// Identity is the subset compared for equality during matching.
	Identity []string `yaml:"identity"`

	PriceDate string `yaml:"price_date"`
	StayStart string `yaml:"stay_start"`
	StayEnd   string `yaml:"stay_end"`
	Weekday   string `yaml:"weekday"`
}

var defaultSites = map[string]SiteFields{
	"maeva": {
		Columns: []string{
			"web-scrapper-order",
			"date_price",
			"date_debut",
			"date_fin",
			"prix_init",
			"prix_actuel",
			"typologie",
			"n_offre",
			"nom",
			"localite",
			"date_debut-jour",
			"Nb semaines",
			"cle_station",
			"nom_station",
		},
		Identity: []string{
			"typologie",
			"n_offre",
			"nom",
			"localite",
			"cle_station",
			"nom_station",
		},
		PriceDate: "date_price",
		StayStart: "date_debut",
		StayEnd:   "date_fin",
		Weekday:   "date_debut-jour",
	},
}

// Fields is the registry of site field configurations.
type Fields struct {
	sites map[string]SiteFields
}

// DefaultFields returns the built-in site configurations.
func DefaultFields() *Fields {
	f := &Fields{sites: make(map[string]SiteFields, len(defaultSites))}
	for name, s := range defaultSites {
		f.sites[name] = s
	}
	return f
}

// LoadFields returns the built-in configurations overlaid with the sites
// declared in the YAML file at path. An empty path yields the defaults.
func LoadFields(path string) (*Fields, error) {
	f := DefaultFields()
	if path == "" {
		return f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fields: read %q: %w", path, err)
	}

	var doc struct {
		Sites map[string]SiteFields `yaml:"sites"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("fields: parse %q: %w", path, err)
	}

	for name, s := range doc.Sites {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("fields: site %q: %w", name, err)
		}
		f.sites[name] = s
	}
	return f, nil
}

// Site returns the configuration for name.
func (f *Fields) Site(name string) (SiteFields, error) {
	s, ok := f.sites[name]
	if !ok {
		return SiteFields{}, fmt.Errorf("fields: unknown site %q", name)
	}
	return s, nil
}

// Names returns the configured site names, sorted.
func (f *Fields) Names() []string {
	names := make([]string, 0, len(f.sites))
	for n := range f.sites {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every role field is set and listed in Columns.
func (s SiteFields) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("no columns")
	}
	if len(s.Identity) == 0 {
		return fmt.Errorf("no identity fields")
	}

	known := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		known[c] = struct{}{}
	}

	required := append([]string{s.PriceDate, s.StayStart, s.StayEnd, s.Weekday}, s.Identity...)
	for _, r := range required {
		if r == "" {
			return fmt.Errorf("role field left empty")
		}
		if _, ok := known[r]; !ok {
			return fmt.Errorf("field %q not in columns", r)
		}
	}
	return nil
}
