package place

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// GeoConfig holds the country tables used by the Normalizer.
type GeoConfig struct {
	// DefaultCountry is appended to places whose final segment is not a
	// known country. Empty or "none" disables it.
	DefaultCountry string `yaml:"default_country"`

	// CountrySubstitutions rewrites a final segment, e.g. "usa" to
	// "United States". Keys match case-insensitively.
	CountrySubstitutions map[string]string `yaml:"country_substitutions"`

	// AdditionalCountries extends the built-in country list.
	AdditionalCountries []string `yaml:"additional_countries"`
}

// LoadGeoConfig reads a YAML geo config. A missing file yields an empty
// config.
func LoadGeoConfig(path string) (GeoConfig, error) {
	var cfg GeoConfig
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, eris.Wrapf(err, "place: read geo config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, eris.Wrapf(err, "place: parse geo config %s", path)
	}
	return cfg, nil
}

// WithDefaultCountry returns a copy with DefaultCountry replaced when c is
// non-empty. Command-line and environment settings override the file.
func (g GeoConfig) WithDefaultCountry(c string) GeoConfig {
	if strings.TrimSpace(c) != "" {
		g.DefaultCountry = c
	}
	return g
}
