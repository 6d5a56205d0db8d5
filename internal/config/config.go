package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Places  PlacesConfig  `yaml:"places" mapstructure:"places"`
	Fuzzy   FuzzyConfig   `yaml:"fuzzy" mapstructure:"fuzzy"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// CacheConfig configures the geocode cache backend.
type CacheConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// Incremental writes each new entry as it is resolved instead of once at
	// the end of the run.
	Incremental bool `yaml:"incremental" mapstructure:"incremental"`
}

// GeocodeConfig configures the live geocoding service.
type GeocodeConfig struct {
	Provider         string `yaml:"provider" mapstructure:"provider"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
	GoogleAPIKey     string `yaml:"google_api_key" mapstructure:"google_api_key"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinIntervalMs    int    `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	AlwaysGeocode    bool   `yaml:"always_geocode" mapstructure:"always_geocode"`
}

// Timeout returns the per-request timeout.
func (g GeocodeConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// MinInterval returns the minimum spacing between live requests.
func (g GeocodeConfig) MinInterval() time.Duration {
	return time.Duration(g.MinIntervalMs) * time.Millisecond
}

// BreakerReset returns how long the circuit stays open before probing.
func (g GeocodeConfig) BreakerReset() time.Duration {
	return time.Duration(g.BreakerResetSecs) * time.Second
}

// PlacesConfig configures place normalization.
type PlacesConfig struct {
	DefaultCountry string `yaml:"default_country" mapstructure:"default_country"`
	GeoConfigPath  string `yaml:"geo_config_path" mapstructure:"geo_config_path"`
	AltSuffix      string `yaml:"alt_suffix" mapstructure:"alt_suffix"`
	UseAltPlaces   bool   `yaml:"use_alt_places" mapstructure:"use_alt_places"`
}

// FuzzyConfig configures fuzzy cache matching.
type FuzzyConfig struct {
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
	// CountryWeight is the share of the score given to the trailing country
	// segment. Zero scores the whole key as one token set.
	CountryWeight float64 `yaml:"country_weight" mapstructure:"country_weight"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEDMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("cache.driver", "csv")
	v.SetDefault("cache.path", "geo_cache.csv")
	v.SetDefault("cache.database_url", "")
	v.SetDefault("cache.incremental", false)
	v.SetDefault("geocode.provider", "nominatim")
	v.SetDefault("geocode.base_url", "")
	v.SetDefault("geocode.user_agent", "gedmap/1.0")
	v.SetDefault("geocode.google_api_key", "")
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.min_interval_ms", 1000)
	v.SetDefault("geocode.max_attempts", 3)
	v.SetDefault("geocode.breaker_threshold", 5)
	v.SetDefault("geocode.breaker_reset_secs", 60)
	v.SetDefault("geocode.always_geocode", false)
	v.SetDefault("places.default_country", "")
	v.SetDefault("places.geo_config_path", "geo_config.yaml")
	v.SetDefault("places.alt_suffix", "_alt.csv")
	v.SetDefault("places.use_alt_places", true)
	v.SetDefault("fuzzy.enabled", false)
	v.SetDefault("fuzzy.threshold", 0.90)
	v.SetDefault("fuzzy.country_weight", 0.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is "geocode" for a
// resolving run or "cache" for the cache maintenance commands.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Cache.Driver {
	case "csv", "sqlite":
	case "postgres":
		if c.Cache.DatabaseURL == "" {
			errs = append(errs, "cache.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.driver %q is not one of csv, sqlite, postgres", c.Cache.Driver))
	}

	switch mode {
	case "cache":
	case "geocode":
		switch strings.ToLower(c.Geocode.Provider) {
		case "", "nominatim", "osm":
		case "google":
			if c.Geocode.GoogleAPIKey == "" {
				errs = append(errs, "geocode.google_api_key is required for the google provider")
			}
		default:
			errs = append(errs, fmt.Sprintf("geocode.provider %q is not supported", c.Geocode.Provider))
		}
		if c.Geocode.TimeoutSecs <= 0 {
			errs = append(errs, "geocode.timeout_secs must be > 0")
		}
		if c.Geocode.MinIntervalMs < 0 {
			errs = append(errs, "geocode.min_interval_ms must be >= 0")
		}
		if c.Geocode.MaxAttempts < 1 || c.Geocode.MaxAttempts > 10 {
			errs = append(errs, "geocode.max_attempts must be between 1 and 10")
		}
		if c.Fuzzy.Threshold <= 0 || c.Fuzzy.Threshold > 1 {
			errs = append(errs, "fuzzy.threshold must be in (0, 1]")
		}
		if c.Fuzzy.CountryWeight < 0 || c.Fuzzy.CountryWeight > 1 {
			errs = append(errs, "fuzzy.country_weight must be in [0, 1]")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
