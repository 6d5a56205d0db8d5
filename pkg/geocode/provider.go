package geocode

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Config selects and configures a provider.
type Config struct {
	Provider  string
	BaseURL   string
	UserAgent string
	APIKey    string
	Timeout   time.Duration
}

// New returns the Client named by cfg.Provider. An empty provider means
// Nominatim.
func New(cfg Config, opts ...Option) (Client, error) {
	base := []Option{
		WithTimeout(cfg.Timeout),
		WithBaseURL(cfg.BaseURL),
		WithUserAgent(cfg.UserAgent),
		WithAPIKey(cfg.APIKey),
	}
	opts = append(base, opts...)

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "nominatim", "osm":
		return NewNominatim(opts...), nil
	case "google":
		if cfg.APIKey == "" {
			return nil, eris.New("geocode: google provider requires geocode.google_api_key")
		}
		return NewGoogle(opts...), nil
	default:
		return nil, eris.Errorf("geocode: unknown provider %q", cfg.Provider)
	}
}
