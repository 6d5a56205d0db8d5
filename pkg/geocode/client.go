// Package geocode resolves free-text place names to coordinates through
// public geocoding services (Nominatim, Google).
package geocode

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/sells-group/gedmap/internal/model"
	"github.com/sells-group/gedmap/internal/resilience"
)

// Client geocodes one free-text place per call. A query the service does
// not know yields a Result with Matched false and a nil error; errors are
// reserved for failed requests, and retryable ones wrap
// resilience.TransientError.
type Client interface {
	// Name identifies the provider in logs and reports.
	Name() string

	// Geocode resolves a single place string.
	Geocode(ctx context.Context, query string) (*Result, error)
}

// Result holds the geocoding output for a place.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string // "nominatim" or "google"
	Quality   string // provider-specific precision, e.g. "city", "rooftop"
	Matched   bool
	Address   model.AddressParts
}

// Option configures a geocoder.
type Option func(*geocoder)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithBaseURL points the client at a different endpoint, such as a
// self-hosted Nominatim.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		if u != "" {
			g.baseURL = u
		}
	}
}

// WithUserAgent sets the User-Agent header. Nominatim's usage policy requires
// one that identifies the application.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		if ua != "" {
			g.userAgent = ua
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(g *geocoder) {
		if d > 0 {
			g.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithAPIKey sets the key for providers that need one.
func WithAPIKey(key string) Option {
	return func(g *geocoder) {
		g.apiKey = key
	}
}

// DefaultUserAgent identifies this tool to geocoding services.
const DefaultUserAgent = "gedmap/1.0 (+https://github.com/sells-group/gedmap)"

type geocoder struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	apiKey     string
}

func newGeocoder(baseURL string, opts ...Option) geocoder {
	g := geocoder{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

// statusError classifies a non-200 response. 408, 429 and 5xx become
// transient, carrying any Retry-After the server sent.
func statusError(provider string, resp *http.Response) error {
	err := &StatusError{Provider: provider, StatusCode: resp.StatusCode}
	if !resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return err
	}
	te := resilience.NewTransientError(err, resp.StatusCode)
	if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs > 0 {
		te.RetryAfter = time.Duration(secs) * time.Second
	}
	return te
}

// StatusError is a non-200 HTTP response from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return "geocode: " + e.Provider + " returned status " + strconv.Itoa(e.StatusCode)
}
