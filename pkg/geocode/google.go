package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gedmap/internal/model"
	"github.com/sells-group/gedmap/internal/resilience"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress  string            `json:"formatted_address"`
	AddressComponents []googleComponent `json:"address_components"`
}

type googleComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Google geocodes through the Google Geocoding API.
type Google struct {
	geocoder
}

// NewGoogle creates a Google client. WithAPIKey is required.
func NewGoogle(opts ...Option) *Google {
	return &Google{geocoder: newGeocoder(googleGeocodeURL, opts...)}
}

// Name implements Client.
func (g *Google) Name() string { return "google" }

// Geocode implements Client.
func (g *Google) Geocode(ctx context.Context, query string) (*Result, error) {
	if g.apiKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return &Result{Matched: false, Source: g.Name()}, nil
	}

	params := url.Values{
		"address": {query},
		"key":     {g.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(g.Name(), resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google read body")
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	switch googleResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return &Result{Matched: false, Source: g.Name()}, nil
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return nil, resilience.NewTransientError(
			eris.Errorf("geocode: google status %s", googleResp.Status), http.StatusTooManyRequests)
	default:
		return nil, eris.Errorf("geocode: google status %s: %s", googleResp.Status, googleResp.ErrorMessage)
	}
	if len(googleResp.Results) == 0 {
		return &Result{Matched: false, Source: g.Name()}, nil
	}

	result := googleResp.Results[0]
	return &Result{
		Latitude:  result.Geometry.Location.Lat,
		Longitude: result.Geometry.Location.Lng,
		Source:    g.Name(),
		Quality:   googleLocationTypeToQuality(result.Geometry.LocationType),
		Matched:   true,
		Address:   googleAddress(result),
	}, nil
}

func googleAddress(r googleResult) model.AddressParts {
	a := model.AddressParts{DisplayName: r.FormattedAddress}
	for _, c := range r.AddressComponents {
		switch {
		case slices.Contains(c.Types, "locality"), slices.Contains(c.Types, "postal_town"):
			if a.City == "" {
				a.City = c.LongName
			}
		case slices.Contains(c.Types, "administrative_area_level_2"):
			a.County = c.LongName
		case slices.Contains(c.Types, "administrative_area_level_1"):
			a.State = c.LongName
		case slices.Contains(c.Types, "postal_code"):
			a.Postcode = c.LongName
		case slices.Contains(c.Types, "country"):
			a.Country = c.LongName
			a.CountryCode = strings.ToLower(c.ShortName)
		}
	}
	return a
}

// googleLocationTypeToQuality maps Google's location_type to our quality taxonomy.
func googleLocationTypeToQuality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	default:
		return "approximate"
	}
}
