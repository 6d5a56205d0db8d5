package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gedmap/internal/model"
)

const nominatimSearchURL = "https://nominatim.openstreetmap.org/search"

type nominatimPlace struct {
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	DisplayName string           `json:"display_name"`
	AddressType string           `json:"addresstype"`
	Address     nominatimAddress `json:"address"`
}

type nominatimAddress struct {
	City        string `json:"city"`
	Town        string `json:"town"`
	Village     string `json:"village"`
	Hamlet      string `json:"hamlet"`
	County      string `json:"county"`
	State       string `json:"state"`
	Postcode    string `json:"postcode"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
}

// Nominatim geocodes through the OpenStreetMap Nominatim search API.
type Nominatim struct {
	geocoder
}

// NewNominatim creates a Nominatim client.
func NewNominatim(opts ...Option) *Nominatim {
	return &Nominatim{geocoder: newGeocoder(nominatimSearchURL, opts...)}
}

// Name implements Client.
func (n *Nominatim) Name() string { return "nominatim" }

// Geocode implements Client.
func (n *Nominatim) Geocode(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &Result{Matched: false, Source: n.Name()}, nil
	}

	params := url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"limit":          {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim build request")
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(n.Name(), resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim read body")
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse response")
	}
	if len(places) == 0 {
		return &Result{Matched: false, Source: n.Name()}, nil
	}

	p := places[0]
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: nominatim latitude %q", p.Lat)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: nominatim longitude %q", p.Lon)
	}

	return &Result{
		Latitude:  lat,
		Longitude: lon,
		Source:    n.Name(),
		Quality:   p.AddressType,
		Matched:   true,
		Address: model.AddressParts{
			DisplayName: p.DisplayName,
			City:        firstNonEmpty(p.Address.City, p.Address.Town, p.Address.Village, p.Address.Hamlet),
			County:      p.Address.County,
			State:       p.Address.State,
			Postcode:    p.Address.Postcode,
			Country:     p.Address.Country,
			CountryCode: strings.ToLower(p.Address.CountryCode),
		},
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
