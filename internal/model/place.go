package model

import (
	"strconv"
	"strings"
	"time"
)

// Source records how a coordinate was obtained.
type Source string

const (
	SourceCacheExact Source = "CACHE_EXACT"
	SourceCacheFuzzy Source = "CACHE_FUZZY"
	SourceGeocoded   Source = "GEOCODED"
	SourceManual     Source = "MANUAL"
)

// ParseSource maps a persisted source string back to a Source. Unknown
// values fall back to SourceGeocoded, the only source ever written by a live
// lookup.
func ParseSource(s string) Source {
	switch Source(strings.ToUpper(strings.TrimSpace(s))) {
	case SourceCacheExact:
		return SourceCacheExact
	case SourceCacheFuzzy:
		return SourceCacheFuzzy
	case SourceManual:
		return SourceManual
	default:
		return SourceGeocoded
	}
}

// Coordinate is a resolved latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Source    Source  `json:"source"`
}

// Valid reports whether the pair lies within WGS84 bounds.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// ParseLatitude parses "N51.5", "S33.8" or a signed decimal.
func ParseLatitude(s string) (float64, bool) {
	return parseHemisphere(s, 'N', 'S', 90)
}

// ParseLongitude parses "E0.12", "W122.4" or a signed decimal.
func ParseLongitude(s string) (float64, bool) {
	return parseHemisphere(s, 'E', 'W', 180)
}

func parseHemisphere(s string, pos, neg byte, limit float64) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	sign := 1.0
	switch strings.ToUpper(s[:1])[0] {
	case pos:
		s = s[1:]
	case neg:
		sign = -1
		s = s[1:]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	v *= sign
	if v < -limit || v > limit {
		return 0, false
	}
	return v, true
}

// PlaceRef is an event's free-text place and, once resolved, its coordinate.
type PlaceRef struct {
	Raw        string      `json:"raw"`
	Normalized string      `json:"normalized,omitempty"`
	Coordinate *Coordinate `json:"coordinate,omitempty"`

	// Manual is set when the GEDCOM carried MAP/LATI/LONG for the place.
	Manual *Coordinate `json:"manual,omitempty"`

	// MatchedKey is the cache key used for a fuzzy hit.
	MatchedKey string `json:"matched_key,omitempty"`

	// Unresolved carries the failure reason when no coordinate was found.
	Unresolved string `json:"unresolved,omitempty"`
}

// Resolved reports whether a coordinate is attached.
func (p *PlaceRef) Resolved() bool { return p.Coordinate != nil }

// AddressParts is the canonical address returned by a geocoder.
type AddressParts struct {
	DisplayName string `json:"display_name,omitempty"`
	City        string `json:"city,omitempty"`
	County      string `json:"county,omitempty"`
	State       string `json:"state,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// Richness counts the populated fields.
func (a AddressParts) Richness() int {
	n := 0
	for _, v := range []string{a.DisplayName, a.City, a.County, a.State, a.Postcode, a.Country, a.CountryCode} {
		if v != "" {
			n++
		}
	}
	return n
}

// CacheEntry is one persisted place resolution.
type CacheEntry struct {
	Key       string       `json:"key"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Source    Source       `json:"source"`
	Address   AddressParts `json:"address"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Coordinate returns the entry's position tagged with src.
func (e CacheEntry) Coordinate(src Source) Coordinate {
	return Coordinate{Latitude: e.Latitude, Longitude: e.Longitude, Source: src}
}
