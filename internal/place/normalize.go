// Package place canonicalizes free-text place names into cache keys and
// scores how alike two keys are.
package place

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalizer turns raw GEDCOM place strings into cache keys. It has no I/O
// and holds only immutable tables, so identical input always yields an
// identical key.
type Normalizer struct {
	alt            map[string]string
	countries      map[string]struct{}
	substitutions  map[string]string
	defaultCountry string
}

// NewNormalizer builds a Normalizer from a geo config and an alternate-name
// table. Either may be zero.
func NewNormalizer(cfg GeoConfig, alt AltTable) *Normalizer {
	n := &Normalizer{
		alt:           make(map[string]string, len(alt)),
		countries:     make(map[string]struct{}, len(knownCountries)+len(cfg.AdditionalCountries)),
		substitutions: make(map[string]string, len(cfg.CountrySubstitutions)),
	}
	for raw, canonical := range alt {
		if k := fold(clean(raw)); k != "" {
			n.alt[k] = canonical
		}
	}
	for _, c := range knownCountries {
		n.countries[fold(c)] = struct{}{}
	}
	for _, c := range cfg.AdditionalCountries {
		n.countries[fold(clean(c))] = struct{}{}
	}
	for from, to := range cfg.CountrySubstitutions {
		n.substitutions[fold(clean(from))] = clean(to)
	}
	if d := clean(cfg.DefaultCountry); d != "" && fold(d) != "none" {
		n.defaultCountry = d
	}
	return n
}

// Normalize returns the cache key for raw:
//  1. collapse whitespace, trim each comma segment, drop empty segments
//  2. substitute the alternate-name table entry, matched case-insensitively
//  3. substitute the final segment from the country table; append the
//     default country when the final segment is not a known country
//  4. lower-case
func (n *Normalizer) Normalize(raw string) string {
	s := clean(raw)
	if s == "" {
		return ""
	}
	if canonical, ok := n.alt[fold(s)]; ok {
		if c := clean(canonical); c != "" {
			s = c
		}
	}

	segments := strings.Split(s, ", ")
	last := fold(segments[len(segments)-1])
	if sub, ok := n.substitutions[last]; ok && sub != "" {
		segments[len(segments)-1] = sub
		last = fold(sub)
	}
	if !n.IsCountry(last) && n.defaultCountry != "" {
		segments = append(segments, n.defaultCountry)
	}

	return cases.Lower(language.Und).String(strings.Join(segments, ", "))
}

// IsCountry reports whether s names a known country.
func (n *Normalizer) IsCountry(s string) bool {
	_, ok := n.countries[fold(clean(s))]
	return ok
}

// clean collapses runs of whitespace, trims every comma-delimited segment
// and drops empty segments.
func clean(s string) string {
	parts := strings.Split(strings.Join(strings.Fields(s), " "), ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

func fold(s string) string {
	return cases.Fold().String(s)
}
