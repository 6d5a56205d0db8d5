package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLatitude(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"N51.5074", 51.5074, true},
		{"S33.8688", -33.8688, true},
		{"n10", 10, true},
		{"-12.5", -12.5, true},
		{" 48.8566 ", 48.8566, true},
		{"N", 0, false},
		{"", 0, false},
		{"abc", 0, false},
		{"N91", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLatitude(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestParseLongitude(t *testing.T) {
	v, ok := ParseLongitude("W0.1278")
	require.True(t, ok)
	assert.InDelta(t, -0.1278, v, 1e-9)

	v, ok = ParseLongitude("E2.3522")
	require.True(t, ok)
	assert.InDelta(t, 2.3522, v, 1e-9)

	_, ok = ParseLongitude("E181")
	assert.False(t, ok)
}

func TestParseSource(t *testing.T) {
	assert.Equal(t, SourceCacheExact, ParseSource("cache_exact"))
	assert.Equal(t, SourceManual, ParseSource("MANUAL"))
	assert.Equal(t, SourceGeocoded, ParseSource(""))
	assert.Equal(t, SourceGeocoded, ParseSource("nominatim"))
}

func TestEventYear(t *testing.T) {
	assert.Equal(t, "1850", (&Event{Date: "12 MAR 1850"}).Year())
	assert.Equal(t, "1790", (&Event{Date: "BET 1790 AND 1795"}).Year())
	assert.Equal(t, "", (&Event{Date: "ABT MAR"}).Year())
	assert.Equal(t, "", (&Event{}).Year())
}

func TestAddressRichness(t *testing.T) {
	assert.Equal(t, 0, AddressParts{}.Richness())
	assert.Equal(t, 2, AddressParts{City: "Paris", Country: "France"}.Richness())
}

func TestGraphLookups(t *testing.T) {
	g := NewGraph("test.ged")
	i1 := g.AddIndividual("@I1@")
	f1 := g.AddFamily("@F1@")

	assert.Equal(t, i1, g.LookupIndividual("@I1@"))
	assert.Equal(t, NoIndividual, g.LookupIndividual("@I9@"))
	assert.Equal(t, f1, g.LookupFamily("@F1@"))
	assert.Equal(t, NoFamily, g.LookupFamily("@F9@"))

	assert.Nil(t, g.Individual(NoIndividual))
	assert.Nil(t, g.Family(NoFamily))
	require.NotNil(t, g.Individual(i1))
	assert.Equal(t, NoFamily, g.Individual(i1).ParentFamily)
	assert.Equal(t, NoIndividual, g.Family(f1).Husband)
}

func TestGraphReferenceCoordinate(t *testing.T) {
	g := NewGraph("test.ged")
	i1 := g.AddIndividual("@I1@")
	f1 := g.AddFamily("@F1@")

	death := g.AddEvent(Event{Kind: EventDeath, Place: &PlaceRef{
		Raw:        "York",
		Coordinate: &Coordinate{Latitude: 53.96, Longitude: -1.08, Source: SourceGeocoded},
	}})
	birth := g.AddEvent(Event{Kind: EventBirth, Place: &PlaceRef{Raw: "Nowhere"}})
	marr := g.AddEvent(Event{Kind: EventMarriage, Place: &PlaceRef{
		Raw:        "Leeds",
		Coordinate: &Coordinate{Latitude: 53.8, Longitude: -1.55, Source: SourceCacheExact},
	}})

	g.Individuals[i1].Events = []EventID{death, birth}
	g.Individuals[i1].SpouseFamilies = []FamilyID{f1}
	g.Families[f1].Events = []EventID{marr}

	c := g.ReferenceCoordinate(i1)
	require.NotNil(t, c)
	assert.InDelta(t, 53.8, c.Latitude, 1e-9)
	assert.Nil(t, g.ReferenceCoordinate(NoIndividual))
}

func TestGraphPlaceRefsSkipsBlank(t *testing.T) {
	g := NewGraph("test.ged")
	g.AddEvent(Event{Kind: EventBirth, Place: &PlaceRef{Raw: "London"}})
	g.AddEvent(Event{Kind: EventDeath, Place: &PlaceRef{Raw: "  "}})
	g.AddEvent(Event{Kind: EventOther})

	refs := g.PlaceRefs()
	require.Len(t, refs, 1)
	assert.Equal(t, "London", refs[0].Raw)
}
