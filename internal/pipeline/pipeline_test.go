package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gedmap/internal/cachestore"
	"github.com/sells-group/gedmap/internal/config"
	"github.com/sells-group/gedmap/internal/model"
	"github.com/sells-group/gedmap/internal/resilience"
	"github.com/sells-group/gedmap/pkg/geocode"
)

type stubGeocoder struct {
	results map[string]*geocode.Result
	calls   []string
}

func (s *stubGeocoder) Name() string { return "stub" }

func (s *stubGeocoder) Geocode(_ context.Context, q string) (*geocode.Result, error) {
	s.calls = append(s.calls, q)
	if r, ok := s.results[q]; ok {
		return r, nil
	}
	return &geocode.Result{Source: "stub"}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const smithGED = `0 HEAD
1 CHAR UTF-8
0 @I1@ INDI
1 NAME John /Smith/
1 BIRT
2 DATE 12 MAR 1850
2 PLAC Lon
3 CONC don, England
0 TRLR
`

const jonesGED = `0 @I1@ INDI
1 NAME Ann /Jones/
1 BIRT
2 PLAC Springfield, Illinois
1 DEAT
2 PLAC Old Town, Bucks
0 TRLR
`

func testOptions(dir string) Options {
	return Options{
		Places: config.PlacesConfig{
			DefaultCountry: "United States",
			GeoConfigPath:  filepath.Join(dir, "geo_config.yaml"),
			AltSuffix:      "_alt.csv",
			UseAltPlaces:   true,
		},
		Resolve: OptionsFromConfig(&config.Config{}).Resolve,
	}
}

func TestAltTablePath(t *testing.T) {
	assert.Equal(t, "trees/smith_alt.csv", AltTablePath("trees/smith.ged", "_alt.csv"))
	assert.Equal(t, "smith_alt.csv", AltTablePath("smith", ""))
	assert.Equal(t, "a.b/tree-places.csv", AltTablePath("a.b/tree.GED", "-places.csv"))
}

func TestParse_ParallelKeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	smith := filepath.Join(dir, "smith.ged")
	jones := filepath.Join(dir, "jones.ged")
	writeFile(t, smith, smithGED)
	writeFile(t, jones, jonesGED)
	writeFile(t, filepath.Join(dir, "jones_alt.csv"), "place,alt\n\"Old Town, Bucks\",\"Olney, Buckinghamshire, England\"\n")

	p := New(nil, nil, testOptions(dir))
	files, err := p.Parse(context.Background(), []string{smith, jones})
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, smith, files[0].Path)
	assert.Equal(t, smith, files[0].Graph.Source)
	assert.Equal(t, jones, files[1].Path)
	assert.Equal(t, 0, files[0].Diagnostics.Len())

	// The alt table only applies to its own file.
	assert.Equal(t, "olney, buckinghamshire, england", files[1].Normalizer.Normalize("Old Town, Bucks"))
	assert.Equal(t, "old town, bucks, united states", files[0].Normalizer.Normalize("Old Town, Bucks"))
}

func TestParse_MissingInputFails(t *testing.T) {
	dir := t.TempDir()
	p := New(nil, nil, testOptions(dir))
	_, err := p.Parse(context.Background(), []string{filepath.Join(dir, "nope.ged")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gedcom: open")
}

func TestParse_InvalidGeoConfigFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "geo_config.yaml"), "additional_countries: {broken")
	ged := filepath.Join(dir, "smith.ged")
	writeFile(t, ged, smithGED)

	_, err := New(nil, nil, testOptions(dir)).Parse(context.Background(), []string{ged})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "place: parse geo config")
}

func TestParse_GeoConfigDefaultCountryOverridden(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "geo_config.yaml"), "default_country: Canada\nadditional_countries:\n  - Bucks\n")
	ged := filepath.Join(dir, "jones.ged")
	writeFile(t, ged, jonesGED)

	files, err := New(nil, nil, testOptions(dir)).Parse(context.Background(), []string{ged})
	require.NoError(t, err)
	n := files[0].Normalizer
	assert.Equal(t, "springfield, illinois, united states", n.Normalize("Springfield, Illinois"))
	assert.Equal(t, "old town, bucks", n.Normalize("Old Town, Bucks"))
}

func TestRun_ResolvesAcrossFilesWithSharedCache(t *testing.T) {
	dir := t.TempDir()
	smith := filepath.Join(dir, "smith.ged")
	jones := filepath.Join(dir, "jones.ged")
	writeFile(t, smith, smithGED)
	writeFile(t, jones, jonesGED+"0 @I2@ INDI\n1 BIRT\n2 PLAC London, England\n")

	cache, err := cachestore.Open(context.Background(), cachestore.NewCSV(filepath.Join(dir, "geo_cache.csv")))
	require.NoError(t, err)

	client := &stubGeocoder{results: map[string]*geocode.Result{
		"london, england":                      {Latitude: 51.5074, Longitude: -0.1278, Matched: true},
		"springfield, illinois, united states": {Latitude: 39.7817, Longitude: -89.6501, Matched: true},
	}}
	opts := testOptions(dir)
	opts.Resolve.Retry = resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond}

	res, err := New(cache, client, opts).Run(context.Background(), []string{smith, jones})
	require.NoError(t, err)
	require.NoError(t, cache.Close(context.Background()))

	assert.Equal(t, []string{
		"london, england",
		"springfield, illinois, united states",
		"old town, bucks, united states",
	}, client.calls)

	birth := res.Files[0].Graph.Events[0].Place
	require.True(t, birth.Resolved())
	assert.Equal(t, model.SourceGeocoded, birth.Coordinate.Source)

	// The second file's London is served from the entry the first file wrote.
	last := res.Files[1].Graph.Events[2].Place
	require.True(t, last.Resolved())
	assert.Equal(t, model.SourceCacheExact, last.Coordinate.Source)

	assert.Equal(t, 4, res.Report.Places)
	assert.Equal(t, 1, res.Report.Unresolved)
	assert.Equal(t, 3, res.Report.Lookups)

	reloaded, err := cachestore.Open(context.Background(), cachestore.NewCSV(filepath.Join(dir, "geo_cache.csv")))
	require.NoError(t, err)
	assert.Equal(t, []string{"london, england", "springfield, illinois, united states"}, reloaded.Keys())
}

func TestExecute_PersistsThroughConfiguredBackend(t *testing.T) {
	dir := t.TempDir()
	ged := filepath.Join(dir, "smith.ged")
	writeFile(t, ged, smithGED)
	dbPath := filepath.Join(dir, "cache.db")

	cfg := &config.Config{
		Cache:   config.CacheConfig{Driver: "sqlite", Path: dbPath},
		Geocode: config.GeocodeConfig{MaxAttempts: 1},
		Places:  config.PlacesConfig{GeoConfigPath: filepath.Join(dir, "missing.yaml")},
		Fuzzy:   config.FuzzyConfig{Threshold: 0.9},
	}
	client := &stubGeocoder{results: map[string]*geocode.Result{
		"london, england": {Latitude: 51.5074, Longitude: -0.1278, Matched: true},
	}}

	res, err := Execute(context.Background(), cfg, client, []string{ged})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.BySource[model.SourceGeocoded])

	// A second run is answered entirely from the persisted cache.
	again := &stubGeocoder{}
	res, err = Execute(context.Background(), cfg, again, []string{ged})
	require.NoError(t, err)
	assert.Empty(t, again.calls)
	assert.Equal(t, 1, res.Report.BySource[model.SourceCacheExact])
}

func TestExecute_UnknownDriver(t *testing.T) {
	cfg := &config.Config{Cache: config.CacheConfig{Driver: "redis"}}
	_, err := Execute(context.Background(), cfg, &stubGeocoder{}, nil)
	require.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Geocode: config.GeocodeConfig{
			MinIntervalMs:    500,
			MaxAttempts:      4,
			BreakerThreshold: 2,
			BreakerResetSecs: 30,
			AlwaysGeocode:    true,
		},
		Fuzzy: config.FuzzyConfig{Enabled: true, Threshold: 0.8, CountryWeight: 0.25},
	}
	opts := OptionsFromConfig(cfg).Resolve
	assert.True(t, opts.Fuzzy)
	assert.InDelta(t, 0.8, opts.Threshold, 1e-9)
	assert.Equal(t, 500*time.Millisecond, opts.MinInterval)
	assert.Equal(t, 4, opts.Retry.MaxAttempts)
	assert.Equal(t, 2, opts.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, opts.Breaker.ResetTimeout)
	assert.True(t, opts.AlwaysGeocode)
}
