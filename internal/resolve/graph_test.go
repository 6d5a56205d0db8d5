package resolve

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gedmap/internal/cachestore"
	"github.com/sells-group/gedmap/internal/gedcom"
	"github.com/sells-group/gedmap/internal/model"
	"github.com/sells-group/gedmap/internal/place"
	"github.com/sells-group/gedmap/pkg/geocode"
)

const resolveGED = `0 @I1@ INDI
1 NAME John /Smith/
1 BIRT
2 DATE 1850
2 PLAC Lon
3 CONC don, England
1 DEAT
2 PLAC York, England
3 MAP
4 LATI N53.9590
4 LONG W1.0815
1 FAMS @F1@
0 @I2@ INDI
1 NAME Mary /Jones/
1 BIRT
2 PLAC   London ,  England
1 RESI
2 PLAC
0 @F1@ FAM
1 HUSB @I1@
1 WIFE @I2@
1 MARR
2 PLAC Atlantis
`

func loadGraph(t *testing.T, src string) *model.Graph {
	t.Helper()
	g, _, err := gedcom.Load(strings.NewReader(src), "tree.ged")
	require.NoError(t, err)
	return g
}

func TestResolveGraph(t *testing.T) {
	cache := openCache(t, filepath.Join(t.TempDir(), "geo_cache.csv"))
	client := &fakeClient{results: map[string]*geocode.Result{"london, england": matched(51.5074, -0.1278)}}
	r := New(cache, client, fastOpts())
	g := loadGraph(t, resolveGED)

	require.NoError(t, r.ResolveGraph(context.Background(), g, place.NewNormalizer(place.GeoConfig{}, nil)))

	john := g.Individual(g.LookupIndividual("@I1@"))
	birth := g.Events[john.Events[0]].Place
	assert.Equal(t, "London, England", birth.Raw)
	assert.Equal(t, "london, england", birth.Normalized)
	require.True(t, birth.Resolved())
	assert.Equal(t, model.SourceGeocoded, birth.Coordinate.Source)

	death := g.Events[john.Events[1]].Place
	require.True(t, death.Resolved())
	assert.Equal(t, model.SourceManual, death.Coordinate.Source)
	assert.InDelta(t, -1.0815, death.Coordinate.Longitude, 1e-9)

	// Mary's birth normalizes to the same key and is answered from the cache
	// written by John's lookup.
	mary := g.Individual(g.LookupIndividual("@I2@"))
	maryBirth := g.Events[mary.Events[0]].Place
	require.True(t, maryBirth.Resolved())
	assert.Equal(t, model.SourceCacheExact, maryBirth.Coordinate.Source)

	marr := g.Events[g.Family(g.LookupFamily("@F1@")).Events[0]].Place
	assert.False(t, marr.Resolved())
	assert.Equal(t, string(ReasonNotFound), marr.Unresolved)

	assert.Equal(t, []string{"london, england", "atlantis"}, client.calls)

	rep := r.Report()
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 4, rep.Places)
	assert.Equal(t, 1, rep.BySource[model.SourceManual])
	assert.Equal(t, 1, rep.BySource[model.SourceGeocoded])
	assert.Equal(t, 1, rep.BySource[model.SourceCacheExact])
	assert.Equal(t, 1, rep.Unresolved)
	assert.Equal(t, 2, rep.Lookups)
	assert.False(t, rep.Cancelled)
	assert.Equal(t, map[Reason]int{ReasonNotFound: 1}, rep.ByReason())

	ref := g.ReferenceCoordinate(g.LookupIndividual("@I1@"))
	require.NotNil(t, ref)
	assert.Equal(t, model.SourceGeocoded, ref.Source)
}

func TestResolveGraph_Cancelled(t *testing.T) {
	cache := openCache(t, filepath.Join(t.TempDir(), "geo_cache.csv"))
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeClient{
		results: map[string]*geocode.Result{"london, england": matched(51.5, -0.12)},
		onCall:  cancel,
	}
	r := New(cache, client, fastOpts())
	g := loadGraph(t, resolveGED)

	require.NoError(t, r.ResolveGraph(ctx, g, place.NewNormalizer(place.GeoConfig{}, nil)))

	// The first lookup completed; the manual coordinate still attaches; the
	// remaining places are left unresolved.
	assert.Len(t, client.calls, 1)
	john := g.Individual(g.LookupIndividual("@I1@"))
	assert.True(t, g.Events[john.Events[0]].Place.Resolved())
	assert.True(t, g.Events[john.Events[1]].Place.Resolved())

	marr := g.Events[g.Family(0).Events[0]].Place
	assert.Equal(t, string(ReasonCancelled), marr.Unresolved)

	rep := r.Report()
	assert.True(t, rep.Cancelled)
	assert.Equal(t, 2, rep.Unresolved)
	assert.Equal(t, 2, rep.ByReason()[ReasonCancelled])

	// The geocoded result is still in the cache for the final flush.
	_, ok := cache.Get("london, england")
	assert.True(t, ok)
}

// putRecorder is an incremental backend whose writes honor cancellation.
type putRecorder struct {
	puts []string
}

func (p *putRecorder) Load(context.Context) ([]model.CacheEntry, error) { return nil, nil }

func (p *putRecorder) Save(ctx context.Context, _ []model.CacheEntry) error { return ctx.Err() }

func (p *putRecorder) Close() error { return nil }

func (p *putRecorder) Put(ctx context.Context, e model.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.puts = append(p.puts, e.Key)
	return nil
}

func TestResolveGraph_CancelledDuringLookupStillStores(t *testing.T) {
	backend := &putRecorder{}
	cache, err := cachestore.Open(context.Background(), backend, cachestore.WithIncremental(true))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeClient{
		results: map[string]*geocode.Result{"london, england": matched(51.5, -0.12)},
		onCall:  cancel,
	}
	r := New(cache, client, fastOpts())
	g := loadGraph(t, resolveGED)

	require.NoError(t, r.ResolveGraph(ctx, g, place.NewNormalizer(place.GeoConfig{}, nil)))
	assert.Equal(t, []string{"london, england"}, backend.puts)
	assert.True(t, r.Report().Cancelled)
}

func TestResolveGraph_DefaultCountry(t *testing.T) {
	cache := openCache(t, filepath.Join(t.TempDir(), "geo_cache.csv"),
		model.CacheEntry{Key: "springfield, illinois, united states", Latitude: 39.8, Longitude: -89.6})
	client := &fakeClient{}
	r := New(cache, client, fastOpts())
	g := loadGraph(t, "0 @I1@ INDI\n1 BIRT\n2 PLAC Springfield, Illinois\n")

	norm := place.NewNormalizer(place.GeoConfig{DefaultCountry: "United States"}, nil)
	require.NoError(t, r.ResolveGraph(context.Background(), g, norm))

	p := g.Events[0].Place
	assert.Equal(t, "springfield, illinois, united states", p.Normalized)
	require.True(t, p.Resolved())
	assert.Empty(t, client.calls)
}
