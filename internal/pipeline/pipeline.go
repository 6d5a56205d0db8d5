// Package pipeline runs GEDMAP's per-run flow: parse every input file,
// normalize its places and resolve them against one shared cache.
package pipeline

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/gedmap/internal/cachestore"
	"github.com/sells-group/gedmap/internal/config"
	"github.com/sells-group/gedmap/internal/gedcom"
	"github.com/sells-group/gedmap/internal/model"
	"github.com/sells-group/gedmap/internal/place"
	"github.com/sells-group/gedmap/internal/resilience"
	"github.com/sells-group/gedmap/internal/resolve"
	"github.com/sells-group/gedmap/pkg/geocode"
)

// Options configures one run.
type Options struct {
	Places  config.PlacesConfig
	Resolve resolve.Options
	// Parallelism bounds concurrent file parsing. Zero means GOMAXPROCS.
	Parallelism int
}

// File is one parsed input and the normalizer built for it.
type File struct {
	Path        string
	Graph       *model.Graph
	Diagnostics *gedcom.Diagnostics
	Normalizer  *place.Normalizer
}

// Result is the output of a run.
type Result struct {
	Files  []*File
	Report resolve.Report
}

// Pipeline parses and resolves GEDCOM files against a cache.
type Pipeline struct {
	cache  *cachestore.Cache
	client geocode.Client
	opts   Options
}

// New creates a Pipeline over an open cache and a geocoder.
func New(cache *cachestore.Cache, client geocode.Client, opts Options) *Pipeline {
	return &Pipeline{cache: cache, client: client, opts: opts}
}

// OptionsFromConfig maps the loaded configuration onto run options.
func OptionsFromConfig(cfg *config.Config) Options {
	retry := resilience.FromRetryConfig(cfg.Geocode.MaxAttempts, 0)
	return Options{
		Places: cfg.Places,
		Resolve: resolve.Options{
			Fuzzy:         cfg.Fuzzy.Enabled,
			Threshold:     cfg.Fuzzy.Threshold,
			Scorer:        place.Similarity{CountryWeight: cfg.Fuzzy.CountryWeight},
			MinInterval:   cfg.Geocode.MinInterval(),
			Retry:         retry,
			Breaker:       resilience.FromCircuitConfig(cfg.Geocode.BreakerThreshold, cfg.Geocode.BreakerReset()),
			AlwaysGeocode: cfg.Geocode.AlwaysGeocode,
		},
	}
}

// BackendConfig maps the cache section onto a backend selection.
func BackendConfig(cfg config.CacheConfig) cachestore.Config {
	return cachestore.Config{Driver: cfg.Driver, Path: cfg.Path, DatabaseURL: cfg.DatabaseURL}
}

// GeocoderConfig maps the geocode section onto a provider selection.
func GeocoderConfig(cfg config.GeocodeConfig) geocode.Config {
	return geocode.Config{
		Provider:  cfg.Provider,
		BaseURL:   cfg.BaseURL,
		UserAgent: cfg.UserAgent,
		APIKey:    cfg.GoogleAPIKey,
		Timeout:   cfg.Timeout(),
	}
}

// AltTablePath returns the alternate-place table path for an input file:
// the input path without its extension plus suffix.
func AltTablePath(input, suffix string) string {
	if suffix == "" {
		suffix = "_alt.csv"
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + suffix
}

// Parse loads every path in parallel. Each file is read by one goroutine;
// an unreadable input or alternate table fails the whole call.
func (p *Pipeline) Parse(ctx context.Context, paths []string) ([]*File, error) {
	geo, err := place.LoadGeoConfig(p.opts.Places.GeoConfigPath)
	if err != nil {
		return nil, err
	}
	geo = geo.WithDefaultCountry(p.opts.Places.DefaultCountry)

	limit := p.opts.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	files := make([]*File, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range paths {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			f, err := p.parseFile(path, geo)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse")
	}
	return files, nil
}

func (p *Pipeline) parseFile(path string, geo place.GeoConfig) (*File, error) {
	start := time.Now()
	graph, diag, err := gedcom.LoadFile(path)
	if err != nil {
		return nil, err
	}

	var alt place.AltTable
	if p.opts.Places.UseAltPlaces {
		alt, err = place.LoadAltTable(AltTablePath(path, p.opts.Places.AltSuffix))
		if err != nil {
			return nil, err
		}
	}

	zap.L().Info("pipeline: parsed file",
		zap.String("file", path),
		zap.Int("individuals", len(graph.Individuals)),
		zap.Int("families", len(graph.Families)),
		zap.Int("events", len(graph.Events)),
		zap.Int("alt_places", len(alt)),
		zap.Int("anomalies", diag.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &File{Path: path, Graph: graph, Diagnostics: diag, Normalizer: place.NewNormalizer(geo, alt)}, nil
}

// Run parses paths and then resolves their places in input order on the
// calling goroutine. Cancellation during resolution is reported in the
// Result, not returned.
func (p *Pipeline) Run(ctx context.Context, paths []string) (*Result, error) {
	files, err := p.Parse(ctx, paths)
	if err != nil {
		return nil, err
	}

	r := resolve.New(p.cache, p.client, p.opts.Resolve)
	for _, f := range files {
		if err := r.ResolveGraph(ctx, f.Graph, f.Normalizer); err != nil {
			return nil, eris.Wrapf(err, "pipeline: resolve %s", f.Path)
		}
	}

	rep := r.Report()
	rep.Log()
	return &Result{Files: files, Report: rep}, nil
}

// Execute opens the configured cache, runs paths and flushes the cache on
// every exit path.
func Execute(ctx context.Context, cfg *config.Config, client geocode.Client, paths []string) (*Result, error) {
	backend, err := cachestore.NewBackend(ctx, BackendConfig(cfg.Cache))
	if err != nil {
		return nil, err
	}

	var res *Result
	err = cachestore.Use(ctx, backend, func(cache *cachestore.Cache) error {
		var runErr error
		res, runErr = New(cache, client, OptionsFromConfig(cfg)).Run(ctx, paths)
		return runErr
	}, cachestore.WithIncremental(cfg.Cache.Incremental))
	if err != nil {
		return nil, err
	}
	return res, nil
}
