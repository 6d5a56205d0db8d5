// Package resolve attaches coordinates to normalized place keys, trying the
// cache, then a fuzzy match over cached keys, then one live geocoder request.
package resolve

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/gedmap/internal/cachestore"
	"github.com/sells-group/gedmap/internal/model"
	"github.com/sells-group/gedmap/internal/place"
	"github.com/sells-group/gedmap/internal/resilience"
	"github.com/sells-group/gedmap/pkg/geocode"
)

// DefaultThreshold is the minimum fuzzy score accepted as a match.
const DefaultThreshold = 0.90

// Options are the run-scoped resolver settings.
type Options struct {
	// Fuzzy enables matching against similar cached keys.
	Fuzzy bool
	// Threshold is the minimum accepted similarity in [0,1].
	Threshold float64
	// Scorer rates key similarity. Defaults to place.Similarity.
	Scorer place.Scorer

	// MinInterval is the minimum spacing between live requests, retries
	// included. Zero disables spacing.
	MinInterval time.Duration
	Retry       resilience.RetryConfig
	Breaker     resilience.CircuitBreakerConfig

	// AlwaysGeocode skips the cache and fuzzy steps; results are still
	// written to the cache.
	AlwaysGeocode bool

	// ProgressEvery logs progress after this many live lookups.
	ProgressEvery int
}

// Resolution is the outcome of resolving one key. Exactly one of Coordinate
// and Failure is set.
type Resolution struct {
	Key        string
	Coordinate *model.Coordinate
	MatchedKey string
	Score      float64
	Failure    *Failure
}

// Resolved reports whether a coordinate was found.
func (r Resolution) Resolved() bool { return r.Coordinate != nil }

// Resolver owns the per-run working sets and the politeness limiter. It is
// not safe for concurrent use; run it on one goroutine so dispatch order
// follows call order.
type Resolver struct {
	cache   *cachestore.Cache
	client  geocode.Client
	opts    Options
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker

	// geocoded and failed hold keys already sent live this run.
	geocoded map[string]model.Coordinate
	failed   map[string]*Failure

	report Report
}

// New creates a Resolver over cache and client.
func New(cache *cachestore.Cache, client geocode.Client, opts Options) *Resolver {
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Scorer == nil {
		opts.Scorer = place.Similarity{}
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 20
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.Breaker.OnStateChange == nil && client != nil {
		opts.Breaker.OnStateChange = resilience.StateLogger(client.Name())
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	return &Resolver{
		cache:    cache,
		client:   client,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
		breaker:  resilience.NewCircuitBreaker(opts.Breaker),
		geocoded: make(map[string]model.Coordinate),
		failed:   make(map[string]*Failure),
		report:   Report{RunID: uuid.NewString(), StartedAt: time.Now().UTC(), BySource: make(map[model.Source]int)},
	}
}

// Resolve returns a coordinate for key. Unresolved places are reported in
// the Resolution; the error is reserved for cache writes that fail.
func (r *Resolver) Resolve(ctx context.Context, key string) (Resolution, error) {
	res := Resolution{Key: key}
	if key == "" {
		res.Failure = &Failure{Key: key, Reason: ReasonNotFound}
		return res, nil
	}

	if !r.opts.AlwaysGeocode {
		if e, ok := r.cache.Get(key); ok {
			c := e.Coordinate(model.SourceCacheExact)
			res.Coordinate = &c
			zap.L().Debug("resolve: cache hit", zap.String("key", key))
			return res, nil
		}
		if r.opts.Fuzzy {
			if match, score, ok := r.fuzzyMatch(key); ok {
				e, _ := r.cache.Get(match)
				c := e.Coordinate(model.SourceCacheFuzzy)
				res.Coordinate = &c
				res.MatchedKey = match
				res.Score = score
				zap.L().Debug("resolve: fuzzy hit",
					zap.String("key", key),
					zap.String("matched", match),
					zap.Float64("score", score),
				)
				return res, nil
			}
		}
	}

	if c, ok := r.geocoded[key]; ok {
		res.Coordinate = &c
		return res, nil
	}
	if f, ok := r.failed[key]; ok {
		res.Failure = f
		return res, nil
	}
	if r.client == nil {
		res.Failure = &Failure{Key: key, Reason: ReasonServiceError, Err: eris.New("resolve: no geocoder configured")}
		return res, nil
	}

	return r.live(ctx, key)
}

// fuzzyMatch scans the cache for the best key at or above the threshold.
// Ties go to the smaller edit distance, then the lexicographically smaller
// key; Keys is sorted, so the first of equals wins.
func (r *Resolver) fuzzyMatch(key string) (string, float64, bool) {
	var (
		best      string
		bestScore float64
		bestDist  int
		found     bool
	)
	for _, k := range r.cache.Keys() {
		score := r.opts.Scorer.Score(key, k)
		if score < r.opts.Threshold {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, bestDist, found = k, score, place.Levenshtein(key, k), true
			continue
		}
		if score == bestScore {
			if d := place.Levenshtein(key, k); d < bestDist {
				best, bestDist = k, d
			}
		}
	}
	return best, bestScore, found
}

func (r *Resolver) live(ctx context.Context, key string) (Resolution, error) {
	res := Resolution{Key: key}

	dispatched := 0
	retry := r.opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(r.client.Name(), key)
	}

	result, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*geocode.Result, error) {
		return resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*geocode.Result, error) {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "resolve: wait for request slot")
			}
			dispatched++
			r.report.LiveRequests++
			return r.client.Geocode(ctx, key)
		})
	})
	if dispatched > 0 {
		r.report.Lookups++
		if r.report.Lookups%r.opts.ProgressEvery == 0 {
			zap.L().Info("resolve: progress",
				zap.Int("lookups", r.report.Lookups),
				zap.Int("geocoded", r.report.BySource[model.SourceGeocoded]),
				zap.Int("unresolved", r.report.Unresolved),
			)
		}
	}

	switch {
	case err != nil:
		res.Failure = &Failure{Key: key, Reason: classify(ctx, err), Err: err}
	case result == nil || !result.Matched:
		res.Failure = &Failure{Key: key, Reason: ReasonNotFound}
	default:
		c := model.Coordinate{Latitude: result.Latitude, Longitude: result.Longitude, Source: model.SourceGeocoded}
		if !c.Valid() {
			res.Failure = &Failure{Key: key, Reason: ReasonServiceError,
				Err: eris.Errorf("resolve: %s returned out-of-range coordinate", r.client.Name())}
			break
		}
		res.Coordinate = &c
		r.geocoded[key] = c
		// The lookup already happened; keep its result even if the run was
		// interrupted while it was in flight.
		err := r.cache.Upsert(context.WithoutCancel(ctx), model.CacheEntry{
			Key:       key,
			Latitude:  c.Latitude,
			Longitude: c.Longitude,
			Source:    model.SourceGeocoded,
			Address:   result.Address,
		})
		if err != nil {
			return res, eris.Wrapf(err, "resolve: store %q", key)
		}
		return res, nil
	}

	// Only keys that reached the geocoder count as attempted; a request
	// never dispatched (open circuit, cancelled run) may be tried again.
	if dispatched > 0 {
		r.failed[key] = res.Failure
	}
	zap.L().Debug("resolve: unresolved",
		zap.String("key", key),
		zap.String("reason", string(res.Failure.Reason)),
		zap.Error(res.Failure.Err),
	)
	return res, nil
}
