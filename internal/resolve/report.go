package resolve

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/gedmap/internal/model"
)

// Report aggregates one run's resolution outcomes.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	// Places counts every non-blank PlaceRef visited.
	Places     int
	BySource   map[model.Source]int
	Unresolved int

	// Lookups counts keys sent to the geocoder; LiveRequests counts HTTP
	// dispatches, retries included.
	Lookups      int
	LiveRequests int

	// Failures holds one entry per distinct unresolved key, in first-seen
	// order.
	Failures  []Failure
	Cancelled bool
}

// ByReason counts failures per reason.
func (r Report) ByReason() map[Reason]int {
	out := make(map[Reason]int)
	for _, f := range r.Failures {
		out[f.Reason]++
	}
	return out
}

// Log writes the report summary at Info.
func (r Report) Log() {
	reasons := r.ByReason()
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	fields := []zap.Field{
		zap.String("run_id", r.RunID),
		zap.Int("places", r.Places),
		zap.Int("manual", r.BySource[model.SourceManual]),
		zap.Int("cache_exact", r.BySource[model.SourceCacheExact]),
		zap.Int("cache_fuzzy", r.BySource[model.SourceCacheFuzzy]),
		zap.Int("geocoded", r.BySource[model.SourceGeocoded]),
		zap.Int("unresolved", r.Unresolved),
		zap.Int("lookups", r.Lookups),
		zap.Int("live_requests", r.LiveRequests),
		zap.Bool("cancelled", r.Cancelled),
		zap.Duration("elapsed", r.FinishedAt.Sub(r.StartedAt)),
	}
	for _, k := range keys {
		fields = append(fields, zap.Int("failed_"+k, reasons[Reason(k)]))
	}
	zap.L().Info("resolve: run complete", fields...)
}
