package resolve

import (
	"context"
	"time"

	"github.com/sells-group/gedmap/internal/model"
	"github.com/sells-group/gedmap/internal/place"
)

// ResolveGraph normalizes and resolves every event place of g in event
// order. Manual coordinates attach without a lookup. When ctx is cancelled
// the remaining places are marked cancelled and the call still returns nil;
// only a failed cache write is returned as an error.
func (r *Resolver) ResolveGraph(ctx context.Context, g *model.Graph, norm *place.Normalizer) error {
	for _, p := range g.PlaceRefs() {
		p.Normalized = norm.Normalize(p.Raw)
		r.report.Places++

		if p.Manual != nil {
			c := *p.Manual
			c.Source = model.SourceManual
			p.Coordinate = &c
			r.report.BySource[model.SourceManual]++
			continue
		}

		if ctx.Err() != nil {
			r.report.Cancelled = true
			r.markUnresolved(p, &Failure{Key: p.Normalized, Reason: ReasonCancelled, Err: ctx.Err()})
			continue
		}

		res, err := r.Resolve(ctx, p.Normalized)
		if err != nil {
			return err
		}
		if !res.Resolved() {
			if res.Failure.Reason == ReasonCancelled {
				r.report.Cancelled = true
			}
			r.markUnresolved(p, res.Failure)
			continue
		}
		p.Coordinate = res.Coordinate
		p.MatchedKey = res.MatchedKey
		r.report.BySource[res.Coordinate.Source]++
	}
	return nil
}

func (r *Resolver) markUnresolved(p *model.PlaceRef, f *Failure) {
	p.Unresolved = string(f.Reason)
	r.report.Unresolved++
	for _, seen := range r.report.Failures {
		if seen.Key == f.Key {
			return
		}
	}
	r.report.Failures = append(r.report.Failures, *f)
}

// Report returns a snapshot of the run so far.
func (r *Resolver) Report() Report {
	out := r.report
	out.FinishedAt = time.Now().UTC()
	out.BySource = make(map[model.Source]int, len(r.report.BySource))
	for k, v := range r.report.BySource {
		out.BySource[k] = v
	}
	out.Failures = append([]Failure(nil), r.report.Failures...)
	return out
}
