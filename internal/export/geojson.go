// Package export writes resolved genealogy graphs as GeoJSON.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/gedmap/internal/model"
)

// Mode selects what each feature represents.
type Mode string

const (
	// ModeEvents emits one point per event whose place resolved.
	ModeEvents Mode = "events"
	// ModeIndividuals emits one point per individual at their reference
	// location (birth, then marriages, then death).
	ModeIndividuals Mode = "individuals"
)

// Events builds a feature per resolved event across graphs, in arena order.
func Events(graphs ...*model.Graph) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, g := range graphs {
		for i := range g.Events {
			e := &g.Events[i]
			if e.Place == nil || !e.Place.Resolved() {
				continue
			}
			props := map[string]any{
				"source_file": g.Source,
				"kind":        string(e.Kind),
				"tag":         e.Tag,
				"place":       e.Place.Raw,
				"key":         e.Place.Normalized,
				"source":      string(e.Place.Coordinate.Source),
			}
			if e.Date != "" {
				props["date"] = e.Date
			}
			if y := e.Year(); y != "" {
				props["year"] = y
			}
			if e.Place.MatchedKey != "" {
				props["matched_key"] = e.Place.MatchedKey
			}
			addOwner(props, g, e.Owner)
			fc.Features = append(fc.Features, &geojson.Feature{
				ID:         fmt.Sprintf("%s#%d", g.Source, i),
				Geometry:   point(*e.Place.Coordinate),
				Properties: props,
			})
		}
	}
	fc.BBox = bounds(fc.Features)
	return fc
}

// Individuals builds a feature per individual with a reference location.
func Individuals(graphs ...*model.Graph) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, g := range graphs {
		for i := range g.Individuals {
			id := model.IndividualID(i)
			c := g.ReferenceCoordinate(id)
			if c == nil {
				continue
			}
			ind := &g.Individuals[i]
			props := map[string]any{
				"source_file": g.Source,
				"xref":        ind.XRef,
				"name":        ind.Name.Full,
				"source":      string(c.Source),
			}
			if ind.Sex != "" {
				props["sex"] = ind.Sex
			}
			fc.Features = append(fc.Features, &geojson.Feature{
				ID:         fmt.Sprintf("%s#%s", g.Source, ind.XRef),
				Geometry:   point(*c),
				Properties: props,
			})
		}
	}
	fc.BBox = bounds(fc.Features)
	return fc
}

// Build returns the collection for mode. An empty mode means events.
func Build(mode Mode, graphs ...*model.Graph) (*geojson.FeatureCollection, error) {
	switch mode {
	case "", ModeEvents:
		return Events(graphs...), nil
	case ModeIndividuals:
		return Individuals(graphs...), nil
	default:
		return nil, eris.Errorf("export: unknown mode %q", mode)
	}
}

// Write encodes fc to w.
func Write(w io.Writer, fc *geojson.FeatureCollection) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "export: marshal geojson")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return eris.Wrap(err, "export: write geojson")
	}
	return nil
}

// WriteFile encodes fc to path, replacing any existing file.
func WriteFile(path string, fc *geojson.FeatureCollection) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := Write(f, fc); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

func addOwner(props map[string]any, g *model.Graph, o model.Owner) {
	if ind := g.Individual(o.Individual); ind != nil {
		props["individual"] = ind.XRef
		props["name"] = ind.Name.Full
		return
	}
	if fam := g.Family(o.Family); fam != nil {
		props["family"] = fam.XRef
		var names []string
		for _, id := range []model.IndividualID{fam.Husband, fam.Wife} {
			if ind := g.Individual(id); ind != nil {
				names = append(names, ind.Name.Full)
			}
		}
		if len(names) > 0 {
			props["spouses"] = names
		}
	}
}

// point uses GeoJSON's longitude, latitude axis order.
func point(c model.Coordinate) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{c.Longitude, c.Latitude})
}

func bounds(features []*geojson.Feature) *geom.Bounds {
	if len(features) == 0 {
		return nil
	}
	b := geom.NewBounds(geom.XY)
	for _, f := range features {
		b.Extend(f.Geometry)
	}
	return b
}
