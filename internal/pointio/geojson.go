package pointio

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Outline is the outer ring of one polygon read from GeoJSON
type Outline struct {
	Name string
	Xs   []float64
	Ys   []float64
}

// ReadGeoJSON loads every polygon outline from a GeoJSON document.
// FeatureCollections, single Features and bare geometries are accepted.
// Only the outer ring of each Polygon or MultiPolygon member is kept, and the
// closing vertex that repeats the first one is dropped.
func ReadGeoJSON(path string) ([]Outline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geojson: %w", err)
	}
	outlines, err := ParseGeoJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return outlines, nil
}

// ParseGeoJSON is ReadGeoJSON over an in-memory document
func ParseGeoJSON(data []byte) ([]Outline, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid geojson: %w", err)
	}

	var outlines []Outline
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		for i, f := range fc.Features {
			name := f.Properties.MustString("name", fmt.Sprintf("feature-%d", i))
			outlines = appendOutlines(outlines, name, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		outlines = appendOutlines(outlines, f.Properties.MustString("name", "feature-0"), f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, err
		}
		outlines = appendOutlines(outlines, head.Type, g.Geometry())
	}

	if len(outlines) == 0 {
		return nil, fmt.Errorf("no polygons found")
	}
	return outlines, nil
}

func appendOutlines(out []Outline, name string, g orb.Geometry) []Outline {
	switch g := g.(type) {
	case orb.Polygon:
		if len(g) > 0 {
			out = append(out, ringOutline(name, g[0]))
		}
	case orb.MultiPolygon:
		for i, p := range g {
			if len(p) > 0 {
				out = append(out, ringOutline(fmt.Sprintf("%s/%d", name, i), p[0]))
			}
		}
	case orb.Ring:
		out = append(out, ringOutline(name, g))
	case orb.Collection:
		for _, member := range g {
			out = appendOutlines(out, name, member)
		}
	}
	return out
}

func ringOutline(name string, r orb.Ring) Outline {
	if len(r) > 1 && r.Closed() {
		r = r[:len(r)-1]
	}
	o := Outline{Name: name, Xs: make([]float64, len(r)), Ys: make([]float64, len(r))}
	for i, p := range r {
		o.Xs[i] = p.X()
		o.Ys[i] = p.Y()
	}
	return o
}
