package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

var (
	ErrLengthMismatch  = errors.New("x and y coordinate arrays differ in length")
	ErrTooFewPoints    = errors.New("polygon needs at least 3 points")
	ErrBranchingFactor = errors.New("branching factor must be at least 1")
	ErrEmptyTree       = errors.New("tree has no edges")
	ErrNonFinite       = errors.New("coordinate is NaN or infinite")
)

// Edge is an oriented segment P1 -> P2 between two polygon vertices.
// Idx1 and Idx2 are global vertex indices shared by every polygon in a layout.
type Edge struct {
	P1   orb.Point `json:"p1"`
	P2   orb.Point `json:"p2"`
	Idx1 int       `json:"idx1"`
	Idx2 int       `json:"idx2"`
}

// Bound returns the smallest box holding both endpoints.
func (e Edge) Bound() orb.Bound {
	return orb.Bound{Min: e.P1, Max: e.P1}.Extend(e.P2)
}

// Batch is a set of query points stored as parallel coordinate arrays
type Batch struct {
	Xs []float64 `json:"xs"`
	Ys []float64 `json:"ys"`
}

// Validate checks that the coordinate arrays pair up
func (b Batch) Validate() error {
	if len(b.Xs) != len(b.Ys) {
		return fmt.Errorf("%w: %d xs, %d ys", ErrLengthMismatch, len(b.Xs), len(b.Ys))
	}
	for i := range b.Xs {
		if !isFinite(b.Xs[i]) || !isFinite(b.Ys[i]) {
			return fmt.Errorf("%w: point %d (%v, %v)", ErrNonFinite, i, b.Xs[i], b.Ys[i])
		}
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Len returns the number of query points
func (b Batch) Len() int {
	return len(b.Xs)
}

// Point returns the i-th query point
func (b Batch) Point(i int) orb.Point {
	return orb.Point{b.Xs[i], b.Ys[i]}
}

// QueryKind names one of the four batch queries
type QueryKind string

const (
	KindEdge     QueryKind = "edge"
	KindVertex   QueryKind = "vertex"
	KindClosest  QueryKind = "closest"
	KindContains QueryKind = "contains"
)

// AllKinds lists every query kind in output order
var AllKinds = []QueryKind{KindEdge, KindVertex, KindClosest, KindContains}

// ParseQueryKind converts a name into a QueryKind
func ParseQueryKind(s string) (QueryKind, error) {
	switch k := QueryKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindEdge, KindVertex, KindClosest, KindContains:
		return k, nil
	}
	return "", fmt.Errorf("unknown query kind %q (want edge, vertex, closest or contains)", s)
}

// ParseQueryKinds parses a list of names, returning AllKinds when the list is empty
func ParseQueryKinds(names []string) ([]QueryKind, error) {
	if len(names) == 0 {
		return AllKinds, nil
	}
	kinds := make([]QueryKind, 0, len(names))
	seen := make(map[QueryKind]bool)
	for _, n := range names {
		k, err := ParseQueryKind(n)
		if err != nil {
			return nil, err
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Results holds one output array per query kind, index-aligned with the batch.
// Arrays for kinds that were not requested are nil.
type Results struct {
	DistanceEdge   []float64 `json:"distance_edge,omitempty"`
	DistanceVertex []float64 `json:"distance_vertex,omitempty"`
	ClosestVertex  []int     `json:"closest_vertex,omitempty"`
	Contains       []bool    `json:"contains,omitempty"`
}

// PolygonRecord describes one placed polygon of a stored set
type PolygonRecord struct {
	Position    int     `json:"position"`
	Source      string  `json:"source,omitempty"`
	DX          float64 `json:"dx"`
	DY          float64 `json:"dy"`
	IndexOffset int     `json:"index_offset"`
	NumVertices int     `json:"num_vertices"`
}

// PolygonSet is a named, persisted polygon layout
type PolygonSet struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Branching   int              `json:"branching"`
	NumVertices int              `json:"num_vertices"`
	Polygons    []*PolygonRecord `json:"polygons,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// QueryRun records one executed batch
type QueryRun struct {
	ID         string        `json:"id"`
	SetName    string        `json:"set"`
	Kinds      []QueryKind   `json:"kinds"`
	NumPoints  int           `json:"num_points"`
	Exhaustive bool          `json:"exhaustive"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}
