package bvh

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"polyindex/internal/models"
)

// Exhaustive answers the same queries as Tree by scanning every edge.
// It visits edges in the order Tree traverses them, so both agree on
// tie-breaks, and serves as the reference the tree is checked against.
type Exhaustive struct {
	edges []models.Edge
}

// NewExhaustive flattens the polygons into one edge list
func NewExhaustive(polygons ...[]models.Edge) (*Exhaustive, error) {
	var edges []models.Edge
	for _, p := range polygons {
		edges = append(edges, p...)
	}
	if len(edges) == 0 {
		return nil, models.ErrEmptyTree
	}
	return &Exhaustive{edges: edges}, nil
}

// EdgeCount returns the number of edges scanned per query
func (x *Exhaustive) EdgeCount() int {
	return len(x.edges)
}

func (x *Exhaustive) DistanceToEdge(p orb.Point) float64 {
	best := math.Inf(1)
	for _, e := range x.edges {
		if d := planar.DistanceFromSegmentSquared(e.P1, e.P2, p); d < best {
			best = d
		}
	}
	return math.Sqrt(best)
}

func (x *Exhaustive) DistanceToVertex(p orb.Point) float64 {
	_, d := x.ClosestVertex(p)
	return d
}

func (x *Exhaustive) ClosestVertex(p orb.Point) (int, float64) {
	best := math.Inf(1)
	idx := -1
	for _, e := range x.edges {
		visitVertex(e.P1, e.Idx1, p, &best, &idx)
		visitVertex(e.P2, e.Idx2, p, &best, &idx)
	}
	return idx, math.Sqrt(best)
}

func (x *Exhaustive) Contains(p orb.Point) bool {
	inside := false
	for _, e := range x.edges {
		if crosses(e, p) {
			inside = !inside
		}
	}
	return inside
}
