package bvh

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"polyindex/internal/models"
)

// All searches work on squared distances and take the square root once at
// the end. A subtree is skipped when the squared distance from the query
// point to its box is already >= the best found so far; nothing inside the
// box can be closer than the box itself.

// DistanceToEdge returns the distance from p to the closest point on any edge.
func (t *Tree) DistanceToEdge(p orb.Point) float64 {
	best := math.Inf(1)
	t.root.nearestEdge(p, &best)
	return math.Sqrt(best)
}

// DistanceToVertex returns the distance from p to the closest polygon vertex.
func (t *Tree) DistanceToVertex(p orb.Point) float64 {
	best := math.Inf(1)
	idx := -1
	t.root.nearestVertex(p, &best, &idx)
	return math.Sqrt(best)
}

// ClosestVertex returns the global index of the vertex closest to p and its
// distance. When several vertices are equally close the first one met in
// traversal order wins: edges in build order, P1 before P2.
func (t *Tree) ClosestVertex(p orb.Point) (int, float64) {
	best := math.Inf(1)
	idx := -1
	t.root.nearestVertex(p, &best, &idx)
	return idx, math.Sqrt(best)
}

// Contains reports whether p lies inside the polygons under the even-odd rule.
// See crosses for how points on the boundary are decided.
func (t *Tree) Contains(p orb.Point) bool {
	inside := false
	t.root.crossings(p, &inside)
	return inside
}

func (n *Node) nearestEdge(p orb.Point, best *float64) {
	if boxDistanceSquared(n.bound, p) >= *best {
		return
	}
	switch n.kind {
	case Leaf:
		for _, e := range n.edges {
			if d := planar.DistanceFromSegmentSquared(e.P1, e.P2, p); d < *best {
				*best = d
			}
		}
	case Interior:
		for _, c := range n.children {
			c.nearestEdge(p, best)
		}
	}
}

func (n *Node) nearestVertex(p orb.Point, best *float64, idx *int) {
	if boxDistanceSquared(n.bound, p) >= *best {
		return
	}
	switch n.kind {
	case Leaf:
		for _, e := range n.edges {
			visitVertex(e.P1, e.Idx1, p, best, idx)
			visitVertex(e.P2, e.Idx2, p, best, idx)
		}
	case Interior:
		for _, c := range n.children {
			c.nearestVertex(p, best, idx)
		}
	}
}

func (n *Node) crossings(p orb.Point, inside *bool) {
	// an edge can only count when min(y) <= py < max(y)
	if p[1] < n.bound.Min[1] || p[1] >= n.bound.Max[1] {
		return
	}
	switch n.kind {
	case Leaf:
		for _, e := range n.edges {
			if crosses(e, p) {
				*inside = !*inside
			}
		}
	case Interior:
		for _, c := range n.children {
			c.crossings(p, inside)
		}
	}
}

// visitVertex replaces the best candidate only on a strictly smaller distance.
func visitVertex(v orb.Point, vi int, p orb.Point, best *float64, idx *int) {
	if d := planar.DistanceSquared(v, p); d < *best {
		*best = d
		*idx = vi
	}
}

// boxDistanceSquared is the squared distance from p to the nearest point of b,
// zero when p is inside b.
func boxDistanceSquared(b orb.Bound, p orb.Point) float64 {
	dx := max(0, b.Min[0]-p[0], p[0]-b.Max[0])
	dy := max(0, b.Min[1]-p[1], p[1]-b.Max[1])
	return dx*dx + dy*dy
}

// crosses reports whether a ray from p towards +x crosses e.
//
// The edge's y-span is half-open: it counts when exactly one endpoint has
// y <= py, so a ray through a shared vertex is counted once and horizontal
// edges never count. The crossing must lie strictly right of p, decided by
// the sign of the orientation of p against the edge. A point exactly on an
// edge is therefore inside on left and bottom boundaries and outside on
// right and top boundaries.
func crosses(e models.Edge, p orb.Point) bool {
	a, b := e.P1, e.P2
	if (a[1] <= p[1]) == (b[1] <= p[1]) {
		return false
	}
	orient := (b[0]-a[0])*(p[1]-a[1]) - (p[0]-a[0])*(b[1]-a[1])
	if b[1] > a[1] {
		return orient > 0
	}
	return orient < 0
}
