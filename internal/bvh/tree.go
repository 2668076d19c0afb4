package bvh

import (
	"fmt"

	"polyindex/internal/models"
)

// GroupEdges wraps consecutive runs of at most k edges into leaf nodes.
// Grouping is positional: the order of edges decides which share a leaf.
func GroupEdges(k int, edges []models.Edge) ([]*Node, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", models.ErrBranchingFactor, k)
	}
	nodes := make([]*Node, 0, (len(edges)+k-1)/k)
	for start := 0; start < len(edges); start += k {
		end := min(start+k, len(edges))
		chunk := make([]models.Edge, end-start)
		copy(chunk, edges[start:end])
		nodes = append(nodes, newLeaf(chunk))
	}
	return nodes, nil
}

// GroupNodes wraps consecutive runs of at most k nodes into parent nodes,
// producing the next level up.
func GroupNodes(k int, nodes []*Node) ([]*Node, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", models.ErrBranchingFactor, k)
	}
	parents := make([]*Node, 0, (len(nodes)+k-1)/k)
	for start := 0; start < len(nodes); start += k {
		end := min(start+k, len(nodes))
		chunk := make([]*Node, end-start)
		copy(chunk, nodes[start:end])
		parents = append(parents, newInterior(chunk))
	}
	return parents, nil
}

// Tree is an immutable bounding-volume hierarchy over polygon edges.
// It is safe for concurrent queries.
type Tree struct {
	root      *Node
	k         int
	edgeCount int
}

// Build groups the edges of every polygon into leaves of at most k edges
// and then groups nodes level by level until one root remains. Leaves never
// span two polygons. With k == 1 levels are paired so the reduction ends.
func Build(k int, polygons ...[]models.Edge) (*Tree, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", models.ErrBranchingFactor, k)
	}

	var nodes []*Node
	edgeCount := 0
	for _, edges := range polygons {
		leaves, err := GroupEdges(k, edges)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, leaves...)
		edgeCount += len(edges)
	}
	if len(nodes) == 0 {
		return nil, models.ErrEmptyTree
	}

	fanout := max(k, 2)
	for len(nodes) > 1 {
		var err error
		nodes, err = GroupNodes(fanout, nodes)
		if err != nil {
			return nil, err
		}
	}

	return &Tree{root: nodes[0], k: k, edgeCount: edgeCount}, nil
}

// Root returns the root node
func (t *Tree) Root() *Node {
	return t.root
}

// BranchingFactor returns the k the tree was built with
func (t *Tree) BranchingFactor() int {
	return t.k
}

// EdgeCount returns the number of edges stored in the leaves
func (t *Tree) EdgeCount() int {
	return t.edgeCount
}

// Depth returns the number of levels, counting the root level as 1
func (t *Tree) Depth() int {
	depth := 0
	t.root.walk(1, func(_ *Node, d int) {
		depth = max(depth, d)
	})
	return depth
}

// NodeCount returns the total number of nodes
func (t *Tree) NodeCount() int {
	count := 0
	t.root.walk(1, func(*Node, int) { count++ })
	return count
}

// Edges returns every edge in traversal order
func (t *Tree) Edges() []models.Edge {
	edges := make([]models.Edge, 0, t.edgeCount)
	t.root.walk(1, func(n *Node, _ int) {
		edges = append(edges, n.edges...)
	})
	return edges
}

// Validate walks the tree and checks that every box covers its members
// and that no node is empty or wider than allowed.
func (t *Tree) Validate() error {
	fanout := max(t.k, 2)
	var err error
	t.root.walk(1, func(n *Node, depth int) {
		if err != nil {
			return
		}
		switch n.kind {
		case Leaf:
			if len(n.edges) == 0 || len(n.edges) > t.k {
				err = fmt.Errorf("leaf at depth %d holds %d edges (k=%d)", depth, len(n.edges), t.k)
				return
			}
			for _, e := range n.edges {
				if !n.bound.Contains(e.P1) || !n.bound.Contains(e.P2) {
					err = fmt.Errorf("leaf at depth %d does not cover edge %d-%d", depth, e.Idx1, e.Idx2)
					return
				}
			}
		case Interior:
			if len(n.children) == 0 || len(n.children) > fanout {
				err = fmt.Errorf("interior node at depth %d holds %d children (k=%d)", depth, len(n.children), t.k)
				return
			}
			for i, c := range n.children {
				if !containsBound(n.bound, c.bound) {
					err = fmt.Errorf("interior node at depth %d does not cover child %d", depth, i)
					return
				}
			}
		default:
			err = fmt.Errorf("node at depth %d has unknown kind %v", depth, n.kind)
		}
	})
	return err
}
