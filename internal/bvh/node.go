// Package bvh organizes polygon edges into a bounding-volume tree and answers
// nearest-edge, nearest-vertex and containment queries against it.
package bvh

import (
	"fmt"

	"github.com/paulmach/orb"

	"polyindex/internal/models"
)

// Kind tells a leaf node (owning edges) from an interior node (owning nodes)
type Kind int

const (
	Leaf Kind = iota
	Interior
)

func (k Kind) String() string {
	switch k {
	case Leaf:
		return "leaf"
	case Interior:
		return "interior"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Node is one box of the tree. A leaf holds edges, an interior node holds
// child nodes; exactly one of the two slices is set. Nodes never change
// after construction.
type Node struct {
	kind     Kind
	bound    orb.Bound
	edges    []models.Edge
	children []*Node
}

func newLeaf(edges []models.Edge) *Node {
	b := edges[0].Bound()
	for _, e := range edges[1:] {
		b = b.Union(e.Bound())
	}
	return &Node{kind: Leaf, bound: b, edges: edges}
}

func newInterior(children []*Node) *Node {
	b := children[0].bound
	for _, c := range children[1:] {
		b = b.Union(c.bound)
	}
	return &Node{kind: Interior, bound: b, children: children}
}

// Kind returns whether the node is a leaf or an interior node
func (n *Node) Kind() Kind {
	return n.kind
}

// Bound returns the box covering everything beneath the node
func (n *Node) Bound() orb.Bound {
	return n.bound
}

// Edges returns the edges of a leaf, nil for interior nodes
func (n *Node) Edges() []models.Edge {
	return n.edges
}

// Children returns the child nodes of an interior node, nil for leaves
func (n *Node) Children() []*Node {
	return n.children
}

// Len returns the number of direct members (edges or children)
func (n *Node) Len() int {
	if n.kind == Leaf {
		return len(n.edges)
	}
	return len(n.children)
}

// walk visits n and its descendants depth-first in child order
func (n *Node) walk(depth int, fn func(n *Node, depth int)) {
	fn(n, depth)
	for _, c := range n.children {
		c.walk(depth+1, fn)
	}
}

// containsBound reports whether outer fully covers inner
func containsBound(outer, inner orb.Bound) bool {
	return outer.Contains(inner.Min) && outer.Contains(inner.Max)
}
