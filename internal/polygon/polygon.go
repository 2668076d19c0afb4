package polygon

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"polyindex/internal/models"
)

// MinPoints is the smallest number of vertices accepted for a closed polygon
const MinPoints = 3

// Create turns an ordered point list into a closed cycle of edges.
// Every point is translated by (dx, dy); vertex i gets global index offset+i
// and the last edge wraps back to the first vertex.
func Create(xs, ys []float64, dx, dy float64, offset int) ([]models.Edge, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: %d xs, %d ys", models.ErrLengthMismatch, len(xs), len(ys))
	}
	n := len(xs)
	if n < MinPoints {
		return nil, fmt.Errorf("%w: got %d", models.ErrTooFewPoints, n)
	}
	if offset < 0 {
		return nil, fmt.Errorf("negative index offset %d", offset)
	}
	if err := checkFinite(xs, ys, dx, dy); err != nil {
		return nil, err
	}

	edges := make([]models.Edge, n)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		edges[i] = models.Edge{
			P1:   orb.Point{xs[i] + dx, ys[i] + dy},
			P2:   orb.Point{xs[j] + dx, ys[j] + dy},
			Idx1: offset + i,
			Idx2: offset + j,
		}
	}
	return edges, nil
}

func checkFinite(xs, ys []float64, dx, dy float64) error {
	if !isFinite(dx) || !isFinite(dy) {
		return fmt.Errorf("%w: translation (%v, %v)", models.ErrNonFinite, dx, dy)
	}
	for i := range xs {
		if !isFinite(xs[i]) || !isFinite(ys[i]) {
			return fmt.Errorf("%w: vertex %d (%v, %v)", models.ErrNonFinite, i, xs[i], ys[i])
		}
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Placement is one polygon of a layout: its source points and translation
type Placement struct {
	Source string
	Xs     []float64
	Ys     []float64
	DX     float64
	DY     float64
}

// Layout places several polygons into one shared global vertex index space.
// Offsets are assigned in placement order, so polygon j starts right after
// the last vertex of polygon j-1.
type Layout struct {
	placements []Placement
	numPoints  int
}

// NewLayout creates an empty Layout
func NewLayout() *Layout {
	return &Layout{}
}

// Add appends a polygon and returns the index offset it was given
func (l *Layout) Add(p Placement) (int, error) {
	if len(p.Xs) != len(p.Ys) {
		return 0, fmt.Errorf("%w: %d xs, %d ys", models.ErrLengthMismatch, len(p.Xs), len(p.Ys))
	}
	if len(p.Xs) < MinPoints {
		return 0, fmt.Errorf("%w: got %d", models.ErrTooFewPoints, len(p.Xs))
	}
	if err := checkFinite(p.Xs, p.Ys, p.DX, p.DY); err != nil {
		return 0, err
	}
	offset := l.numPoints
	l.placements = append(l.placements, p)
	l.numPoints += len(p.Xs)
	return offset, nil
}

// Len returns the number of placed polygons
func (l *Layout) Len() int {
	return len(l.placements)
}

// NumPoints returns the total vertex count across all polygons
func (l *Layout) NumPoints() int {
	return l.numPoints
}

// Placements returns the placed polygons in order
func (l *Layout) Placements() []Placement {
	return l.placements
}

// Records describes every placement with its assigned offset
func (l *Layout) Records() []*models.PolygonRecord {
	records := make([]*models.PolygonRecord, 0, len(l.placements))
	offset := 0
	for i, p := range l.placements {
		records = append(records, &models.PolygonRecord{
			Position:    i,
			Source:      p.Source,
			DX:          p.DX,
			DY:          p.DY,
			IndexOffset: offset,
			NumVertices: len(p.Xs),
		})
		offset += len(p.Xs)
	}
	return records
}

// Polygons builds the edge cycle of every placement
func (l *Layout) Polygons() ([][]models.Edge, error) {
	if len(l.placements) == 0 {
		return nil, errors.New("layout has no polygons")
	}
	polygons := make([][]models.Edge, 0, len(l.placements))
	offset := 0
	for i, p := range l.placements {
		edges, err := Create(p.Xs, p.Ys, p.DX, p.DY, offset)
		if err != nil {
			return nil, fmt.Errorf("polygon %d: %w", i, err)
		}
		polygons = append(polygons, edges)
		offset += len(p.Xs)
	}
	return polygons, nil
}

// Bound returns the box covering every translated vertex of the layout
func (l *Layout) Bound() orb.Bound {
	var b orb.Bound
	first := true
	for _, p := range l.placements {
		for i := range p.Xs {
			pt := orb.Point{p.Xs[i] + p.DX, p.Ys[i] + p.DY}
			if first {
				b = orb.Bound{Min: pt, Max: pt}
				first = false
				continue
			}
			b = b.Extend(pt)
		}
	}
	return b
}
