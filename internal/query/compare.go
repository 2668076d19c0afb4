package query

import (
	"fmt"
	"math"

	"polyindex/internal/models"
)

// DefaultTolerance is the absolute difference allowed between distances
const DefaultTolerance = 2.220446049250313e-16

// Mismatch is one output cell that differs from its reference value
type Mismatch struct {
	Kind  models.QueryKind
	Index int
	Got   string
	Want  string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s[%d]: got %s, want %s", m.Kind, m.Index, m.Got, m.Want)
}

// Compare checks got against want for every kind want carries. Distances
// match when they differ by less than tol; indices and flags must be equal.
// A reference longer or shorter than the result is reported as an error.
func Compare(got, want *models.Results, tol float64) ([]Mismatch, error) {
	var out []Mismatch

	if want.DistanceEdge != nil {
		m, err := compareFloats(models.KindEdge, got.DistanceEdge, want.DistanceEdge, tol)
		if err != nil {
			return nil, err
		}
		out = append(out, m...)
	}
	if want.DistanceVertex != nil {
		m, err := compareFloats(models.KindVertex, got.DistanceVertex, want.DistanceVertex, tol)
		if err != nil {
			return nil, err
		}
		out = append(out, m...)
	}
	if want.ClosestVertex != nil {
		if len(got.ClosestVertex) != len(want.ClosestVertex) {
			return nil, lengthError(models.KindClosest, len(got.ClosestVertex), len(want.ClosestVertex))
		}
		for i := range want.ClosestVertex {
			if got.ClosestVertex[i] != want.ClosestVertex[i] {
				out = append(out, Mismatch{models.KindClosest, i, fmt.Sprint(got.ClosestVertex[i]), fmt.Sprint(want.ClosestVertex[i])})
			}
		}
	}
	if want.Contains != nil {
		if len(got.Contains) != len(want.Contains) {
			return nil, lengthError(models.KindContains, len(got.Contains), len(want.Contains))
		}
		for i := range want.Contains {
			if got.Contains[i] != want.Contains[i] {
				out = append(out, Mismatch{models.KindContains, i, fmt.Sprint(got.Contains[i]), fmt.Sprint(want.Contains[i])})
			}
		}
	}
	return out, nil
}

func compareFloats(kind models.QueryKind, got, want []float64, tol float64) ([]Mismatch, error) {
	if len(got) != len(want) {
		return nil, lengthError(kind, len(got), len(want))
	}
	var out []Mismatch
	for i := range want {
		if !(math.Abs(got[i]-want[i]) < tol) {
			out = append(out, Mismatch{kind, i, fmt.Sprint(got[i]), fmt.Sprint(want[i])})
		}
	}
	return out, nil
}

func lengthError(kind models.QueryKind, got, want int) error {
	return fmt.Errorf("%w: %s has %d results, reference has %d", models.ErrLengthMismatch, kind, got, want)
}
