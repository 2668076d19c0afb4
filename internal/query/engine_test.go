package query

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"polyindex/internal/bvh"
	"polyindex/internal/models"
	"polyindex/internal/polygon"
)

func squareTree(t *testing.T) *bvh.Tree {
	t.Helper()
	edges, err := polygon.Create([]float64{0, 1, 1, 0}, []float64{0, 0, 1, 1}, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	tree, err := bvh.Build(4, edges)
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

func TestNewEngine_Defaults(t *testing.T) {
	e := NewEngine(nil)

	if e.workers != 8 {
		t.Errorf("default workers = %d, want 8", e.workers)
	}
	if e.chunkSize != 256 {
		t.Errorf("default chunkSize = %d, want 256", e.chunkSize)
	}
	if e.progressFn != nil {
		t.Error("default progressFn should be nil")
	}
	if e.logger == nil {
		t.Error("default logger should not be nil")
	}
}

func TestNewEngine_WithWorkers(t *testing.T) {
	e := NewEngine(nil, WithWorkers(4))
	if e.workers != 4 {
		t.Errorf("workers = %d, want 4", e.workers)
	}

	// Zero and negative values keep the default
	for _, n := range []int{0, -1} {
		e = NewEngine(nil, WithWorkers(n), WithChunkSize(n))
		if e.workers != 8 || e.chunkSize != 256 {
			t.Errorf("with %d: workers = %d, chunkSize = %d", n, e.workers, e.chunkSize)
		}
	}
}

// Reference batch from the unit-square scenario
func TestEngine_UnitSquare(t *testing.T) {
	e := NewEngine(squareTree(t), WithWorkers(2))
	batch := models.Batch{Xs: []float64{0.6, 0.5}, Ys: []float64{0.6, -0.5}}
	ctx := context.Background()

	distances, err := e.DistancesToEdge(ctx, batch)
	if err != nil {
		t.Fatalf("DistancesToEdge failed: %v", err)
	}
	if distances[0] != 0.4 || distances[1] != 0.5 {
		t.Errorf("edge distances = %v, want [0.4 0.5]", distances)
	}

	distances, err = e.DistancesToVertex(ctx, batch)
	if err != nil {
		t.Fatalf("DistancesToVertex failed: %v", err)
	}
	if math.Abs(distances[0]-0.5656854249492381) > 1e-12 || math.Abs(distances[1]-0.7071067811865476) > 1e-12 {
		t.Errorf("vertex distances = %v", distances)
	}

	indices, err := e.ClosestVertices(ctx, batch)
	if err != nil {
		t.Fatalf("ClosestVertices failed: %v", err)
	}
	if indices[0] != 2 || indices[1] != 0 {
		t.Errorf("closest vertices = %v, want [2 0]", indices)
	}

	contains, err := e.ContainsPoints(ctx, batch)
	if err != nil {
		t.Fatalf("ContainsPoints failed: %v", err)
	}
	if !contains[0] || contains[1] {
		t.Errorf("contains = %v, want [true false]", contains)
	}
}

func TestEngine_RunSelectedKinds(t *testing.T) {
	e := NewEngine(squareTree(t))
	batch := models.Batch{Xs: []float64{0.5}, Ys: []float64{0.5}}

	res, err := e.Run(context.Background(), batch, models.KindContains, models.KindVertex)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.DistanceEdge != nil || res.ClosestVertex != nil {
		t.Error("kinds that were not requested should stay nil")
	}
	if len(res.Contains) != 1 || !res.Contains[0] {
		t.Errorf("Contains = %v, want [true]", res.Contains)
	}
	if len(res.DistanceVertex) != 1 || math.Abs(res.DistanceVertex[0]-math.Sqrt(0.5)) > 1e-12 {
		t.Errorf("DistanceVertex = %v", res.DistanceVertex)
	}

	if _, err := e.Run(context.Background(), batch, models.QueryKind("area")); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestEngine_MismatchedBatch(t *testing.T) {
	e := NewEngine(squareTree(t))
	_, err := e.Run(context.Background(), models.Batch{Xs: []float64{1, 2}, Ys: []float64{1}})
	if !errors.Is(err, models.ErrLengthMismatch) {
		t.Errorf("error = %v, want ErrLengthMismatch", err)
	}

	_, err = e.Run(context.Background(), models.Batch{Xs: []float64{math.NaN()}, Ys: []float64{1}})
	if !errors.Is(err, models.ErrNonFinite) {
		t.Errorf("error = %v, want ErrNonFinite", err)
	}

	// a rejected batch leaves the engine usable
	res, err := e.Run(context.Background(), models.Batch{Xs: []float64{0.5}, Ys: []float64{-0.5}})
	if err != nil || res.DistanceEdge[0] != 0.5 {
		t.Errorf("follow-up Run = %v, %v", res, err)
	}
}

func TestEngine_EmptyBatch(t *testing.T) {
	e := NewEngine(squareTree(t))
	res, err := e.Run(context.Background(), models.Batch{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.DistanceEdge) != 0 || len(res.Contains) != 0 {
		t.Errorf("expected empty results, got %+v", res)
	}
}

func TestEngine_Cancelled(t *testing.T) {
	e := NewEngine(squareTree(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, models.Batch{Xs: []float64{0.5}, Ys: []float64{0.5}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestEngine_Progress(t *testing.T) {
	n := 1000
	batch := models.Batch{Xs: make([]float64, n), Ys: make([]float64, n)}
	for i := 0; i < n; i++ {
		batch.Xs[i] = float64(i) / float64(n)
		batch.Ys[i] = 0.5
	}

	calls, last := 0, 0
	e := NewEngine(squareTree(t), WithWorkers(3), WithChunkSize(100), WithProgress(func(done, total int) {
		calls++
		if total != n {
			t.Errorf("total = %d, want %d", total, n)
		}
		last = max(last, done)
	}))

	if _, err := e.Run(context.Background(), batch); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if calls != 10 {
		t.Errorf("progress called %d times, want 10", calls)
	}
	if last != n {
		t.Errorf("final progress = %d, want %d", last, n)
	}
}

// Parallel execution must give the same answers as a sequential exhaustive scan.
func TestEngine_MatchesExhaustive(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	layout := polygon.NewLayout()
	for i := 0; i < 5; i++ {
		n := 3 + rng.Intn(50)
		xs, ys := make([]float64, n), make([]float64, n)
		for j := 0; j < n; j++ {
			a := 2 * math.Pi * float64(j) / float64(n)
			r := 0.5 + rng.Float64()
			xs[j], ys[j] = r*math.Cos(a), r*math.Sin(a)
		}
		if _, err := layout.Add(polygon.Placement{Xs: xs, Ys: ys, DX: 5 * float64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	polygons, err := layout.Polygons()
	if err != nil {
		t.Fatal(err)
	}
	tree, err := bvh.Build(3, polygons...)
	if err != nil {
		t.Fatal(err)
	}
	ref, err := bvh.NewExhaustive(polygons...)
	if err != nil {
		t.Fatal(err)
	}

	batch := models.Batch{Xs: make([]float64, 2000), Ys: make([]float64, 2000)}
	for i := range batch.Xs {
		batch.Xs[i] = rng.Float64()*26 - 3
		batch.Ys[i] = rng.Float64()*6 - 3
	}

	ctx := context.Background()
	got, err := NewEngine(tree, WithWorkers(8), WithChunkSize(64)).Run(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	want, err := NewEngine(ref, WithWorkers(1)).Run(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}

	for i := range batch.Xs {
		if got.DistanceEdge[i] != want.DistanceEdge[i] ||
			got.DistanceVertex[i] != want.DistanceVertex[i] ||
			got.ClosestVertex[i] != want.ClosestVertex[i] ||
			got.Contains[i] != want.Contains[i] {
			t.Fatalf("point %d differs: tree (%v %v %v %v), exhaustive (%v %v %v %v)", i,
				got.DistanceEdge[i], got.DistanceVertex[i], got.ClosestVertex[i], got.Contains[i],
				want.DistanceEdge[i], want.DistanceVertex[i], want.ClosestVertex[i], want.Contains[i])
		}
	}
}
