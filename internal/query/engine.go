package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"polyindex/internal/models"
)

// Index answers the four per-point queries. Implementations must be safe
// for concurrent use; bvh.Tree and bvh.Exhaustive both are.
type Index interface {
	DistanceToEdge(p orb.Point) float64
	DistanceToVertex(p orb.Point) float64
	ClosestVertex(p orb.Point) (int, float64)
	Contains(p orb.Point) bool
}

// Engine runs query batches against an Index, spreading the points over
// a pool of workers. Every point writes only its own output cell.
type Engine struct {
	index      Index
	workers    int
	chunkSize  int
	progressFn func(done, total int)
	logger     *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithWorkers sets the number of parallel workers
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithChunkSize sets how many consecutive points one worker takes at a time
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithProgress sets a progress callback, called after each finished chunk
func WithProgress(fn func(done, total int)) Option {
	return func(e *Engine) {
		e.progressFn = fn
	}
}

// WithLogger sets the logger used for batch diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates a new Engine over index
func NewEngine(index Index, opts ...Option) *Engine {
	e := &Engine{
		index:     index,
		workers:   8,
		chunkSize: 256,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DistancesToEdge returns the nearest-edge distance of every batch point
func (e *Engine) DistancesToEdge(ctx context.Context, batch models.Batch) ([]float64, error) {
	res, err := e.Run(ctx, batch, models.KindEdge)
	if err != nil {
		return nil, err
	}
	return res.DistanceEdge, nil
}

// DistancesToVertex returns the nearest-vertex distance of every batch point
func (e *Engine) DistancesToVertex(ctx context.Context, batch models.Batch) ([]float64, error) {
	res, err := e.Run(ctx, batch, models.KindVertex)
	if err != nil {
		return nil, err
	}
	return res.DistanceVertex, nil
}

// ClosestVertices returns the global index of the nearest vertex of every batch point
func (e *Engine) ClosestVertices(ctx context.Context, batch models.Batch) ([]int, error) {
	res, err := e.Run(ctx, batch, models.KindClosest)
	if err != nil {
		return nil, err
	}
	return res.ClosestVertex, nil
}

// ContainsPoints reports for every batch point whether it is inside
func (e *Engine) ContainsPoints(ctx context.Context, batch models.Batch) ([]bool, error) {
	res, err := e.Run(ctx, batch, models.KindContains)
	if err != nil {
		return nil, err
	}
	return res.Contains, nil
}

// Run answers the requested kinds in one pass over the batch. With no kinds
// given all four are computed. The returned arrays are freshly allocated and
// aligned with the batch.
func (e *Engine) Run(ctx context.Context, batch models.Batch, kinds ...models.QueryKind) (*models.Results, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		kinds = models.AllKinds
	}

	n := batch.Len()
	res := &models.Results{}
	var wantEdge, wantVertex, wantClosest, wantContains bool
	for _, k := range kinds {
		switch k {
		case models.KindEdge:
			wantEdge = true
			res.DistanceEdge = make([]float64, n)
		case models.KindVertex:
			wantVertex = true
			res.DistanceVertex = make([]float64, n)
		case models.KindClosest:
			wantClosest = true
			res.ClosestVertex = make([]int, n)
		case models.KindContains:
			wantContains = true
			res.Contains = make([]bool, n)
		default:
			return nil, fmt.Errorf("unknown query kind %q", k)
		}
	}

	start := time.Now()
	err := e.forEach(ctx, n, func(i int) {
		p := batch.Point(i)
		if wantEdge {
			res.DistanceEdge[i] = e.index.DistanceToEdge(p)
		}
		switch {
		case wantClosest:
			idx, d := e.index.ClosestVertex(p)
			res.ClosestVertex[i] = idx
			if wantVertex {
				res.DistanceVertex[i] = d
			}
		case wantVertex:
			res.DistanceVertex[i] = e.index.DistanceToVertex(p)
		}
		if wantContains {
			res.Contains[i] = e.index.Contains(p)
		}
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("query_batch_done",
		"points", n,
		"kinds", kinds,
		"workers", e.workers,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// forEach calls fn for every index in [0, n), chunk by chunk, on up to
// e.workers goroutines. It stops handing out chunks once ctx is done.
func (e *Engine) forEach(ctx context.Context, n int, fn func(i int)) error {
	if n == 0 {
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	var (
		done       int64
		progressMu sync.Mutex
	)
	for start := 0; start < n; start += e.chunkSize {
		if gctx.Err() != nil {
			break
		}
		start, end := start, min(start+e.chunkSize, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				fn(i)
			}
			d := atomic.AddInt64(&done, int64(end-start))
			if e.progressFn != nil {
				progressMu.Lock()
				e.progressFn(int(d), n)
				progressMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
