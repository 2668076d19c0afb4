package server

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"polyindex/internal/bvh"
	"polyindex/internal/metrics"
	"polyindex/internal/models"
	"polyindex/internal/storage"
)

// index is a stored set with its tree, and the brute-force scan built on
// first use by exhaustive queries.
type index struct {
	set  *models.PolygonSet
	tree *bvh.Tree

	exOnce     sync.Once
	exhaustive *bvh.Exhaustive
	exErr      error
	polygons   [][]models.Edge
}

func (ix *index) exhaustiveIndex() (*bvh.Exhaustive, error) {
	ix.exOnce.Do(func() {
		ix.exhaustive, ix.exErr = bvh.NewExhaustive(ix.polygons...)
	})
	return ix.exhaustive, ix.exErr
}

// treeCache builds trees lazily per set name. Concurrent requests for a
// set that is not cached yet share one build.
type treeCache struct {
	storage *storage.Storage

	mu      sync.RWMutex
	entries map[string]*index
	// gens is bumped by evict; a build started under an older generation
	// is returned to its callers but not stored.
	gens  map[string]uint64
	group singleflight.Group
}

func newTreeCache(store *storage.Storage) *treeCache {
	return &treeCache{storage: store, entries: make(map[string]*index), gens: make(map[string]uint64)}
}

func (c *treeCache) get(name string) (*index, error) {
	c.mu.RLock()
	ix, ok := c.entries[name]
	c.mu.RUnlock()
	if ok {
		return ix, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		c.mu.RLock()
		ix, ok := c.entries[name]
		gen := c.gens[name]
		c.mu.RUnlock()
		if ok {
			return ix, nil
		}

		ix, err := c.build(name)
		if err != nil {
			return nil, err
		}
		c.put(name, gen, ix)
		return ix, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*index), nil
}

func (c *treeCache) build(name string) (*index, error) {
	layout, set, err := c.storage.LoadLayout(name)
	if err != nil {
		return nil, err
	}
	polygons, err := layout.Polygons()
	if err != nil {
		return nil, fmt.Errorf("set %s: %w", name, err)
	}
	tree, err := bvh.Build(set.Branching, polygons...)
	if err != nil {
		return nil, fmt.Errorf("failed to build tree for %s: %w", name, err)
	}

	metrics.TreeBuildsTotal.Inc()
	return &index{set: set, tree: tree, polygons: polygons}, nil
}

// put stores ix unless the set was evicted since generation gen was read
func (c *treeCache) put(name string, gen uint64, ix *index) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[name] != gen {
		return false
	}
	c.entries[name] = ix
	metrics.TreeEdges.WithLabelValues(name).Set(float64(ix.tree.EdgeCount()))
	return true
}

func (c *treeCache) generation(name string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[name]
}

func (c *treeCache) evict(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.gens[name]++
	c.mu.Unlock()
	c.group.Forget(name)
	metrics.TreeEdges.DeleteLabelValues(name)
}

func (c *treeCache) cached(name string) (*index, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ix, ok := c.entries[name]
	return ix, ok
}
