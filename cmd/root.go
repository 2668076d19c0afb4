package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"polyindex/internal/bvh"
	"polyindex/internal/logger"
	"polyindex/internal/models"
	"polyindex/internal/polygon"
	"polyindex/internal/query"
	"polyindex/internal/storage"
)

var (
	dbPath    string
	workers   int
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "polyindex",
	Short: "Distance and containment queries against polygon sets",
	Long: `polyindex answers proximity and containment queries for batches of
points against sets of closed polygons.

Polygons are loaded from a YAML manifest into a local database. Each query
builds a bounding-volume tree over the polygon edges and computes, per point,
the distance to the nearest edge, the distance to and index of the nearest
vertex, and whether the point lies inside any polygon.

Example usage:
  polyindex load layout.yaml                      # Store the polygons of a manifest
  polyindex list                                  # Show stored sets
  polyindex query reference --points points.txt   # Answer a batch of points
  polyindex verify reference --points points.txt --edge distances_edge.txt
  polyindex serve                                 # Start the HTTP query API`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Setup(logLevel, logFormat)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// A missing .env is fine
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath(), "Path to SQLite database (env POLYINDEX_DB)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", envInt("POLYINDEX_WORKERS", 8), "Number of parallel query workers (env POLYINDEX_WORKERS)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (env LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (env LOG_FORMAT)")
}

func defaultDBPath() string {
	if p := os.Getenv("POLYINDEX_DB"); p != "" {
		return p
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".polyindex", "polyindex.db")
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func openStorage() (*storage.Storage, error) {
	store, err := storage.NewStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// loadedSet is a stored set rebuilt into memory
type loadedSet struct {
	set      *models.PolygonSet
	layout   *polygon.Layout
	polygons [][]models.Edge
	tree     *bvh.Tree
}

func loadSet(store *storage.Storage, name string) (*loadedSet, error) {
	layout, set, err := store.LoadLayout(name)
	if err != nil {
		return nil, err
	}
	polygons, err := layout.Polygons()
	if err != nil {
		return nil, err
	}
	tree, err := bvh.Build(set.Branching, polygons...)
	if err != nil {
		return nil, fmt.Errorf("failed to build tree: %w", err)
	}
	return &loadedSet{set: set, layout: layout, polygons: polygons, tree: tree}, nil
}

// index returns the tree, or the brute-force scan when exhaustive is set
func (l *loadedSet) index(exhaustive bool) (query.Index, error) {
	if !exhaustive {
		return l.tree, nil
	}
	ex, err := bvh.NewExhaustive(l.polygons...)
	if err != nil {
		return nil, err
	}
	return ex, nil
}
