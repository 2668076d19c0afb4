package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"polyindex/internal/bvh"
	"polyindex/internal/manifest"
)

var (
	loadName      string
	loadBranching int
)

var loadCmd = &cobra.Command{
	Use:   "load <manifest>",
	Short: "Store the polygons of a layout manifest",
	Long: `Read a YAML manifest, place its polygons and store them as a named set.

The load will:
1. Read every polygon file the manifest lists (point lists or GeoJSON)
2. Translate each copy and assign global vertex indices in manifest order
3. Build the tree once to check the layout
4. Store the set in the database, replacing a set with the same name

Example:
  polyindex load layout.yaml
  polyindex load layout.yaml --name five --branching 8`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringVar(&loadName, "name", "", "Set name (defaults to the manifest name, then the file name)")
	loadCmd.Flags().IntVarP(&loadBranching, "branching", "k", 0, "Branching factor (overrides the manifest)")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	if loadBranching != 0 {
		m.Branching = loadBranching
	}

	name := loadName
	if name == "" {
		name = m.Name
	}
	if name == "" {
		name = trimExt(filepath.Base(path))
	}

	fmt.Printf("Manifest:  %s\n", path)
	fmt.Printf("Set:       %s\n", name)
	fmt.Printf("Branching: %d\n\n", m.Branching)

	layout, err := m.Resolve(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("failed to resolve manifest: %w", err)
	}
	polygons, err := layout.Polygons()
	if err != nil {
		return err
	}

	start := time.Now()
	tree, err := bvh.Build(m.Branching, polygons...)
	if err != nil {
		return fmt.Errorf("failed to build tree: %w", err)
	}
	if err := tree.Validate(); err != nil {
		return fmt.Errorf("tree check failed: %w", err)
	}
	slog.Debug("tree_built", "set", name, "edges", tree.EdgeCount(), "duration_ms", time.Since(start).Milliseconds())

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	set, err := store.SaveSet(name, m.Branching, layout)
	if err != nil {
		return fmt.Errorf("failed to save set: %w", err)
	}

	// Print summary
	fmt.Println("=== Load Complete ===")
	fmt.Printf("Polygons:   %s\n", humanize.Comma(int64(len(set.Polygons))))
	fmt.Printf("Vertices:   %s\n", humanize.Comma(int64(set.NumVertices)))
	fmt.Printf("Tree depth: %d (%s nodes)\n", tree.Depth(), humanize.Comma(int64(tree.NodeCount())))
	fmt.Println()
	fmt.Printf("Run 'polyindex query %s --points <file>' to query it\n", name)

	return nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
