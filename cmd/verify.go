package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"polyindex/internal/models"
	"polyindex/internal/pointio"
	"polyindex/internal/query"
)

var (
	verifyPoints     string
	verifyEdge       string
	verifyVertex     string
	verifyClosest    string
	verifyContains   string
	verifyTolerance  float64
	verifyCrossCheck bool
	verifyShow       int
)

var verifyCmd = &cobra.Command{
	Use:   "verify <set>",
	Short: "Compare query results against reference vectors",
	Long: `Answer a batch of points and compare every result with reference files.

Each reference file holds one value per line, aligned with the points file.
Distances match when they differ by less than --tolerance; vertex indices and
containment flags must match exactly. With --cross-check the tree is also
compared with a scan of every edge.

Example:
  polyindex verify reference --points reference_points.txt \
    --edge distances_edge.txt --vertex distances_vertex.txt \
    --closest closest_indices.txt --contains contains_points.txt
  polyindex verify reference --points random.txt --cross-check`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyPoints, "points", "p", "", "File with query points (required)")
	verifyCmd.Flags().StringVar(&verifyEdge, "edge", "", "Reference edge distances")
	verifyCmd.Flags().StringVar(&verifyVertex, "vertex", "", "Reference vertex distances")
	verifyCmd.Flags().StringVar(&verifyClosest, "closest", "", "Reference closest vertex indices")
	verifyCmd.Flags().StringVar(&verifyContains, "contains", "", "Reference containment flags")
	verifyCmd.Flags().Float64Var(&verifyTolerance, "tolerance", query.DefaultTolerance, "Allowed absolute distance difference")
	verifyCmd.Flags().BoolVar(&verifyCrossCheck, "cross-check", false, "Also compare the tree against an exhaustive scan")
	verifyCmd.Flags().IntVar(&verifyShow, "show", 10, "Mismatches to print per comparison (0 = all)")
	verifyCmd.MarkFlagRequired("points")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	want, err := readReference()
	if err != nil {
		return err
	}
	if want == nil && !verifyCrossCheck {
		return errors.New("nothing to compare: give at least one reference file or --cross-check")
	}

	batch, err := pointio.ReadBatchFile(verifyPoints)
	if err != nil {
		return err
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	loaded, err := loadSet(store, args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	got, elapsed, err := runBatch(ctx, loaded.tree, batch, models.AllKinds, false)
	if err != nil {
		return err
	}
	fmt.Printf("Tree answered %d points in %v\n\n", batch.Len(), elapsed)

	failed := 0
	if want != nil {
		mismatches, err := query.Compare(got, want, verifyTolerance)
		if err != nil {
			return err
		}
		failed += report("reference", mismatches)
	}

	if verifyCrossCheck {
		ex, err := loaded.index(true)
		if err != nil {
			return err
		}
		exhaustive, exElapsed, err := runBatch(ctx, ex, batch, models.AllKinds, false)
		if err != nil {
			return err
		}
		fmt.Printf("Exhaustive scan took %v\n", exElapsed)
		mismatches, err := query.Compare(got, exhaustive, verifyTolerance)
		if err != nil {
			return err
		}
		failed += report("exhaustive", mismatches)
	}

	if failed > 0 {
		return fmt.Errorf("verification failed with %d mismatches", failed)
	}
	fmt.Println("\nAll results match.")
	return nil
}

// readReference loads the given reference files, or returns nil when none is set
func readReference() (*models.Results, error) {
	if verifyEdge == "" && verifyVertex == "" && verifyClosest == "" && verifyContains == "" {
		return nil, nil
	}
	want := &models.Results{}
	var err error
	if verifyEdge != "" {
		if want.DistanceEdge, err = pointio.ReadFloatsFile(verifyEdge); err != nil {
			return nil, err
		}
	}
	if verifyVertex != "" {
		if want.DistanceVertex, err = pointio.ReadFloatsFile(verifyVertex); err != nil {
			return nil, err
		}
	}
	if verifyClosest != "" {
		if want.ClosestVertex, err = pointio.ReadIntsFile(verifyClosest); err != nil {
			return nil, err
		}
	}
	if verifyContains != "" {
		if want.Contains, err = pointio.ReadBoolsFile(verifyContains); err != nil {
			return nil, err
		}
	}
	return want, nil
}

func report(against string, mismatches []query.Mismatch) int {
	if len(mismatches) == 0 {
		fmt.Printf("✓ matches %s\n", against)
		return 0
	}
	fmt.Printf("✗ %d mismatches against %s\n", len(mismatches), against)
	for i, m := range mismatches {
		if verifyShow > 0 && i >= verifyShow {
			fmt.Printf("  ... %d more\n", len(mismatches)-verifyShow)
			break
		}
		fmt.Printf("  %s\n", m)
	}
	return len(mismatches)
}
