package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"polyindex/internal/models"
	"polyindex/internal/pointio"
	"polyindex/internal/query"
)

var (
	queryPoints     string
	queryKinds      []string
	queryExhaustive bool
	queryOut        string
	queryNoRecord   bool
	queryQuiet      bool
)

var queryCmd = &cobra.Command{
	Use:   "query <set>",
	Short: "Answer a batch of query points against a stored set",
	Long: `Run distance and containment queries for every point in a file.

The points file holds one "x y" pair per line. The output is CSV with one
row per point and one column per requested kind:
- edge      distance to the nearest polygon edge
- vertex    distance to the nearest vertex
- closest   global index of the nearest vertex
- contains  whether the point is inside a polygon

Example:
  polyindex query reference --points points.txt
  polyindex query reference --points points.txt --kinds edge,contains -o out.csv
  polyindex query reference --points points.txt --exhaustive`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryPoints, "points", "p", "", "File with query points (required)")
	queryCmd.Flags().StringSliceVar(&queryKinds, "kinds", nil, "Kinds to compute: edge, vertex, closest, contains (default all)")
	queryCmd.Flags().BoolVar(&queryExhaustive, "exhaustive", false, "Scan every edge instead of using the tree")
	queryCmd.Flags().StringVarP(&queryOut, "out", "o", "", "Write CSV here instead of stdout")
	queryCmd.Flags().BoolVar(&queryNoRecord, "no-record", false, "Do not record the run in query history")
	queryCmd.Flags().BoolVarP(&queryQuiet, "quiet", "q", false, "Hide progress output")
	queryCmd.MarkFlagRequired("points")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	name := args[0]

	kinds, err := models.ParseQueryKinds(queryKinds)
	if err != nil {
		return err
	}
	batch, err := pointio.ReadBatchFile(queryPoints)
	if err != nil {
		return err
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	loaded, err := loadSet(store, name)
	if err != nil {
		return err
	}
	index, err := loaded.index(queryExhaustive)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, elapsed, err := runBatch(ctx, index, batch, kinds, !queryQuiet)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	var w io.Writer = os.Stdout
	if queryOut != "" {
		f, err := os.Create(queryOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", queryOut, err)
		}
		defer f.Close()
		w = f
	}
	if err := pointio.WriteResults(w, batch, res, kinds); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	if !queryNoRecord {
		run := &models.QueryRun{
			SetName:    name,
			Kinds:      kinds,
			NumPoints:  batch.Len(),
			Exhaustive: queryExhaustive,
			Duration:   elapsed,
		}
		if err := store.RecordQuery(run); err != nil {
			slog.Warn("record_query_failed", "set", name, "error", err)
		}
	}

	if !queryQuiet {
		fmt.Fprintf(os.Stderr, "Answered %s points in %v\n", humanize.Comma(int64(batch.Len())), elapsed.Round(time.Microsecond))
		if queryOut != "" {
			fmt.Fprintf(os.Stderr, "Results written to %s\n", queryOut)
		}
	}
	return nil
}

// runBatch runs one batch on the configured worker count, drawing a
// progress line on stderr when asked.
func runBatch(ctx context.Context, index query.Index, batch models.Batch, kinds []models.QueryKind, progress bool) (*models.Results, time.Duration, error) {
	opts := []query.Option{query.WithWorkers(workers), query.WithLogger(slog.Default())}

	lastLine := ""
	if progress {
		opts = append(opts, query.WithProgress(func(done, total int) {
			// Clear previous line
			if lastLine != "" {
				fmt.Fprint(os.Stderr, "\r"+strings.Repeat(" ", len(lastLine))+"\r")
			}
			lastLine = fmt.Sprintf("Progress: %d/%d", done, total)
			fmt.Fprint(os.Stderr, lastLine)
		}))
	}

	engine := query.NewEngine(index, opts...)
	start := time.Now()
	res, err := engine.Run(ctx, batch, kinds...)
	elapsed := time.Since(start)

	// Clear progress line
	if lastLine != "" {
		fmt.Fprint(os.Stderr, "\r"+strings.Repeat(" ", len(lastLine))+"\r")
	}
	return res, elapsed, err
}
