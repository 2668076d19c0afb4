package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"polyindex/internal/models"
)

var (
	listJSON    bool
	listVerbose bool
	listHistory bool
	listLimit   int
)

var listCmd = &cobra.Command{
	Use:   "list [set]",
	Short: "List stored polygon sets",
	Long: `Display the stored polygon sets, or the polygons of one set.

Each set shows:
- Name and branching factor
- Polygon and vertex counts
- When it was loaded

Example:
  polyindex list                 # All sets
  polyindex list reference -v    # Polygons of one set
  polyindex list --history       # Recent query runs
  polyindex list --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().BoolVarP(&listVerbose, "verbose", "v", false, "Show every polygon of the set")
	listCmd.Flags().BoolVar(&listHistory, "history", false, "Show recent query runs instead of sets")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "Limit number of query runs to display (0 = all)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	if listHistory {
		setName := ""
		if len(args) == 1 {
			setName = args[0]
		}
		runs, err := store.ListQueries(setName, listLimit)
		if err != nil {
			return fmt.Errorf("failed to get query runs: %w", err)
		}
		if listJSON {
			return printJSON(runs)
		}
		printRuns(runs)
		return nil
	}

	if len(args) == 1 {
		set, err := store.GetSet(args[0])
		if err != nil {
			return err
		}
		if listJSON {
			return printJSON(set)
		}
		printSet(set, listVerbose)
		return nil
	}

	sets, err := store.ListSets()
	if err != nil {
		return fmt.Errorf("failed to get sets: %w", err)
	}
	if listJSON {
		return printJSON(sets)
	}

	if len(sets) == 0 {
		fmt.Println("No polygon sets stored.")
		fmt.Println("Run 'polyindex load <manifest>' to add one.")
		return nil
	}

	fmt.Printf("%-20s  %-4s  %12s  %s\n", "Set", "K", "Vertices", "Loaded")
	fmt.Println(strings.Repeat("-", 60))
	for _, set := range sets {
		fmt.Printf("%-20s  %-4d  %12s  %s\n",
			shorten(set.Name, 20), set.Branching, humanize.Comma(int64(set.NumVertices)), humanize.Time(set.CreatedAt))
	}
	fmt.Println()
	return nil
}

func printSet(set *models.PolygonSet, verbose bool) {
	fmt.Printf("Set %s (%d polygons, %s vertices, k=%d)\n",
		set.Name, len(set.Polygons), humanize.Comma(int64(set.NumVertices)), set.Branching)
	fmt.Printf("Loaded %s\n", humanize.Time(set.CreatedAt))
	fmt.Println(strings.Repeat("-", 60))

	for _, p := range set.Polygons {
		if !verbose && p.Position >= 10 {
			fmt.Printf("  ... %d more (use -v to show all)\n", len(set.Polygons)-10)
			break
		}
		fmt.Printf("  #%-4d  %-24s  offset %-8d  %5d vertices  at (%g, %g)\n",
			p.Position, shorten(p.Source, 24), p.IndexOffset, p.NumVertices, p.DX, p.DY)
	}
	fmt.Println()
}

func printRuns(runs []*models.QueryRun) {
	if len(runs) == 0 {
		fmt.Println("No query runs recorded.")
		return
	}
	fmt.Printf("%-36s  %-16s  %10s  %10s  %s\n", "Run", "Set", "Points", "Duration", "Kinds")
	fmt.Println(strings.Repeat("-", 100))
	for _, r := range runs {
		kinds := make([]string, len(r.Kinds))
		for i, k := range r.Kinds {
			kinds[i] = string(k)
		}
		mode := ""
		if r.Exhaustive {
			mode = " (exhaustive)"
		}
		fmt.Printf("%-36s  %-16s  %10s  %10s  %s%s\n",
			r.ID, shorten(r.SetName, 16), humanize.Comma(int64(r.NumPoints)), r.Duration.Round(time.Microsecond), strings.Join(kinds, ","), mode)
	}
	fmt.Println()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shorten(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-(maxLen-3):]
}
