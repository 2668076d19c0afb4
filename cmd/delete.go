package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	deleteDryRun    bool
	deleteNoConfirm bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <set>...",
	Short: "Remove stored polygon sets",
	Long: `Remove one or more sets with their polygons and vertices.

Query history of a removed set is kept.

Example:
  polyindex delete old --dry-run   # Preview only
  polyindex delete old other -y    # No confirmation prompt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteDryRun, "dry-run", false, "Preview without removing")
	deleteCmd.Flags().BoolVarP(&deleteNoConfirm, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	store, err := openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	var vertices int
	for _, name := range args {
		set, err := store.GetSet(name)
		if err != nil {
			return err
		}
		vertices += set.NumVertices
	}

	fmt.Printf("Will remove %d set(s) (%s vertices): %s\n\n",
		len(args), humanize.Comma(int64(vertices)), strings.Join(args, ", "))

	if deleteDryRun {
		fmt.Println("(Dry run - nothing was removed)")
		return nil
	}

	// Confirm unless --yes flag is set
	if !deleteNoConfirm {
		fmt.Printf("Are you sure you want to remove %d set(s)? [y/N]: ", len(args))
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	for _, name := range args {
		if err := store.DeleteSet(name); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
		fmt.Printf("Removed %s\n", name)
	}
	return nil
}
