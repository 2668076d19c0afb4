package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"polyindex/internal/models"
	"polyindex/internal/pointio"
	"polyindex/internal/render"
)

var (
	renderOut    string
	renderPoints string
	renderWidth  int
	renderHeight int
)

var renderCmd = &cobra.Command{
	Use:   "render <set>",
	Short: "Draw a stored set to a PNG image",
	Long: `Rasterize the polygons of a set, optionally with query points on top.

Points are drawn green when inside a polygon and red when outside.

Example:
  polyindex render reference -o reference.png
  polyindex render reference -o check.png --points points.txt --width 1600`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "Output PNG file (default <set>.png)")
	renderCmd.Flags().StringVarP(&renderPoints, "points", "p", "", "Query points to overlay")
	renderCmd.Flags().IntVar(&renderWidth, "width", 800, "Image width in pixels")
	renderCmd.Flags().IntVar(&renderHeight, "height", 800, "Image height in pixels")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	name := args[0]
	out := renderOut
	if out == "" {
		out = name + ".png"
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	opts := render.DefaultOptions()
	opts.Width, opts.Height = renderWidth, renderHeight

	if renderPoints == "" {
		layout, _, err := store.LoadLayout(name)
		if err != nil {
			return err
		}
		if err := render.RenderFile(out, layout, opts); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", out)
		return nil
	}

	batch, err := pointio.ReadBatchFile(renderPoints)
	if err != nil {
		return err
	}
	loaded, err := loadSet(store, name)
	if err != nil {
		return err
	}
	res, _, err := runBatch(context.Background(), loaded.tree, batch, []models.QueryKind{models.KindContains}, false)
	if err != nil {
		return err
	}

	opts.Batch = &batch
	opts.Contains = res.Contains
	if err := render.RenderFile(out, loaded.layout, opts); err != nil {
		return err
	}

	inside := 0
	for _, c := range res.Contains {
		if c {
			inside++
		}
	}
	fmt.Printf("Wrote %s (%d of %d points inside)\n", out, inside, batch.Len())
	return nil
}
