// Package render rasterizes polygon layouts, and optionally a query batch,
// to PNG images.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
	"golang.org/x/image/vector"

	"polyindex/internal/models"
	"polyindex/internal/polygon"
)

var (
	Background = color.RGBA{255, 255, 255, 255}
	Fill       = color.NRGBA{70, 130, 180, 90}
	Stroke     = color.RGBA{25, 55, 95, 255}
	Inside     = color.RGBA{0, 160, 60, 255}
	Outside    = color.RGBA{210, 40, 40, 255}
)

// Options controls the output image
type Options struct {
	Width       int
	Height      int
	Padding     int
	StrokeWidth float64
	PointSize   float64

	// Batch is drawn on top of the polygons when set. Contains, when
	// non-nil, colours each point by whether it is inside.
	Batch    *models.Batch
	Contains []bool
}

// DefaultOptions returns an 800x800 canvas with a small margin
func DefaultOptions() Options {
	return Options{
		Width:       800,
		Height:      800,
		Padding:     20,
		StrokeWidth: 1.5,
		PointSize:   6,
	}
}

func (o Options) validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", o.Width, o.Height)
	}
	if 2*o.Padding >= o.Width || 2*o.Padding >= o.Height {
		return fmt.Errorf("padding %d leaves no room in %dx%d", o.Padding, o.Width, o.Height)
	}
	if o.Batch != nil {
		if err := o.Batch.Validate(); err != nil {
			return err
		}
		if o.Contains != nil && len(o.Contains) != o.Batch.Len() {
			return fmt.Errorf("%w: %d points, %d containment flags", models.ErrLengthMismatch, o.Batch.Len(), len(o.Contains))
		}
	}
	return nil
}

// Render draws the layout and encodes it as PNG to w
func Render(w io.Writer, layout *polygon.Layout, opts Options) error {
	img, err := Draw(layout, opts)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

// RenderFile draws the layout into a PNG file at path
func RenderFile(path string, layout *polygon.Layout, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Render(f, layout, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Draw rasterizes the layout. The view is fitted to the layout bound, and
// the batch points too when given, keeping the aspect ratio with y up.
func Draw(layout *polygon.Layout, opts Options) (*image.RGBA, error) {
	if layout == nil || layout.Len() == 0 {
		return nil, errors.New("layout has no polygons")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	bound := layout.Bound()
	if opts.Batch != nil {
		for i := 0; i < opts.Batch.Len(); i++ {
			bound = bound.Extend(opts.Batch.Point(i))
		}
	}
	v := newViewport(bound, opts)

	img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)

	z := vector.NewRasterizer(opts.Width, opts.Height)
	fill := image.NewUniform(Fill)
	stroke := image.NewUniform(Stroke)

	for _, p := range layout.Placements() {
		ring := make([]orb.Point, len(p.Xs))
		for i := range p.Xs {
			ring[i] = v.project(orb.Point{p.Xs[i] + p.DX, p.Ys[i] + p.DY})
		}

		z.Reset(opts.Width, opts.Height)
		z.MoveTo(float32(ring[0][0]), float32(ring[0][1]))
		for _, pt := range ring[1:] {
			z.LineTo(float32(pt[0]), float32(pt[1]))
		}
		z.ClosePath()
		z.Draw(img, img.Bounds(), fill, image.Point{})

		if opts.StrokeWidth > 0 {
			z.Reset(opts.Width, opts.Height)
			for i := range ring {
				segment(z, ring[i], ring[(i+1)%len(ring)], opts.StrokeWidth)
			}
			z.Draw(img, img.Bounds(), stroke, image.Point{})
		}
	}

	if opts.Batch != nil && opts.PointSize > 0 {
		drawPoints(img, z, v, opts)
	}
	return img, nil
}

func drawPoints(img *image.RGBA, z *vector.Rasterizer, v viewport, opts Options) {
	half := opts.PointSize / 2
	for i := 0; i < opts.Batch.Len(); i++ {
		c := Stroke
		if opts.Contains != nil {
			c = Outside
			if opts.Contains[i] {
				c = Inside
			}
		}
		p := v.project(opts.Batch.Point(i))
		z.Reset(opts.Width, opts.Height)
		z.MoveTo(float32(p[0]-half), float32(p[1]-half))
		z.LineTo(float32(p[0]+half), float32(p[1]-half))
		z.LineTo(float32(p[0]+half), float32(p[1]+half))
		z.LineTo(float32(p[0]-half), float32(p[1]+half))
		z.ClosePath()
		z.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{})
	}
}

// segment adds a quad of the given width around a->b
func segment(z *vector.Rasterizer, a, b orb.Point, width float64) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	z.MoveTo(float32(a[0]+nx), float32(a[1]+ny))
	z.LineTo(float32(b[0]+nx), float32(b[1]+ny))
	z.LineTo(float32(b[0]-nx), float32(b[1]-ny))
	z.LineTo(float32(a[0]-nx), float32(a[1]-ny))
	z.ClosePath()
}

// viewport maps layout coordinates to pixels
type viewport struct {
	min     orb.Point
	scale   float64
	padding float64
	height  float64
}

func newViewport(b orb.Bound, opts Options) viewport {
	pad := float64(opts.Padding)
	w := float64(opts.Width) - 2*pad
	h := float64(opts.Height) - 2*pad

	scale := 1.0
	dx, dy := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]
	switch {
	case dx > 0 && dy > 0:
		scale = math.Min(w/dx, h/dy)
	case dx > 0:
		scale = w / dx
	case dy > 0:
		scale = h / dy
	}
	return viewport{min: b.Min, scale: scale, padding: pad, height: float64(opts.Height)}
}

func (v viewport) project(p orb.Point) orb.Point {
	return orb.Point{
		v.padding + (p[0]-v.min[0])*v.scale,
		v.height - v.padding - (p[1]-v.min[1])*v.scale,
	}
}
