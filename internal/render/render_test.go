package render

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"polyindex/internal/models"
	"polyindex/internal/polygon"
)

func unitSquareLayout(t *testing.T) *polygon.Layout {
	t.Helper()
	l := polygon.NewLayout()
	if _, err := l.Add(polygon.Placement{Xs: []float64{0, 1, 1, 0}, Ys: []float64{0, 0, 1, 1}}); err != nil {
		t.Fatal(err)
	}
	return l
}

func smallOptions() Options {
	opts := DefaultOptions()
	opts.Width, opts.Height, opts.Padding = 100, 100, 10
	return opts
}

func TestDraw_FillsPolygon(t *testing.T) {
	img, err := Draw(unitSquareLayout(t), smallOptions())
	if err != nil {
		t.Fatalf("Draw failed: %v", err)
	}

	if got := img.RGBAAt(2, 2); got != Background {
		t.Errorf("margin pixel = %v, want background", got)
	}
	// (30, 70) maps back to (0.25, 0.25), inside the square
	if got := img.RGBAAt(30, 70); got == Background {
		t.Error("interior pixel was not filled")
	}
	if got := img.RGBAAt(95, 50); got != Background {
		t.Errorf("pixel right of the square = %v, want background", got)
	}
}

func TestDraw_PointOverlay(t *testing.T) {
	opts := smallOptions()
	opts.Batch = &models.Batch{Xs: []float64{0.5, 0.5}, Ys: []float64{0.5, 0.25}}
	opts.Contains = []bool{true, false}

	img, err := Draw(unitSquareLayout(t), opts)
	if err != nil {
		t.Fatalf("Draw failed: %v", err)
	}

	tests := []struct {
		name string
		x, y int
		want color.RGBA
	}{
		{"inside point", 50, 50, Inside},
		{"outside point", 50, 70, Outside},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := img.RGBAAt(tt.x, tt.y); got != tt.want {
				t.Errorf("pixel (%d, %d) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestDraw_Errors(t *testing.T) {
	tests := []struct {
		name   string
		layout *polygon.Layout
		opts   func() Options
	}{
		{"empty layout", polygon.NewLayout(), smallOptions},
		{"zero size", unitSquareLayout(t), func() Options {
			o := smallOptions()
			o.Width = 0
			return o
		}},
		{"padding too large", unitSquareLayout(t), func() Options {
			o := smallOptions()
			o.Padding = 50
			return o
		}},
		{"contains mismatch", unitSquareLayout(t), func() Options {
			o := smallOptions()
			o.Batch = &models.Batch{Xs: []float64{0}, Ys: []float64{0}}
			o.Contains = []bool{true, false}
			return o
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Draw(tt.layout, tt.opts()); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestRender_EncodesPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, unitSquareLayout(t), smallOptions()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Errorf("bounds = %v, want 100x100", b)
	}
}

func TestRenderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.png")
	if err := RenderFile(path, unitSquareLayout(t), smallOptions()); err != nil {
		t.Fatalf("RenderFile failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("png file is empty")
	}
}

func TestViewport_FlipsY(t *testing.T) {
	l := unitSquareLayout(t)
	v := newViewport(l.Bound(), smallOptions())

	bottomLeft := v.project([2]float64{0, 0})
	topRight := v.project([2]float64{1, 1})
	if bottomLeft[0] != 10 || bottomLeft[1] != 90 {
		t.Errorf("(0,0) -> %v, want [10 90]", bottomLeft)
	}
	if topRight[0] != 90 || topRight[1] != 10 {
		t.Errorf("(1,1) -> %v, want [90 10]", topRight)
	}
}
