// Package manifest loads YAML layout files describing which polygons to
// place, where to translate them, and how to build the tree over them.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"polyindex/internal/pointio"
	"polyindex/internal/polygon"
)

const (
	FormatPoints  = "points"
	FormatGeoJSON = "geojson"
)

// DefaultBranching is used when a manifest leaves branching unset
const DefaultBranching = 4

// Manifest is the parsed layout file
//
//	name: reference
//	branching: 4
//	polygons:
//	  - file: polygon.txt
//	    copies: 5
//	    step_dx: 5
type Manifest struct {
	Name      string    `yaml:"name"`
	Branching int       `yaml:"branching"`
	Polygons  []Polygon `yaml:"polygons"`
}

// Polygon is one source file placed once or several times
type Polygon struct {
	File   string  `yaml:"file"`
	Format string  `yaml:"format,omitempty"`
	DX     float64 `yaml:"dx,omitempty"`
	DY     float64 `yaml:"dy,omitempty"`
	Copies int     `yaml:"copies,omitempty"`
	StepDX float64 `yaml:"step_dx,omitempty"`
	StepDY float64 `yaml:"step_dy,omitempty"`
}

// Load reads and validates a manifest file
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest document and fills in defaults
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if m.Branching == 0 {
		m.Branching = DefaultBranching
	}
	for i := range m.Polygons {
		if m.Polygons[i].Copies == 0 {
			m.Polygons[i].Copies = 1
		}
		if m.Polygons[i].Format == "" {
			m.Polygons[i].Format = formatFromExt(m.Polygons[i].File)
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest for values that cannot produce a layout
func (m *Manifest) Validate() error {
	if m.Branching < 1 {
		return fmt.Errorf("branching must be at least 1, got %d", m.Branching)
	}
	if len(m.Polygons) == 0 {
		return errors.New("manifest lists no polygons")
	}
	for i, p := range m.Polygons {
		if p.File == "" {
			return fmt.Errorf("polygon %d: file is required", i)
		}
		if p.Copies < 1 {
			return fmt.Errorf("polygon %d: copies must be at least 1, got %d", i, p.Copies)
		}
		if p.Format != FormatPoints && p.Format != FormatGeoJSON {
			return fmt.Errorf("polygon %d: unknown format %q", i, p.Format)
		}
	}
	return nil
}

// Resolve reads every referenced file, relative paths against baseDir, and
// places the polygons in manifest order. Copy c of an entry is translated by
// (dx + c*step_dx, dy + c*step_dy).
func (m *Manifest) Resolve(baseDir string) (*polygon.Layout, error) {
	layout := polygon.NewLayout()
	for i, p := range m.Polygons {
		path := p.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}

		outlines, err := readOutlines(path, p.Format)
		if err != nil {
			return nil, fmt.Errorf("polygon %d: %w", i, err)
		}

		for c := 0; c < p.Copies; c++ {
			for _, o := range outlines {
				_, err := layout.Add(polygon.Placement{
					Source: o.Name,
					Xs:     o.Xs,
					Ys:     o.Ys,
					DX:     p.DX + float64(c)*p.StepDX,
					DY:     p.DY + float64(c)*p.StepDY,
				})
				if err != nil {
					return nil, fmt.Errorf("polygon %d (%s): %w", i, o.Name, err)
				}
			}
		}
	}
	return layout, nil
}

func readOutlines(path, format string) ([]pointio.Outline, error) {
	if format == FormatGeoJSON {
		return pointio.ReadGeoJSON(path)
	}
	xs, ys, err := pointio.ReadPointsFile(path)
	if err != nil {
		return nil, err
	}
	return []pointio.Outline{{Name: filepath.Base(path), Xs: xs, Ys: ys}}, nil
}

func formatFromExt(path string) string {
	switch filepath.Ext(path) {
	case ".geojson", ".json":
		return FormatGeoJSON
	}
	return FormatPoints
}
