// Package pointio reads point lists and reference vectors from text files,
// polygon outlines from GeoJSON, and writes query results as CSV.
package pointio

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"polyindex/internal/models"
)

// ReadPoints parses one "x y" pair per line. Fields may be separated by
// whitespace or a comma; blank lines and lines starting with # are skipped.
func ReadPoints(r io.Reader) (xs, ys []float64, err error) {
	err = scanLines(r, func(lineNo int, fields []string) error {
		if len(fields) != 2 {
			return fmt.Errorf("line %d: expected 2 values, got %d", lineNo, len(fields))
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return fmt.Errorf("line %d: bad x: %w", lineNo, err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return fmt.Errorf("line %d: bad y: %w", lineNo, err)
		}
		xs = append(xs, x)
		ys = append(ys, y)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return xs, ys, nil
}

// ReadPointsFile reads a point list from path
func ReadPointsFile(path string) (xs, ys []float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open points: %w", err)
	}
	defer f.Close()

	xs, ys, err = ReadPoints(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return xs, ys, nil
}

// ReadBatchFile reads a point list from path as a query batch
func ReadBatchFile(path string) (models.Batch, error) {
	xs, ys, err := ReadPointsFile(path)
	if err != nil {
		return models.Batch{}, err
	}
	return models.Batch{Xs: xs, Ys: ys}, nil
}

// ReadFloats parses one float per line
func ReadFloats(r io.Reader) ([]float64, error) {
	var out []float64
	err := scanValues(r, func(lineNo int, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

// ReadInts parses one integer per line
func ReadInts(r io.Reader) ([]int, error) {
	var out []int
	err := scanValues(r, func(lineNo int, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, n)
		return nil
	})
	return out, err
}

// ReadBools parses one boolean per line; true/false and 1/0 are accepted
func ReadBools(r io.Reader) ([]bool, error) {
	var out []bool
	err := scanValues(r, func(lineNo int, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, b)
		return nil
	})
	return out, err
}

// ReadFloatsFile reads a float vector from path
func ReadFloatsFile(path string) ([]float64, error) {
	return readFile(path, ReadFloats)
}

// ReadIntsFile reads an integer vector from path
func ReadIntsFile(path string) ([]int, error) {
	return readFile(path, ReadInts)
}

// ReadBoolsFile reads a boolean vector from path
func ReadBoolsFile(path string) ([]bool, error) {
	return readFile(path, ReadBools)
}

func readFile[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector: %w", err)
	}
	defer f.Close()

	out, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

func scanValues(r io.Reader, fn func(lineNo int, v string) error) error {
	return scanLines(r, func(lineNo int, fields []string) error {
		if len(fields) != 1 {
			return fmt.Errorf("line %d: expected 1 value, got %d", lineNo, len(fields))
		}
		return fn(lineNo, fields[0])
	})
}

func scanLines(r io.Reader, fn func(lineNo int, fields []string) error) error {
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(c rune) bool {
			return c == ',' || c == ' ' || c == '\t' || c == ';'
		})
		if err := fn(lineNo, fields); err != nil {
			return err
		}
	}
	return sc.Err()
}

// WriteResults writes one CSV row per query point: its coordinates followed
// by one column per requested kind, in the order given.
func WriteResults(w io.Writer, batch models.Batch, res *models.Results, kinds []models.QueryKind) error {
	cw := csv.NewWriter(w)

	header := []string{"x", "y"}
	for _, k := range kinds {
		header = append(header, string(k))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for i := 0; i < batch.Len(); i++ {
		row = row[:0]
		row = append(row, formatFloat(batch.Xs[i]), formatFloat(batch.Ys[i]))
		for _, k := range kinds {
			switch k {
			case models.KindEdge:
				row = append(row, formatFloat(res.DistanceEdge[i]))
			case models.KindVertex:
				row = append(row, formatFloat(res.DistanceVertex[i]))
			case models.KindClosest:
				row = append(row, strconv.Itoa(res.ClosestVertex[i]))
			case models.KindContains:
				row = append(row, strconv.FormatBool(res.Contains[i]))
			default:
				return fmt.Errorf("unknown query kind %q", k)
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
