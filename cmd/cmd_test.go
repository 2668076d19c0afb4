package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestLoadQueryVerify(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")

	writeFile(t, dir, "square.txt", "0 0\n1 0\n1 1\n0 1\n")
	manifestPath := writeFile(t, dir, "layout.yaml", "name: square\npolygons:\n  - file: square.txt\n")
	points := writeFile(t, dir, "points.txt", "0.6 0.6\n0.5 -0.5\n")
	edge := writeFile(t, dir, "edge.txt", "0.4\n0.5\n")
	closest := writeFile(t, dir, "closest.txt", "2\n0\n")
	contains := writeFile(t, dir, "contains.txt", "true\nfalse\n")
	out := filepath.Join(dir, "out.csv")

	if err := execute(t, "--db", db, "load", manifestPath); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := execute(t, "--db", db, "query", "square", "--points", points, "--kinds", "edge,contains", "-o", out, "-q"); err != nil {
		t.Fatalf("query failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || lines[0] != "x,y,edge,contains" {
		t.Errorf("unexpected csv:\n%s", data)
	}

	err = execute(t, "--db", db, "verify", "square", "--points", points,
		"--edge", edge, "--closest", closest, "--contains", contains, "--cross-check")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	wrong := writeFile(t, dir, "wrong.txt", "3\n0\n")
	if err := execute(t, "--db", db, "verify", "square", "--points", points, "--closest", wrong, "--cross-check=false", "--edge", "", "--contains", ""); err == nil {
		t.Error("verify should fail on a wrong reference")
	}
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")
	writeFile(t, dir, "tri.txt", "0 0\n2 0\n1 2\n")
	manifestPath := writeFile(t, dir, "layout.yaml", "name: tri\npolygons:\n  - file: tri.txt\n    copies: 2\n    step_dx: 3\n")
	points := writeFile(t, dir, "points.txt", "1 0.5\n2.5 0.5\n")
	out := filepath.Join(dir, "tri.png")

	if err := execute(t, "--db", db, "load", manifestPath); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := execute(t, "--db", db, "render", "tri", "-o", out, "--points", points, "--width", "200", "--height", "100"); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		t.Errorf("png not written: %v", err)
	}
}

func TestQueryUnknownSet(t *testing.T) {
	dir := t.TempDir()
	points := writeFile(t, dir, "points.txt", "0 0\n")
	if err := execute(t, "--db", filepath.Join(dir, "test.db"), "query", "missing", "--points", points, "-q"); err == nil {
		t.Error("expected an error for a missing set")
	}
}

func TestTrimExt(t *testing.T) {
	if got := trimExt("layout.yaml"); got != "layout" {
		t.Errorf("trimExt = %q, want layout", got)
	}
	if got := trimExt("noext"); got != "noext" {
		t.Errorf("trimExt = %q, want noext", got)
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("POLYINDEX_TEST_INT", "12")
	if got := envInt("POLYINDEX_TEST_INT", 3); got != 12 {
		t.Errorf("envInt = %d, want 12", got)
	}
	t.Setenv("POLYINDEX_TEST_INT", "-1")
	if got := envInt("POLYINDEX_TEST_INT", 3); got != 3 {
		t.Errorf("envInt = %d, want fallback 3", got)
	}
}
