package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"polyindex/internal/models"
	"polyindex/internal/polygon"
)

// ErrNotFound is returned when a named polygon set does not exist
var ErrNotFound = errors.New("polygon set not found")

// Storage persists polygon sets and query history in SQLite
type Storage struct {
	db     *sql.DB
	dbPath string
}

// NewStorage creates a new Storage
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Current schema version
const schemaVersion = 1

// migrations defines all schema migrations
// Each migration should be idempotent (safe to run multiple times)
var migrations = []struct {
	version     int
	description string
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // Handled by base schema creation
	},
}

// init creates the database schema
func (s *Storage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS polygon_sets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		branching INTEGER NOT NULL,
		num_vertices INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS polygons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		set_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		source TEXT DEFAULT '',
		dx REAL NOT NULL,
		dy REAL NOT NULL,
		index_offset INTEGER NOT NULL,
		num_vertices INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vertices (
		polygon_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		PRIMARY KEY (polygon_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_polygons_set_id ON polygons(set_id);

	CREATE TABLE IF NOT EXISTS query_runs (
		id TEXT PRIMARY KEY,
		set_name TEXT NOT NULL,
		kinds TEXT NOT NULL,
		num_points INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		exhaustive INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_query_runs_set ON query_runs(set_name);
	`

	_, err = s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// migrate runs pending schema migrations
func (s *Storage) migrate() error {
	currentVersion := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		if m.up != "" {
			if _, err := s.db.Exec(m.up); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
			}
		}

		s.setSchemaVersion(m.version)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

// setSchemaVersion records a migration as applied
func (s *Storage) setSchemaVersion(version int) {
	s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveSet stores a layout under name, replacing any set with the same name.
// Vertices are stored untranslated; translation and offsets live on the polygon rows.
func (s *Storage) SaveSet(name string, branching int, layout *polygon.Layout) (*models.PolygonSet, error) {
	if name == "" {
		return nil, errors.New("set name is required")
	}
	if branching < 1 {
		return nil, fmt.Errorf("%w: got %d", models.ErrBranchingFactor, branching)
	}
	if layout == nil || layout.Len() == 0 {
		return nil, errors.New("layout has no polygons")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteSet(tx, name); err != nil {
		return nil, err
	}

	createdAt := time.Now().UTC().Truncate(time.Second)
	res, err := tx.Exec(`
		INSERT INTO polygon_sets (name, branching, num_vertices, created_at)
		VALUES (?, ?, ?, ?)
	`, name, branching, layout.NumPoints(), createdAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert set %s: %w", name, err)
	}
	setID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	polyStmt, err := tx.Prepare(`
		INSERT INTO polygons (set_id, position, source, dx, dy, index_offset, num_vertices)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer polyStmt.Close()

	vertexStmt, err := tx.Prepare(`INSERT INTO vertices (polygon_id, position, x, y) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer vertexStmt.Close()

	records := layout.Records()
	for i, p := range layout.Placements() {
		rec := records[i]
		res, err := polyStmt.Exec(setID, rec.Position, rec.Source, rec.DX, rec.DY, rec.IndexOffset, rec.NumVertices)
		if err != nil {
			return nil, fmt.Errorf("failed to insert polygon %d: %w", i, err)
		}
		polyID, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		for j := range p.Xs {
			if _, err := vertexStmt.Exec(polyID, j, p.Xs[j], p.Ys[j]); err != nil {
				return nil, fmt.Errorf("failed to insert vertex %d of polygon %d: %w", j, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.PolygonSet{
		ID:          setID,
		Name:        name,
		Branching:   branching,
		NumVertices: layout.NumPoints(),
		Polygons:    records,
		CreatedAt:   createdAt,
	}, nil
}

// GetSet returns a set with its polygon records
func (s *Storage) GetSet(name string) (*models.PolygonSet, error) {
	set := &models.PolygonSet{}
	var createdAt int64
	err := s.db.QueryRow(`
		SELECT id, name, branching, num_vertices, created_at
		FROM polygon_sets WHERE name = ?
	`, name).Scan(&set.ID, &set.Name, &set.Branching, &set.NumVertices, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query set: %w", err)
	}
	set.CreatedAt = time.Unix(createdAt, 0).UTC()

	rows, err := s.db.Query(`
		SELECT position, source, dx, dy, index_offset, num_vertices
		FROM polygons WHERE set_id = ?
		ORDER BY position
	`, set.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query polygons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec := &models.PolygonRecord{}
		if err := rows.Scan(&rec.Position, &rec.Source, &rec.DX, &rec.DY, &rec.IndexOffset, &rec.NumVertices); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		set.Polygons = append(set.Polygons, rec)
	}
	return set, rows.Err()
}

// ListSets returns every stored set without polygon records, ordered by name
func (s *Storage) ListSets() ([]*models.PolygonSet, error) {
	rows, err := s.db.Query(`
		SELECT id, name, branching, num_vertices, created_at
		FROM polygon_sets
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sets: %w", err)
	}
	defer rows.Close()

	var sets []*models.PolygonSet
	for rows.Next() {
		set := &models.PolygonSet{}
		var createdAt int64
		if err := rows.Scan(&set.ID, &set.Name, &set.Branching, &set.NumVertices, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		set.CreatedAt = time.Unix(createdAt, 0).UTC()
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

// LoadLayout rebuilds the layout of a stored set
func (s *Storage) LoadLayout(name string) (*polygon.Layout, *models.PolygonSet, error) {
	set, err := s.GetSet(name)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.Query(`
		SELECT p.position, v.x, v.y
		FROM polygons p JOIN vertices v ON v.polygon_id = p.id
		WHERE p.set_id = ?
		ORDER BY p.position, v.position
	`, set.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query vertices: %w", err)
	}
	defer rows.Close()

	xs := make([][]float64, len(set.Polygons))
	ys := make([][]float64, len(set.Polygons))
	for rows.Next() {
		var pos int
		var x, y float64
		if err := rows.Scan(&pos, &x, &y); err != nil {
			return nil, nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if pos < 0 || pos >= len(xs) {
			return nil, nil, fmt.Errorf("vertex refers to unknown polygon %d", pos)
		}
		xs[pos] = append(xs[pos], x)
		ys[pos] = append(ys[pos], y)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	layout := polygon.NewLayout()
	for i, rec := range set.Polygons {
		_, err := layout.Add(polygon.Placement{
			Source: rec.Source,
			Xs:     xs[i],
			Ys:     ys[i],
			DX:     rec.DX,
			DY:     rec.DY,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("stored polygon %d: %w", i, err)
		}
	}
	return layout, set, nil
}

// DeleteSet removes a set and its polygons
func (s *Storage) DeleteSet(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(`SELECT id FROM polygon_sets WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return err
	}
	if err := deleteSet(tx, name); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteSet(tx *sql.Tx, name string) error {
	stmts := []string{
		`DELETE FROM vertices WHERE polygon_id IN (
			SELECT p.id FROM polygons p JOIN polygon_sets s ON p.set_id = s.id WHERE s.name = ?)`,
		`DELETE FROM polygons WHERE set_id IN (SELECT id FROM polygon_sets WHERE name = ?)`,
		`DELETE FROM polygon_sets WHERE name = ?`,
	}
	for _, q := range stmts {
		if _, err := tx.Exec(q, name); err != nil {
			return fmt.Errorf("failed to delete set %s: %w", name, err)
		}
	}
	return nil
}

// RecordQuery records a query run in history, assigning an ID and timestamp when unset
func (s *Storage) RecordQuery(run *models.QueryRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	kinds := make([]string, len(run.Kinds))
	for i, k := range run.Kinds {
		kinds[i] = string(k)
	}
	exhaustive := 0
	if run.Exhaustive {
		exhaustive = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO query_runs (id, set_name, kinds, num_points, duration_ns, exhaustive, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.SetName, strings.Join(kinds, ","), run.NumPoints, run.Duration.Nanoseconds(), exhaustive, run.CreatedAt.Unix())
	return err
}

// ListQueries returns the most recent runs first; an empty setName lists all
// sets and limit <= 0 returns every run.
func (s *Storage) ListQueries(setName string, limit int) ([]*models.QueryRun, error) {
	q := `SELECT id, set_name, kinds, num_points, duration_ns, exhaustive, created_at FROM query_runs`
	var args []any
	if setName != "" {
		q += ` WHERE set_name = ?`
		args = append(args, setName)
	}
	q += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.QueryRun
	for rows.Next() {
		run := &models.QueryRun{}
		var kinds string
		var durationNs, createdAt int64
		var exhaustive int
		if err := rows.Scan(&run.ID, &run.SetName, &kinds, &run.NumPoints, &durationNs, &exhaustive, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for _, k := range strings.Split(kinds, ",") {
			if k != "" {
				run.Kinds = append(run.Kinds, models.QueryKind(k))
			}
		}
		run.Duration = time.Duration(durationNs)
		run.Exhaustive = exhaustive == 1
		run.CreatedAt = time.Unix(createdAt, 0).UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
