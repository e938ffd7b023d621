// Package starstore provides the star catalogue backing a map, stored in SQLite.
package starstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/starmap-tiles/server/internal/starmap"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a star does not exist.
var ErrNotFound = errors.New("star not found")

// Store provides persistent storage for stars and their bodies.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (or creates) a catalogue at dbPath. ":memory:" is accepted
// for throwaway stores.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		// Ensure directory exists
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stars (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		color TEXT NOT NULL DEFAULT 'white',
		zone TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_stars_xy ON stars(x, y);

	CREATE TABLE IF NOT EXISTS bodies (
		id INTEGER PRIMARY KEY,
		star_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		orbit INTEGER NOT NULL,
		type TEXT NOT NULL,
		image TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (star_id) REFERENCES stars(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_bodies_star ON bodies(star_id, orbit);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Insert stores stars and their bodies in one transaction. Stars with a zero
// ID get one assigned by SQLite; bodies inherit their star's ID.
func (s *Store) Insert(ctx context.Context, stars []starmap.Star) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	starStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stars (id, name, x, y, color, zone)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer starStmt.Close()

	bodyStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bodies (id, star_id, name, x, y, orbit, type, image)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer bodyStmt.Close()

	for _, st := range stars {
		var id interface{}
		if st.ID != 0 {
			id = st.ID
		}
		res, err := starStmt.ExecContext(ctx, id, st.Name, st.X, st.Y, st.Color, st.Zone)
		if err != nil {
			return fmt.Errorf("failed to insert star %q: %w", st.Name, err)
		}
		starID := st.ID
		if starID == 0 {
			if starID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		for _, b := range st.Bodies {
			var bid interface{}
			if b.ID != 0 {
				bid = b.ID
			}
			if _, err := bodyStmt.ExecContext(ctx, bid, starID, b.Name, b.X, b.Y, b.Orbit, b.Type, b.Image); err != nil {
				return fmt.Errorf("failed to insert body %q: %w", b.Name, err)
			}
		}
	}

	return tx.Commit()
}

// QueryRegion returns the stars whose position lies inside r, with their
// bodies, ordered by ID.
func (s *Store) QueryRegion(ctx context.Context, r starmap.Region) ([]starmap.Star, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, x, y, color, zone
		FROM stars
		WHERE x BETWEEN ? AND ? AND y BETWEEN ? AND ?
		ORDER BY id
	`, r.Left, r.Right, r.Bottom, r.Top)
	if err != nil {
		return nil, err
	}
	stars, err := scanStars(rows)
	if err != nil {
		return nil, err
	}
	if len(stars) == 0 {
		return stars, nil
	}

	index := make(map[int64]int, len(stars))
	ids := make([]interface{}, len(stars))
	for i, st := range stars {
		index[st.ID] = i
		ids[i] = st.ID
	}

	bodies, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, star_id, name, x, y, orbit, type, image
		FROM bodies
		WHERE star_id IN (%s)
		ORDER BY star_id, orbit, id
	`, placeholders(len(ids))), ids...)
	if err != nil {
		return nil, err
	}
	defer bodies.Close()

	for bodies.Next() {
		var b starmap.Body
		if err := bodies.Scan(&b.ID, &b.StarID, &b.Name, &b.X, &b.Y, &b.Orbit, &b.Type, &b.Image); err != nil {
			return nil, err
		}
		i := index[b.StarID]
		stars[i].Bodies = append(stars[i].Bodies, b)
	}
	return stars, bodies.Err()
}

// Star returns a single star with its bodies.
func (s *Store) Star(ctx context.Context, id int64) (*starmap.Star, error) {
	var st starmap.Star
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, x, y, color, zone FROM stars WHERE id = ?
	`, id).Scan(&st.ID, &st.Name, &st.X, &st.Y, &st.Color, &st.Zone)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, star_id, name, x, y, orbit, type, image
		FROM bodies WHERE star_id = ?
		ORDER BY orbit, id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var b starmap.Body
		if err := rows.Scan(&b.ID, &b.StarID, &b.Name, &b.X, &b.Y, &b.Orbit, &b.Type, &b.Image); err != nil {
			return nil, err
		}
		st.Bodies = append(st.Bodies, b)
	}
	return &st, rows.Err()
}

// Count returns the number of stars in the catalogue.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stars").Scan(&n)
	return n, err
}

// Delete removes a star and its bodies.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Delete bodies first
	if _, err := s.db.ExecContext(ctx, "DELETE FROM bodies WHERE star_id = ?", id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM stars WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanStars(rows *sql.Rows) ([]starmap.Star, error) {
	defer rows.Close()
	stars := []starmap.Star{}
	for rows.Next() {
		var st starmap.Star
		if err := rows.Scan(&st.ID, &st.Name, &st.X, &st.Y, &st.Color, &st.Zone); err != nil {
			return nil, err
		}
		stars = append(stars, st)
	}
	return stars, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
