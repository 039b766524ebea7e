package series

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists series in a SQLite database via the pure-Go
// modernc.org/sqlite driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a series database at path.
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("series: open database: %w", err)
	}
	if strings.Contains(path, ":memory:") {
		// An in-memory database lives per connection; the pool must
		// not open a second one.
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("series: migrate: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS series (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		population REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS points (
		id TEXT PRIMARY KEY,
		series_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		t REAL NOT NULL,
		count REAL NOT NULL,
		FOREIGN KEY (series_id) REFERENCES series(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_points_series_seq ON points(series_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put stores the series and its points in one transaction.
func (s *SQLiteStore) Put(sr *Series) (string, error) {
	if sr == nil {
		return "", fmt.Errorf("series: nil series")
	}
	if err := sr.Validate(); err != nil {
		return "", err
	}

	id := sr.ID
	if id == "" {
		id = uuid.NewString()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("series: put %q: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO series (id, name, region, population) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name,
		 region = excluded.region, population = excluded.population`,
		id, sr.Name, sr.Region, sr.Population,
	); err != nil {
		return "", fmt.Errorf("series: put %q: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM points WHERE series_id = ?`, id); err != nil {
		return "", fmt.Errorf("series: put %q: %w", id, err)
	}

	insert, err := tx.Prepare(`INSERT INTO points (id, series_id, seq, t, count) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("series: put %q: %w", id, err)
	}
	defer insert.Close()
	for i := range sr.Times {
		if _, err := insert.Exec(uuid.NewString(), id, i, sr.Times[i], sr.Counts[i]); err != nil {
			return "", fmt.Errorf("series: put %q point %d: %w", id, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("series: put %q: %w", id, err)
	}
	slog.Debug("series stored", "id", id, "name", sr.Name, "points", len(sr.Times))
	return id, nil
}

// Get loads the series under id.
func (s *SQLiteStore) Get(id string) (*Series, error) {
	row := s.db.QueryRow(`SELECT id, name, region, population FROM series WHERE id = ?`, id)

	var sr Series
	err := row.Scan(&sr.ID, &sr.Name, &sr.Region, &sr.Population)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("series: get %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("series: get %q: %w", id, err)
	}

	if err := s.loadPoints(&sr); err != nil {
		return nil, fmt.Errorf("series: get %q: %w", id, err)
	}
	return &sr, nil
}

func (s *SQLiteStore) loadPoints(sr *Series) error {
	rows, err := s.db.Query(`SELECT t, count FROM points WHERE series_id = ? ORDER BY seq`, sr.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var t, count float64
		if err := rows.Scan(&t, &count); err != nil {
			return err
		}
		sr.Times = append(sr.Times, t)
		sr.Counts = append(sr.Counts, count)
	}
	return rows.Err()
}

// List loads every stored series, ordered by name.
func (s *SQLiteStore) List() ([]*Series, error) {
	rows, err := s.db.Query(`SELECT id, name, region, population FROM series ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("series: list: %w", err)
	}
	defer rows.Close()

	var out []*Series
	for rows.Next() {
		var sr Series
		if err := rows.Scan(&sr.ID, &sr.Name, &sr.Region, &sr.Population); err != nil {
			return nil, fmt.Errorf("series: list: %w", err)
		}
		out = append(out, &sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("series: list: %w", err)
	}

	for _, sr := range out {
		if err := s.loadPoints(sr); err != nil {
			return nil, fmt.Errorf("series: list %q: %w", sr.ID, err)
		}
	}
	return out, nil
}

// Delete removes the series under id and its points.
func (s *SQLiteStore) Delete(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("series: delete %q: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM points WHERE series_id = ?`, id); err != nil {
		return fmt.Errorf("series: delete %q: %w", id, err)
	}
	res, err := tx.Exec(`DELETE FROM series WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("series: delete %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("series: delete %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("series: delete %q: %w", id, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("series: delete %q: %w", id, err)
	}
	slog.Debug("series deleted", "id", id)
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
