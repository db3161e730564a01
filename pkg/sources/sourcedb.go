package sources

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Source represents a row from the lookup_sources table.
type Source struct {
	ID          string  `json:"id"`
	Collection  string  `json:"collection"`
	File        string  `json:"file,omitempty"`
	Description string  `json:"description,omitempty"`
	SourceURL   string  `json:"source_url"`
	License     string  `json:"license,omitempty"`
	LastCheck   *int64  `json:"last_check,omitempty"`
	LastStatus  *int    `json:"last_status,omitempty"`
	LastError   *string `json:"last_error,omitempty"`
	LastFetch   *int64  `json:"last_fetch,omitempty"`
	UpdatedAt   int64   `json:"updated_at"`

	// LastModified is the upstream Last-Modified seen by the latest check.
	LastModified *int64 `json:"last_modified,omitempty"`
}

// Stale reports whether upstream changed after the last download, or the
// source was never downloaded although upstream announced a version.
func (s Source) Stale() bool {
	if s.LastModified == nil {
		return false
	}
	return s.LastFetch == nil || *s.LastModified > *s.LastFetch
}

// Check is the outcome of one availability check. Status 0 means the request
// never got an answer.
type Check struct {
	Status       int
	Err          string
	LastModified time.Time
}

// SourceDB manages the lookup_sources SQLite table.
type SourceDB struct {
	db *sql.DB
}

// OpenSourceDB opens (or creates) the SQLite database at path and ensures the
// lookup_sources table exists.
func OpenSourceDB(path string) (*SourceDB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open source db: %w", err)
	}

	const ddl = `CREATE TABLE IF NOT EXISTS lookup_sources (
		id            TEXT PRIMARY KEY,
		collection    TEXT NOT NULL,
		file          TEXT NOT NULL DEFAULT '',
		description   TEXT NOT NULL DEFAULT '',
		source_url    TEXT NOT NULL,
		license       TEXT NOT NULL DEFAULT '',
		last_check    INTEGER,
		last_status   INTEGER,
		last_error    TEXT,
		last_fetch    INTEGER,
		last_modified INTEGER,
		updated_at    INTEGER NOT NULL
	)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create lookup_sources table: %w", err)
	}
	if err := addColumn(db, "last_modified", "INTEGER"); err != nil {
		db.Close()
		return nil, err
	}

	return &SourceDB{db: db}, nil
}

// addColumn upgrades tables created before column existed.
func addColumn(db *sql.DB, column, typ string) error {
	rows, err := db.Query(`SELECT name FROM pragma_table_info('lookup_sources')`)
	if err != nil {
		return fmt.Errorf("inspect lookup_sources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("inspect lookup_sources: %w", err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect lookup_sources: %w", err)
	}
	if _, err := db.Exec(`ALTER TABLE lookup_sources ADD COLUMN ` + column + ` ` + typ); err != nil {
		return fmt.Errorf("add column %s: %w", column, err)
	}
	return nil
}

// Close closes the SQLite connection.
func (s *SourceDB) Close() error {
	return s.db.Close()
}

// Seed inserts a row per manifest entry. Existing rows are left untouched
// (INSERT OR IGNORE) so URL overrides survive restarts.
func (s *SourceDB) Seed(entries []Entry) error {
	const q = `INSERT OR IGNORE INTO lookup_sources
		(id, collection, file, description, source_url, license, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().Unix()
	for _, e := range entries {
		if _, err := s.db.Exec(q, e.ID, e.Collection, e.File, e.Description, e.URL, e.License, now); err != nil {
			return fmt.Errorf("seed %s: %w", e.ID, err)
		}
	}
	return nil
}

// Get returns one source by ID.
func (s *SourceDB) Get(id string) (Source, error) {
	row := s.db.QueryRow(`SELECT `+sourceColumns+` FROM lookup_sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err != nil {
		return Source{}, fmt.Errorf("get source %s: %w", id, err)
	}
	return src, nil
}

// GetURL returns the current source URL for a given source ID.
func (s *SourceDB) GetURL(id string) (string, error) {
	var url string
	err := s.db.QueryRow(`SELECT source_url FROM lookup_sources WHERE id = ?`, id).Scan(&url)
	if err != nil {
		return "", fmt.Errorf("get url for %s: %w", id, err)
	}
	return url, nil
}

// SetURL overrides the source URL and records the change timestamp.
func (s *SourceDB) SetURL(id, url string) error {
	res, err := s.db.Exec(
		`UPDATE lookup_sources SET source_url = ?, updated_at = ? WHERE id = ?`,
		url, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("set url for %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("source %s not found in lookup_sources", id)
	}
	return nil
}

// UpdateCheck persists the result of an availability check. A zero
// LastModified keeps the previously recorded one.
func (s *SourceDB) UpdateCheck(id string, c Check) error {
	var errPtr *string
	if c.Err != "" {
		errPtr = &c.Err
	}
	var modPtr *int64
	if !c.LastModified.IsZero() {
		mod := c.LastModified.Unix()
		modPtr = &mod
	}
	_, err := s.db.Exec(
		`UPDATE lookup_sources SET last_check = ?, last_status = ?, last_error = ?,
			last_modified = COALESCE(?, last_modified) WHERE id = ?`,
		time.Now().Unix(), c.Status, errPtr, modPtr, id,
	)
	if err != nil {
		return fmt.Errorf("update check for %s: %w", id, err)
	}
	return nil
}

// MarkFetched records a successful download.
func (s *SourceDB) MarkFetched(id string) error {
	if _, err := s.db.Exec(`UPDATE lookup_sources SET last_fetch = ? WHERE id = ?`, time.Now().Unix(), id); err != nil {
		return fmt.Errorf("mark fetched %s: %w", id, err)
	}
	return nil
}

// ListSources returns all rows ordered by collection then id.
func (s *SourceDB) ListSources() ([]Source, error) {
	rows, err := s.db.Query(`SELECT ` + sourceColumns + ` FROM lookup_sources ORDER BY collection, id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

const sourceColumns = `id, collection, file, description, source_url, license,
	last_check, last_status, last_error, last_fetch, last_modified, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(sc scanner) (Source, error) {
	var src Source
	err := sc.Scan(&src.ID, &src.Collection, &src.File, &src.Description, &src.SourceURL,
		&src.License, &src.LastCheck, &src.LastStatus, &src.LastError, &src.LastFetch, &src.LastModified, &src.UpdatedAt)
	return src, err
}
