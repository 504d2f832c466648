// Package cache persists index snapshots to SQLite so the server can
// serve a warm index at startup before the first full rebuild completes.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshot_files (
	path  TEXT PRIMARY KEY,
	entry TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_meta (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	metadata  TEXT NOT NULL,
	backlinks TEXT NOT NULL,
	tags      TEXT NOT NULL,
	saved_at  DATETIME NOT NULL
);
`

// Store wraps a SQLite database holding at most one index snapshot.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the snapshot database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Save replaces the stored snapshot with idx within a transaction.
func (s *Store) Save(idx *models.Index) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM snapshot_files`); err != nil {
		return fmt.Errorf("cache: clear files: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO snapshot_files (path, entry) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("cache: prepare insert: %w", err)
	}
	defer stmt.Close()

	for path, entry := range idx.Files {
		blob, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("cache: marshal entry %s: %w", path, err)
		}
		if _, err := stmt.Exec(path, string(blob)); err != nil {
			return fmt.Errorf("cache: insert entry %s: %w", path, err)
		}
	}

	metaJSON, _ := json.Marshal(idx.Metadata)
	backJSON, _ := json.Marshal(idx.Backlinks)
	tagsJSON, _ := json.Marshal(idx.Tags)

	_, err = tx.Exec(`
		INSERT INTO snapshot_meta (id, metadata, backlinks, tags, saved_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			metadata  = excluded.metadata,
			backlinks = excluded.backlinks,
			tags      = excluded.tags,
			saved_at  = excluded.saved_at
	`, string(metaJSON), string(backJSON), string(tagsJSON), time.Now())
	if err != nil {
		return fmt.Errorf("cache: upsert meta: %w", err)
	}

	return tx.Commit()
}

// Load restores the stored snapshot, or apperr.ErrNotFound when the
// database holds none.
func (s *Store) Load() (*models.Index, error) {
	idx := models.NewIndex()

	var metaJSON, backJSON, tagsJSON string
	var savedAt time.Time
	err := s.conn.QueryRow(`SELECT metadata, backlinks, tags, saved_at FROM snapshot_meta WHERE id = 1`).
		Scan(&metaJSON, &backJSON, &tagsJSON, &savedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: load meta: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &idx.Metadata); err != nil {
		return nil, fmt.Errorf("cache: decode metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(backJSON), &idx.Backlinks); err != nil {
		return nil, fmt.Errorf("cache: decode backlinks: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &idx.Tags); err != nil {
		return nil, fmt.Errorf("cache: decode tags: %w", err)
	}

	rows, err := s.conn.Query(`SELECT path, entry FROM snapshot_files`)
	if err != nil {
		return nil, fmt.Errorf("cache: load files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path, blob string
		if err := rows.Scan(&path, &blob); err != nil {
			return nil, err
		}
		var entry models.FileEntry
		if err := json.Unmarshal([]byte(blob), &entry); err != nil {
			return nil, fmt.Errorf("cache: decode entry %s: %w", path, err)
		}
		idx.Files[path] = &entry
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return idx, nil
}

// SavedAt returns when the stored snapshot was written, or zero time and
// apperr.ErrNotFound when none exists.
func (s *Store) SavedAt() (time.Time, error) {
	var t time.Time
	err := s.conn.QueryRow(`SELECT saved_at FROM snapshot_meta WHERE id = 1`).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, apperr.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("cache: saved_at: %w", err)
	}
	return t, nil
}
