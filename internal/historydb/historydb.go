// Package historydb keeps the plug-in manager's recently used procedures
// in a SQLite database so they survive a restart.
package historydb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/FocuswithJustin/picman/core/errors"
	"github.com/FocuswithJustin/picman/core/sqlite"
)

// schemaVersion is stored in PRAGMA user_version.
const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS history (
	position INTEGER PRIMARY KEY,
	name     TEXT NOT NULL UNIQUE,
	used_at  INTEGER NOT NULL
)`

// Store implements plugins.HistoryStore on a SQLite file.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("historydb: read schema version: %w", err)
	}
	if version > schemaVersion {
		return errors.NewUnsupported("history schema", fmt.Sprintf("version %d", version))
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("historydb: create schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("historydb: set schema version: %w", err)
	}
	return nil
}

// Load returns the stored names, most recent first.
func (s *Store) Load() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT name FROM history ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("historydb: load: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("historydb: load: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Save replaces the stored list with names. Entries keep their previous
// use time unless they moved to the front.
func (s *Store) Save(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("historydb: save: %w", err)
	}
	defer tx.Rollback()

	used := make(map[string]int64)
	rows, err := tx.Query("SELECT name, used_at FROM history")
	if err != nil {
		return fmt.Errorf("historydb: save: %w", err)
	}
	for rows.Next() {
		var name string
		var at int64
		if err := rows.Scan(&name, &at); err != nil {
			rows.Close()
			return fmt.Errorf("historydb: save: %w", err)
		}
		used[name] = at
	}
	rows.Close()

	if _, err := tx.Exec("DELETE FROM history"); err != nil {
		return fmt.Errorf("historydb: save: %w", err)
	}
	now := s.now().Unix()
	seen := make(map[string]bool, len(names))
	pos := 0
	for i, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		at, ok := used[name]
		if !ok || i == 0 {
			at = now
		}
		if _, err := tx.Exec("INSERT INTO history (position, name, used_at) VALUES (?, ?, ?)", pos, name, at); err != nil {
			return fmt.Errorf("historydb: save %s: %w", name, err)
		}
		pos++
	}
	return tx.Commit()
}

// Entry is one stored history row.
type Entry struct {
	Name   string
	UsedAt time.Time
}

// Entries returns the stored rows with their last use time, most recent
// first.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT name, used_at FROM history ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("historydb: entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at int64
		if err := rows.Scan(&e.Name, &at); err != nil {
			return nil, fmt.Errorf("historydb: entries: %w", err)
		}
		e.UsedAt = time.Unix(at, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
