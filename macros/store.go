package macros

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sambeau/roll/pkg/roll/roll"

	// SQLite driver
	_ "modernc.org/sqlite"
)

// Store keeps macros in a SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Entry is a stored macro
type Entry struct {
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS macros (
	name TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Open opens the macro store at path, creating it if necessary.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating macro store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening macro store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Set creates or replaces a macro.
func (s *Store) Set(name, body string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	_, err := s.db.Exec(
		`INSERT INTO macros (name, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		name, body, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving macro: %w", err)
	}
	return nil
}

// Get returns a macro body. ok is false when the macro does not exist.
func (s *Store) Get(name string) (body string, ok bool, err error) {
	err = s.db.QueryRow("SELECT body FROM macros WHERE name = ?", name).Scan(&body)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting macro: %w", err)
	}
	return body, true, nil
}

// Delete removes a macro.
func (s *Store) Delete(name string) error {
	result, err := s.db.Exec("DELETE FROM macros WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting macro: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("macro not found: %s", name)
	}
	return nil
}

// List returns all macros ordered by name.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query("SELECT name, body, updated_at FROM macros ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing macros: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.Body, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning macro: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// All returns the stored macros as a table.
func (s *Store) All() (roll.Macros, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}

	macros := make(roll.Macros, len(entries))
	for _, e := range entries {
		macros[e.Name] = e.Body
	}
	return macros, nil
}

// Import stores every macro in one transaction and returns how many were
// written. Nothing is written if any name is invalid.
func (s *Store) Import(macros roll.Macros) (int, error) {
	for name := range macros {
		if err := ValidateName(name); err != nil {
			return 0, err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO macros (name, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
	)
	if err != nil {
		return 0, fmt.Errorf("preparing import: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, name := range macros.Names() {
		if _, err := stmt.Exec(name, macros[name], now); err != nil {
			return 0, fmt.Errorf("importing macro %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}
	return len(macros), nil
}
