// Package statestore persists serialized emitter and chronicler state so a
// process can rebuild its components after a restart.
package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrNotFound is returned when no state is stored under an id.
var ErrNotFound = errors.New("state not found")

// Kind tells emitter state from chronicler state.
type Kind string

const (
	KindEmitter    Kind = "emitter"
	KindChronicler Kind = "chronicler"
)

// Entry is one stored state token.
type Entry struct {
	ID        string    `json:"id" yaml:"id"`
	Kind      Kind      `json:"kind" yaml:"kind"`
	Type      string    `json:"type" yaml:"type"`
	State     string    `json:"state" yaml:"state"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Store is a SQLite backed state store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path. ":memory:" is accepted for tests.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS states (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			type TEXT NOT NULL,
			state TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (kind, id)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &Store{db: db}, nil
}

// Put inserts or replaces an entry. A zero UpdatedAt is set to now.
func (s *Store) Put(ctx context.Context, e Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO states (kind, id, type, state, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			type = excluded.type,
			state = excluded.state,
			updated_at = excluded.updated_at
	`, string(e.Kind), e.ID, e.Type, e.State, e.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert state %s/%s: %w", e.Kind, e.ID, err)
	}
	return nil
}

// Get returns the entry stored under kind and id.
func (s *Store) Get(ctx context.Context, kind Kind, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT kind, id, type, state, updated_at FROM states
		WHERE kind = ? AND id = ?
	`, string(kind), id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, id)
	}
	return e, err
}

// List returns every entry of kind ordered by id.
func (s *Store) List(ctx context.Context, kind Kind) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, id, type, state, updated_at FROM states
		WHERE kind = ?
		ORDER BY id
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes an entry. Deleting a missing entry is not an error.
func (s *Store) Delete(ctx context.Context, kind Kind, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM states WHERE kind = ? AND id = ?`, string(kind), id); err != nil {
		return fmt.Errorf("delete state %s/%s: %w", kind, id, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e         Entry
		kind      string
		updatedAt string
	)
	if err := row.Scan(&kind, &e.ID, &e.Type, &e.State, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan state: %w", err)
	}
	e.Kind = Kind(kind)

	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse updated_at: %w", err)
	}
	e.UpdatedAt = ts
	return e, nil
}
