package chronicler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// TypeSQLite is the registry key of the SQLite chronicler.
const TypeSQLite = "sqlite"

// SQLiteProperties configures the SQLite chronicler.
type SQLiteProperties struct {
	// Path is a database file, or ":memory:" for tests.
	Path string `json:"path"`
}

// SQLite stores records as rows of a local database.
type SQLite struct {
	Base
	props  SQLiteProperties
	db     *sql.DB
	mu     sync.RWMutex
	logger logger.ILogger
}

// NewSQLite creates a new SQLite chronicler.
func NewSQLite(id model.Identity, props SQLiteProperties, log logger.ILogger) *SQLite {
	return &SQLite{
		Base:   NewBase(TypeSQLite, id, props),
		props:  props,
		logger: log.SubLogger("SQLiteChronicler"),
	}
}

// SQLiteFactory builds SQLite chroniclers.
func SQLiteFactory(log logger.ILogger) FactoryFunc {
	return func(ctx context.Context, desc model.ChroniclerDescription) (Chronicler, error) {
		var props SQLiteProperties
		if err := decodeProperties(desc.ChroniclerProperties, &props); err != nil {
			return nil, err
		}
		if props.Path == "" {
			return nil, fmt.Errorf("sqlite chronicler %q needs a path", desc.ID)
		}
		return NewSQLite(desc.Identity(), props, log), nil
	}
}

// Start opens the database and creates the records table.
func (s *SQLite) Start(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.props.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			chronicler_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			emitter_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			body TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return fmt.Errorf("create table: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_records_emitter
		ON records(emitter_id, timestamp)
	`); err != nil {
		db.Close()
		return fmt.Errorf("create index: %w", err)
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()

	s.logger.Debugf("sqlite chronicler writing to %s", s.props.Path)
	return nil
}

// Stop closes the database.
func (s *SQLite) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DisposeAsync closes the database.
func (s *SQLite) DisposeAsync(ctx context.Context) error {
	return s.Stop(ctx)
}

// SaveRecord inserts one row per record.
func (s *SQLite) SaveRecord(ctx context.Context, rec Record) error {
	fields := rec.Record()
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return ErrNotStarted
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (chronicler_id, kind, emitter_id, timestamp, body)
		VALUES (?, ?, ?, ?, ?)
	`, s.ID(), stringField(fields, "kind"), stringField(fields, "emitterId"),
		timestampOf(fields).UTC().Format(time.RFC3339Nano), string(body))
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Recent returns up to limit records of an emitter, newest first.
func (s *SQLite) Recent(ctx context.Context, emitterID string, limit int) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotStarted
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM records
		WHERE emitter_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, emitterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
