package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/reliability"
)

// SQLiteStore implements Store using SQLite, so request states survive a restart.
// Entries are stored as JSON with the expiry in a separate indexed column.
type SQLiteStore struct {
	db      *sql.DB
	ttl     time.Duration
	opts    options
	sweeper *sweeper
	closed  sync.Once
}

// NewSQLiteStore opens or creates a SQLite database at dbPath, initializes the schema and
// starts the sweeper. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string, ttl, sweepInterval time.Duration, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps Update atomic.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{db: db, ttl: ttl, opts: buildOptions(opts)}
	s.sweeper = startSweeper(sweepInterval, s.opts.logger, s)
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS request_states (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_request_states_expires_at ON request_states(expires_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Set upserts a copy of state.
func (s *SQLiteStore) Set(ctx context.Context, state *models.RequestState) error {
	if state == nil || state.RequestID == "" {
		return &reliability.ValidationError{Field: "requestId", Message: "required"}
	}
	c := state.Clone()
	stamp(c, s.opts.clock(), s.ttl)
	return s.put(ctx, s.db, c)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *SQLiteStore) put(ctx context.Context, db execer, st *models.RequestState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal request state: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO request_states (id, status, payload, created_at, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status, payload = excluded.payload,
		   updated_at = excluded.updated_at, expires_at = excluded.expires_at`,
		st.RequestID, string(st.Status), string(payload),
		st.CreatedAt.UnixNano(), st.UpdatedAt.UnixNano(), st.ExpiresAt.UnixNano(),
	)
	return err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *SQLiteStore) load(ctx context.Context, db querier, id string) (*models.RequestState, error) {
	var payload string
	err := db.QueryRowContext(ctx,
		`SELECT payload FROM request_states WHERE id = ? AND expires_at > ?`,
		id, s.opts.clock().UnixNano(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var st models.RequestState
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request state: %w", err)
	}
	return &st, nil
}

// Get returns the live entry for id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.RequestState, error) {
	return s.load(ctx, s.db, id)
}

// Update reads, modifies and writes the entry in one transaction.
func (s *SQLiteStore) Update(ctx context.Context, id string, fn func(*models.RequestState) error) (*models.RequestState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	st, err := s.load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(st); err != nil {
		return nil, err
	}
	st.RequestID = id
	stamp(st, s.opts.clock(), s.ttl)
	if err := s.put(ctx, tx, st); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// Delete removes id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM request_states WHERE id = ?`, id)
	return err
}

// Len returns the number of rows including expired ones not yet swept.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM request_states`).Scan(&count)
	return count, err
}

// Sweep deletes expired rows.
func (s *SQLiteStore) Sweep(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM request_states WHERE expires_at <= ?`, s.opts.clock().UnixNano())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Shutdown stops the sweeper and closes the database. Stored rows are kept for the next start.
func (s *SQLiteStore) Shutdown() error {
	s.sweeper.halt()
	var err error
	s.closed.Do(func() { err = s.db.Close() })
	return err
}
