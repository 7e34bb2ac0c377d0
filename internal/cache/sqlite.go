package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// registers the "sqlite" database/sql driver
	_ "modernc.org/sqlite"
)

const createCacheTable = `CREATE TABLE IF NOT EXISTS cache_sets (
    key        TEXT PRIMARY KEY,
    payload    BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL
);`

// OpenSQLite opens (creating if needed) the on-device SQLite database at path.
// The connection pool is limited to one connection, which keeps writes
// serialized and makes ":memory:" databases usable.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

type sqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a Store backed by the cache_sets table of db.
// The caller owns db and is responsible for closing it.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (Store, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if _, err := db.ExecContext(ctx, createCacheTable); err != nil {
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}
	return &sqliteStore{db: db, now: time.Now}, nil
}

func (s *sqliteStore) ReadSet(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM cache_sets WHERE key = ?`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	return payload, nil
}

func (s *sqliteStore) WriteSet(ctx context.Context, key string, payload []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_sets (key, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, payload, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) DeleteSet(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_sets WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache key %s: %w", key, err)
	}
	return nil
}
