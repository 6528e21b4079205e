package webtoonquiz

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBlobStore keeps blobs in a single key/value table of a SQLite file.
type SQLiteBlobStore struct {
	db *sql.DB
}

// OpenSQLiteBlobStore opens (and if needed creates) the database at dbPath.
func OpenSQLiteBlobStore(dbPath string) (*SQLiteBlobStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteBlobStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	VerboseLog("Opened SQLite store at %s", dbPath)
	return store, nil
}

// Close closes the database connection
func (s *SQLiteBlobStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteBlobStore) createTables() error {
	query := `CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	)`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create blobs table: %w", err)
	}
	return nil
}

func (s *SQLiteBlobStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM blobs WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get blob %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteBlobStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to put blob %s: %w", key, err)
	}
	return nil
}
