package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_snapshots (
    session_id TEXT PRIMARY KEY,
    rows TEXT NOT NULL,
    created_at TEXT NOT NULL
);`

// SQLite stores snapshots in a single local database file.
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

var _ schemas.SnapshotStore = (*SQLite)(nil)

// NewSQLite opens or creates the database at path.
func NewSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps INSERT OR IGNORE free of SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Named("store").Info("SQLite session store opened", zap.String("path", path))
	return &SQLite{db: db, log: logger.Named("store")}, nil
}

// Put implements schemas.SnapshotStore.
func (s *SQLite) Put(ctx context.Context, sessionID string, rows []schemas.Row) error {
	data, err := encodeRows(rows)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO session_snapshots (session_id, rows, created_at) VALUES (?, ?, ?)",
		sessionID, string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if n == 0 {
		return ErrSessionExists
	}
	return nil
}

// Get implements schemas.SnapshotStore.
func (s *SQLite) Get(ctx context.Context, sessionID string) ([]schemas.Row, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT rows FROM session_snapshots WHERE session_id = ?", sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", sessionID, err)
	}
	return decodeRows([]byte(data))
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
