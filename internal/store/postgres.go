package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const (
	sqlCreateSnapshots = `
        CREATE TABLE IF NOT EXISTS session_snapshots (
            session_id TEXT PRIMARY KEY,
            rows JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlInsertSnapshot = `
        INSERT INTO session_snapshots (session_id, rows, created_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (session_id) DO NOTHING;
    `
	sqlSelectSnapshot = `
        SELECT rows FROM session_snapshots WHERE session_id = $1;
    `
)

// Postgres stores snapshots as JSONB rows.
type Postgres struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.SnapshotStore = (*Postgres)(nil)

// NewPostgres verifies the connection and creates the table if needed.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateSnapshots); err != nil {
		return nil, fmt.Errorf("failed to create session_snapshots: %w", err)
	}
	return &Postgres{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Put implements schemas.SnapshotStore.
func (s *Postgres) Put(ctx context.Context, sessionID string, rows []schemas.Row) error {
	data, err := encodeRows(rows)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, sqlInsertSnapshot, sessionID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert snapshot %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionExists
	}
	s.log.Debug("Snapshot stored", zap.String("session_id", sessionID), zap.Int("rows", len(rows)))
	return nil
}

// Get implements schemas.SnapshotStore.
func (s *Postgres) Get(ctx context.Context, sessionID string) ([]schemas.Row, error) {
	var data []byte
	if err := s.pool.QueryRow(ctx, sqlSelectSnapshot, sessionID).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot %s: %w", sessionID, err)
	}
	return decodeRows(data)
}

// Close releases the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
