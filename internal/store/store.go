// Package store persists the frozen row sequence of each session.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
	"github.com/xkilldash9x/bbox-cli/internal/config"
)

var (
	// ErrSessionExists is returned by Put when the id was already written.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound is returned by Get for an unknown id.
	ErrSessionNotFound = errors.New("session not found")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// New opens the backend selected by cfg.
func New(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (schemas.SnapshotStore, error) {
	switch cfg.Backend {
	case config.StoreMemory, "":
		return NewMemory(), nil
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		s, err := NewPostgres(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	case config.StoreSQLite:
		return NewSQLite(ctx, cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func encodeRows(rows []schemas.Row) ([]byte, error) {
	if rows == nil {
		rows = []schemas.Row{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rows: %w", err)
	}
	return data, nil
}

func decodeRows(data []byte) ([]schemas.Row, error) {
	var rows []schemas.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode rows: %w", err)
	}
	return rows, nil
}
