package schemas

import (
	"context"
	"time"
)

// RowQuery selects the rows a session is built from.
type RowQuery struct {
	Hostname   string
	StartDate  time.Time
	EndDate    time.Time
	Checkpoint string
	DomainKey  string
}

// RowSource fetches the analytics rows for a query. It is called once per session.
type RowSource interface {
	FetchRows(ctx context.Context, q RowQuery) ([]Row, error)
}

// SnapshotStore persists frozen row sequences keyed by session id. Put is write-once.
type SnapshotStore interface {
	Put(ctx context.Context, sessionID string, rows []Row) error
	Get(ctx context.Context, sessionID string) ([]Row, error)
	Close() error
}
