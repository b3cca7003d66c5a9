package rowsource

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
	"github.com/xkilldash9x/bbox-cli/internal/config"
)

//go:embed queries/*.sql
var queryFS embed.FS

// Querier is the subset of pgxpool.Pool the SQL source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// SQLSource reads rows with a named-parameter query.
type SQLSource struct {
	db     Querier
	query  string
	name   string
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ schemas.RowSource = (*SQLSource)(nil)

// LoadQuery returns the embedded query with the given name.
func LoadQuery(name string) (string, error) {
	b, err := queryFS.ReadFile("queries/" + name + ".sql")
	if err != nil {
		return "", fmt.Errorf("unknown query %q: %w", name, err)
	}
	return string(b), nil
}

// NewSQLSource wraps an existing connection.
func NewSQLSource(db Querier, queryName string, logger *zap.Logger) (*SQLSource, error) {
	q, err := LoadQuery(queryName)
	if err != nil {
		return nil, err
	}
	return &SQLSource{
		db:     db,
		query:  q,
		name:   queryName,
		logger: logger.Named("rowsource").With(zap.String("kind", config.RowSourceSQL), zap.String("query", queryName)),
	}, nil
}

// ConnectSQLSource opens a pool for cfg.URL. Callers release it with Close.
func ConnectSQLSource(ctx context.Context, cfg config.SQLSourceConfig, logger *zap.Logger) (*SQLSource, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rowsource.sql.url is required")
	}
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create row source pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to row source database: %w", err)
	}
	s, err := NewSQLSource(pool, cfg.QueryName, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.pool = pool
	return s, nil
}

// Close releases the pool opened by ConnectSQLSource.
func (s *SQLSource) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func queryArgs(q schemas.RowQuery) pgx.NamedArgs {
	return pgx.NamedArgs{
		"hostname":   q.Hostname,
		"checkpoint": q.Checkpoint,
		"startdate":  q.StartDate.Format(DateLayout),
		"enddate":    q.EndDate.Format(DateLayout),
	}
}

// FetchRows implements schemas.RowSource.
func (s *SQLSource) FetchRows(ctx context.Context, q schemas.RowQuery) ([]schemas.Row, error) {
	args := queryArgs(q)
	s.logger.Debug("Debug SQL", zap.String("sql", FormatQueryForDebug(s.query, args)))

	start := time.Now()
	rows, err := s.db.Query(ctx, s.query, args)
	if err != nil {
		return nil, &UpstreamError{Source: config.RowSourceSQL, Err: fmt.Errorf("query failed: %w", err)}
	}
	defer rows.Close()

	out := []schemas.Row{}
	for rows.Next() {
		var r schemas.Row
		if err := rows.Scan(&r.URL, &r.Source, &r.UserAgent, &r.ClickFrequency, &r.Weight); err != nil {
			return nil, &UpstreamError{Source: config.RowSourceSQL, Err: fmt.Errorf("failed to scan row: %w", err)}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &UpstreamError{Source: config.RowSourceSQL, Err: fmt.Errorf("row iteration failed: %w", err)}
	}

	s.logger.Info("Fetched rows",
		zap.String("hostname", q.Hostname),
		zap.Int("rows", len(out)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
