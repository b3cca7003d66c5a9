// File: internal/service/service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
	"github.com/xkilldash9x/bbox-cli/internal/results"
	"github.com/xkilldash9x/bbox-cli/internal/rowsource"
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func missing(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "is required"}
}

// BatchRunner runs one paginated batch over a frozen row sequence.
type BatchRunner interface {
	Run(ctx context.Context, rows []schemas.Row, offset int) (schemas.BatchResult, error)
}

// StartRequest opens a new session.
type StartRequest struct {
	Hostname      string
	StartDate     string
	EndDate       string
	Checkpoint    string
	DomainKey     string
	Intersections bool
}

// NextRequest resumes a session. A nil Cursor starts from the beginning.
type NextRequest struct {
	SessionID     string `json:"sessionId"`
	Cursor        *int   `json:"cursor"`
	Intersections bool   `json:"intersections"`
}

// Service implements the start and next entry points.
type Service struct {
	rows   schemas.RowSource
	store  schemas.SnapshotStore
	runner BatchRunner
	newID  func() string
	logger *zap.Logger
}

// New wires a Service from its collaborators.
func New(rows schemas.RowSource, store schemas.SnapshotStore, runner BatchRunner, logger *zap.Logger) *Service {
	return &Service{
		rows:   rows,
		store:  store,
		runner: runner,
		newID:  uuid.NewString,
		logger: logger.Named("service"),
	}
}

func (r StartRequest) query() (schemas.RowQuery, error) {
	fields := []struct {
		name, value string
	}{
		{"hostname", r.Hostname},
		{"startdate", r.StartDate},
		{"enddate", r.EndDate},
		{"checkpoint", r.Checkpoint},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return schemas.RowQuery{}, missing(f.name)
		}
	}

	start, err := rowsource.ParseDate(r.StartDate)
	if err != nil {
		return schemas.RowQuery{}, &ValidationError{Field: "startdate", Message: err.Error()}
	}
	end, err := rowsource.ParseDate(r.EndDate)
	if err != nil {
		return schemas.RowQuery{}, &ValidationError{Field: "enddate", Message: err.Error()}
	}
	if end.Before(start) {
		return schemas.RowQuery{}, &ValidationError{Field: "enddate", Message: "must not be before startdate"}
	}

	return schemas.RowQuery{
		Hostname:   strings.TrimSpace(r.Hostname),
		StartDate:  start,
		EndDate:    end,
		Checkpoint: r.Checkpoint,
		DomainKey:  r.DomainKey,
	}, nil
}

// Start fetches the rows, freezes them under a new session id and runs the
// first batch.
func (s *Service) Start(ctx context.Context, req StartRequest) (*schemas.BatchResponse, error) {
	q, err := req.query()
	if err != nil {
		return nil, err
	}

	rows, err := s.rows.FetchRows(ctx, q)
	if err != nil {
		return nil, err
	}

	sessionID := s.newID()
	if err := s.store.Put(ctx, sessionID, rows); err != nil {
		return nil, fmt.Errorf("failed to persist session %s: %w", sessionID, err)
	}
	s.logger.Info("Session started",
		zap.String("session_id", sessionID),
		zap.String("hostname", q.Hostname),
		zap.Int("rows", len(rows)),
	)

	return s.run(ctx, sessionID, rows, 0, req.Intersections)
}

// Next resumes a session from its cursor.
func (s *Service) Next(ctx context.Context, req NextRequest) (*schemas.BatchResponse, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, missing("sessionId")
	}
	cursor := 0
	if req.Cursor != nil {
		cursor = *req.Cursor
	}
	if cursor < 0 {
		return nil, &ValidationError{Field: "cursor", Message: "must not be negative"}
	}

	rows, err := s.store.Get(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", req.SessionID, err)
	}
	if cursor > len(rows) {
		return nil, &ValidationError{Field: "cursor", Message: fmt.Sprintf("%d is past the end of the session (%d rows)", cursor, len(rows))}
	}

	return s.run(ctx, req.SessionID, rows, cursor, req.Intersections)
}

func (s *Service) run(ctx context.Context, sessionID string, rows []schemas.Row, offset int, intersections bool) (*schemas.BatchResponse, error) {
	start := time.Now()
	batch, err := s.runner.Run(ctx, rows, offset)
	if err != nil {
		return nil, err
	}

	resp := &schemas.BatchResponse{
		Result:    batch.Results,
		SessionID: sessionID,
		Total:     batch.Total,
		Cursor:    batch.Cursor,
	}
	if resp.Result == nil {
		resp.Result = []schemas.Graph{}
	}
	if intersections {
		resp.Intersections = results.AllIntersections(resp.Result)
	}

	s.logger.Info("Batch served",
		zap.String("session_id", sessionID),
		zap.Int("offset", offset),
		zap.Int("cursor", resp.Cursor),
		zap.Int("total", resp.Total),
		zap.Int("results", len(resp.Result)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}
