// Package pipeline walks a frozen row sequence one row at a time until a batch
// quota of non-empty graphs is collected.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
)

// DefaultQuota is the number of non-empty graphs a batch aims for.
const DefaultQuota = 5

// RowProcessor turns one row into a sanitized graph. ok is false when the row
// produced nothing worth returning. Implementations recover per-row failures.
type RowProcessor interface {
	Process(ctx context.Context, row schemas.Row) (g schemas.Graph, ok bool)
}

// Pipeline runs a RowProcessor serially over a row sequence.
type Pipeline struct {
	processor RowProcessor
	quota     int
	logger    *zap.Logger
}

// New creates a Pipeline. A non-positive quota falls back to DefaultQuota.
func New(processor RowProcessor, quota int, logger *zap.Logger) *Pipeline {
	if quota <= 0 {
		quota = DefaultQuota
	}
	return &Pipeline{
		processor: processor,
		quota:     quota,
		logger:    logger.Named("pipeline"),
	}
}

// Quota returns the batch quota.
func (p *Pipeline) Quota() int { return p.quota }

// Run processes rows starting at offset until the quota is met or the rows are
// exhausted. The returned cursor counts rows scanned. Run fails only when ctx
// ends, in which case nothing is returned.
func (p *Pipeline) Run(ctx context.Context, rows []schemas.Row, offset int) (schemas.BatchResult, error) {
	total := len(rows)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}

	start := time.Now()
	first := offset
	results := make([]schemas.Graph, 0, p.quota)

	for offset < total && len(results) < p.quota {
		if err := ctx.Err(); err != nil {
			return schemas.BatchResult{}, fmt.Errorf("batch interrupted at row %d: %w", offset, err)
		}

		row := rows[offset]
		if g, ok := p.processor.Process(ctx, row); ok {
			results = append(results, g)
		}
		offset++
	}

	p.logger.Info("Batch complete",
		zap.Int("from", first),
		zap.Int("cursor", offset),
		zap.Int("total", total),
		zap.Int("results", len(results)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return schemas.BatchResult{
		Results:         results,
		PaginationState: schemas.PaginationState{Cursor: offset, Total: total},
	}, nil
}
