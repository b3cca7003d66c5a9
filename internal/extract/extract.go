// Package extract computes the visible, unobstructed bounding boxes of the
// elements matched by a row's selector groups.
package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
)

// DefaultTargets are matched when no target selectors are configured.
var DefaultTargets = []string{"form", "button", ".form", ".button"}

// Query is the pair of selector groups evaluated against one page.
type Query struct {
	Source  string   `json:"source"`
	Targets []string `json:"targets"`
}

// RawBox is the geometry of one matched element as reported by the page.
type RawBox struct {
	Selector string  `json:"selector"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Top      float64 `json:"top"`
	Right    float64 `json:"right"`
	Bottom   float64 `json:"bottom"`
	Left     float64 `json:"left"`
	ZIndex   *int    `json:"zIndex"`
	Position string  `json:"position"`
}

// RawResult holds the boxes of both groups in document order. Target boxes are
// concatenated in the order of the target selectors.
type RawResult struct {
	Sources []RawBox `json:"sources"`
	Targets []RawBox `json:"targets"`
}

// DOMQueryExecutor runs a Query inside a rendered page in a single round trip.
type DOMQueryExecutor interface {
	QueryBoxes(ctx context.Context, q Query) (RawResult, error)
}

// Extractor turns executor output into attributed bounding boxes.
type Extractor struct {
	targets []string
	logger  *zap.Logger
}

// NewExtractor creates an extractor; an empty target list falls back to DefaultTargets.
func NewExtractor(targets []string, logger *zap.Logger) *Extractor {
	if len(targets) == 0 {
		targets = DefaultTargets
	}
	return &Extractor{
		targets: append([]string(nil), targets...),
		logger:  logger.Named("extractor"),
	}
}

// Targets returns the configured target selectors.
func (e *Extractor) Targets() []string {
	return append([]string(nil), e.targets...)
}

// Extract evaluates the row's source selector and the target selectors through exec.
func (e *Extractor) Extract(ctx context.Context, exec DOMQueryExecutor, row schemas.Row) (schemas.Graph, error) {
	raw, err := exec.QueryBoxes(ctx, Query{Source: row.Source, Targets: e.targets})
	if err != nil {
		return schemas.Graph{}, fmt.Errorf("failed to evaluate selectors on %s: %w", row.URL, err)
	}

	g := schemas.Graph{
		URL:     row.URL,
		Sources: attribute(raw.Sources, schemas.RoleSource, row),
		Targets: attribute(raw.Targets, schemas.RoleTarget, row),
	}
	e.logger.Debug("Extracted bounding boxes",
		zap.String("url", row.URL),
		zap.String("source", row.Source),
		zap.Int("sources", len(g.Sources)),
		zap.Int("targets", len(g.Targets)),
	)
	return g, nil
}

func attribute(raw []RawBox, role schemas.Role, row schemas.Row) []schemas.BoundingBox {
	boxes := make([]schemas.BoundingBox, 0, len(raw))
	for _, r := range raw {
		boxes = append(boxes, schemas.BoundingBox{
			Selector:       r.Selector,
			Role:           role,
			X:              r.X,
			Y:              r.Y,
			Width:          r.Width,
			Height:         r.Height,
			Top:            r.Top,
			Right:          r.Right,
			Bottom:         r.Bottom,
			Left:           r.Left,
			ZIndex:         r.ZIndex,
			Position:       r.Position,
			URL:            row.URL,
			ClickFrequency: row.ClickFrequency,
		})
	}
	return boxes
}
