package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
	"github.com/xkilldash9x/bbox-cli/internal/browser"
	"github.com/xkilldash9x/bbox-cli/internal/capture"
	"github.com/xkilldash9x/bbox-cli/internal/extract"
	"github.com/xkilldash9x/bbox-cli/internal/results"
)

// Page is what a row needs from an open rendering session.
type Page interface {
	extract.DOMQueryExecutor
	capture.Surface
	Console() <-chan schemas.ConsoleRecord
	Close() error
}

// PageOpener opens a navigated page for a row.
type PageOpener interface {
	OpenPage(ctx context.Context, url, userAgent string) (Page, error)
}

type browserOpener struct {
	m *browser.Manager
}

// BrowserOpener adapts a browser.Manager to PageOpener.
func BrowserOpener(m *browser.Manager) PageOpener {
	return browserOpener{m: m}
}

func (o browserOpener) OpenPage(ctx context.Context, url, userAgent string) (Page, error) {
	p, err := o.m.OpenPage(ctx, url, userAgent)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// BrowserRowProcessor runs navigation, extraction, capture and sanitization for a row.
type BrowserRowProcessor struct {
	opener    PageOpener
	extractor *extract.Extractor
	capturer  *capture.Capturer
	logger    *zap.Logger
	console   *zap.Logger
}

var _ RowProcessor = (*BrowserRowProcessor)(nil)

// NewBrowserRowProcessor wires the per-row stages.
func NewBrowserRowProcessor(opener PageOpener, extractor *extract.Extractor, capturer *capture.Capturer, logger *zap.Logger) *BrowserRowProcessor {
	l := logger.Named("row")
	return &BrowserRowProcessor{
		opener:    opener,
		extractor: extractor,
		capturer:  capturer,
		logger:    l,
		console:   l.Named("console"),
	}
}

// Process implements RowProcessor. Navigation and extraction failures skip the row.
func (p *BrowserRowProcessor) Process(ctx context.Context, row schemas.Row) (schemas.Graph, bool) {
	logger := p.logger.With(zap.String("url", row.URL), zap.String("source", row.Source))

	page, err := p.opener.OpenPage(ctx, row.URL, row.UA())
	if err != nil {
		var navErr *browser.NavigationError
		if errors.As(err, &navErr) {
			logger.Warn("Skipping row, page did not load", zap.Error(navErr.Err))
		} else {
			logger.Warn("Skipping row, page could not be opened", zap.Error(err))
		}
		return schemas.Graph{}, false
	}

	var drained sync.WaitGroup
	drained.Add(1)
	go func() {
		defer drained.Done()
		for rec := range page.Console() {
			p.console.Debug(rec.Text,
				zap.String("url", row.URL),
				zap.String("type", rec.Type),
				zap.String("origin", rec.Source),
			)
		}
	}()
	defer func() {
		if err := page.Close(); err != nil {
			logger.Debug("Page close reported an error", zap.Error(err))
		}
		drained.Wait()
	}()

	g, err := p.extractor.Extract(ctx, page, row)
	if err != nil {
		logger.Warn("Skipping row, extraction failed", zap.Error(err))
		return schemas.Graph{}, false
	}

	g, ok := results.SanitizeGraph(g)
	if !ok {
		logger.Debug("Row produced no boxes")
		return schemas.Graph{}, false
	}

	g = p.capturer.CaptureGraph(ctx, page, g, row.IsMobile())
	logger.Debug("Row processed",
		zap.Int("sources", len(g.Sources)),
		zap.Int("targets", len(g.Targets)),
	)
	return g, true
}
