// File: internal/service/components.go
package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
	"github.com/xkilldash9x/bbox-cli/internal/pipeline"
)

// BrowserShutdowner is the lifecycle half of browser.Manager.
type BrowserShutdowner interface {
	Shutdown(ctx context.Context) error
}

// Components holds every long-lived dependency of the HTTP service and
// releases them in dependency order.
type Components struct {
	Service        *Service
	Pipeline       *pipeline.Pipeline
	RowSource      schemas.RowSource
	Store          schemas.SnapshotStore
	BrowserManager BrowserShutdowner

	logger *zap.Logger
}

// Shutdown stops the browser, then the row source, then the store. ctx bounds
// how long open pages are waited on.
func (c *Components) Shutdown(ctx context.Context) {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	if c.BrowserManager != nil {
		if err := c.BrowserManager.Shutdown(ctx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser manager shut down.")
		}
	}

	if closer, ok := c.RowSource.(interface{ Close() }); ok {
		closer.Close()
		logger.Debug("Row source closed.")
	}

	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			logger.Warn("Error closing snapshot store.", zap.Error(err))
		} else {
			logger.Debug("Snapshot store closed.")
		}
	}

	logger.Info("All service components shut down.")
}
