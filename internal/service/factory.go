// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/internal/browser"
	"github.com/xkilldash9x/bbox-cli/internal/capture"
	"github.com/xkilldash9x/bbox-cli/internal/config"
	"github.com/xkilldash9x/bbox-cli/internal/extract"
	"github.com/xkilldash9x/bbox-cli/internal/pipeline"
	"github.com/xkilldash9x/bbox-cli/internal/rowsource"
	"github.com/xkilldash9x/bbox-cli/internal/store"
)

// ComponentFactory builds the dependency graph behind the HTTP service.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error)
}

// BrowserLauncher starts the shared browser.
type BrowserLauncher func(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*browser.Manager, error)

type concreteFactory struct {
	launch BrowserLauncher
}

// NewComponentFactory returns the production factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{launch: browser.NewManager}
}

// NewComponentFactoryWithLauncher is NewComponentFactory with a custom launcher.
func NewComponentFactoryWithLauncher(launch BrowserLauncher) ComponentFactory {
	return &concreteFactory{launch: launch}
}

// Create initializes every component. Anything created before a failure is
// shut down before the error is returned.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	components := &Components{logger: logger.Named("components")}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown(context.WithoutCancel(ctx))
		}
	}()

	// 1. Snapshot store
	snapshots, err := store.New(ctx, cfg.Store, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize snapshot store: %w", err)
		return nil, initializationErr
	}
	components.Store = snapshots
	logger.Debug("Snapshot store initialized.", zap.String("backend", cfg.Store.Backend))

	// 2. Row source
	rows, err := rowsource.New(ctx, cfg, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize row source: %w", err)
		return nil, initializationErr
	}
	components.RowSource = rows
	logger.Debug("Row source initialized.", zap.String("kind", cfg.RowSource.Kind))

	// 3. Browser. Its lifetime is ended by Shutdown, not by ctx.
	manager, err := f.launch(context.WithoutCancel(ctx), logger, cfg)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize browser manager: %w", err)
		return nil, initializationErr
	}
	components.BrowserManager = manager
	logger.Debug("Browser manager initialized.")

	// 4. Pipeline
	extractor := extract.NewExtractor(cfg.Pipeline.TargetSelectors, logger)
	capturer := capture.New(cfg.Pipeline.CaptureConcurrency, cfg.Pipeline.ClipPadding, logger)
	processor := pipeline.NewBrowserRowProcessor(pipeline.BrowserOpener(manager), extractor, capturer, logger)
	components.Pipeline = pipeline.New(processor, cfg.Pipeline.BatchQuota, logger)

	// 5. Service
	components.Service = New(rows, snapshots, components.Pipeline, logger)

	logger.Info("All service components initialized successfully.")
	return components, nil
}
