package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/internal/observability"
	"github.com/xkilldash9x/bbox-cli/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bounding box HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a)
		},
	}

	serveCmd.Flags().Int("port", 8080, "port to listen on")
	serveCmd.Flags().String("host", "", "host address to bind")
	_ = a.v.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = a.v.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	return serveCmd
}

// runServe serves until ctx ends, then stops the HTTP server, the browser and
// the store in that order.
func runServe(ctx context.Context, a *app) error {
	logger := observability.GetLogger()

	components, err := a.factory.Create(ctx, a.cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	srv := server.New(a.cfg.Server, components.Service, logger)
	serveErr := srv.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	components.Shutdown(shutdownCtx)

	if serveErr != nil {
		logger.Error("HTTP server failed", zap.Error(serveErr))
		return serveErr
	}
	return nil
}
