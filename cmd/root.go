// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/bbox-cli/internal/config"
	"github.com/xkilldash9x/bbox-cli/internal/observability"
	"github.com/xkilldash9x/bbox-cli/internal/service"
)

// app carries state shared between the root command and its subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	factory service.ComponentFactory
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{v: viper.New(), factory: service.NewComponentFactory()})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "bbox-cli",
		Short:   "bbox-cli extracts the bounding boxes of interactive elements from rendered pages.",
		Version: Version,
		// Config and logging are set up before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				observability.Initialize(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "bbox-cli"}, zapcore.Lock(os.Stderr))
				return err
			}
			// Logs go to stderr so stdout stays clean for command output.
			observability.Initialize(a.cfg.Logger, zapcore.Lock(os.Stderr))
			observability.GetLogger().Debug("Starting bbox-cli", zap.String("version", Version))
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newExtractCmd(a))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// loadConfig reads defaults, the config file and the environment, in that order of precedence.
func (a *app) loadConfig() error {
	config.SetDefaults(a.v)
	config.BindEnv(a.v)

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// Execute runs the command tree. A context.Canceled error means the process
// was interrupted and is not reported as a failure.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	err := NewRootCommand().ExecuteContext(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	if logger := observability.GetLogger(); logger != nil {
		logger.Error("Command execution failed", zap.Error(err))
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	return err
}
