// Package cli is the sitemapper command line.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/romangod6/sitemapper/config"
	"github.com/urfave/cli/v3"
)

// env is the state shared by every command once Before has run.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

// Run runs the CLI application
func Run(ctx context.Context, args []string) error {
	var (
		loggerCfg  Logger
		configPath string
		e          env
	)

	flags := append(loggerCfg.Flags(), &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config.yaml (default: ./config.yaml or ./config/config.yaml)",
		Destination: &configPath,
		Sources:     cli.EnvVars("SITEMAPPER_CONFIG"),
	})

	app := &cli.Command{
		Name:  "sitemapper",
		Usage: "Generate a sitemap and publish it as a release asset",
		Flags: flags,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger, err := loggerCfg.Configure(os.Stderr)
			if err != nil {
				return nil, err
			}
			slog.SetDefault(logger)
			e.logger = logger

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return nil, err
			}
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			e.cfg = cfg
			logger.Debug("Config loaded", slog.Any("config", cfg))

			return ctx, nil
		},
		Commands: []*cli.Command{
			cmdGenerate(&e),
			cmdPublish(&e),
			cmdRun(&e),
			cmdServe(&e),
			cmdInspect(&e),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		logger := e.logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("CLI execution failed", slog.Any("error", err))
		return err
	}

	return nil
}
