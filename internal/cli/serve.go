package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/api"
	"github.com/romangod6/sitemapper/internal/scheduler"
	"github.com/urfave/cli/v3"
)

func cmdServe(e *env) *cli.Command {
	var port int

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run the weekly schedule and the HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "port",
				Usage:       "HTTP port (overrides server.port)",
				Destination: &port,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := e.logger
			if port == 0 {
				port = e.cfg.Server.Port
			}

			runCtx, cancelRuns := context.WithCancel(context.WithoutCancel(ctx))
			defer cancelRuns()

			runner, cleanup, err := e.newRunner(runCtx, true)
			if err != nil {
				return err
			}
			defer cleanup.Close()

			sched, err := scheduler.New(e.cfg.Schedule.Cron, runner, logger)
			if err != nil {
				return err
			}
			sched.Start(runCtx)

			server := api.NewServer(runCtx, api.Config{
				Port:          port,
				SitemapPath:   e.cfg.Output.Path,
				DispatchToken: e.cfg.Server.DispatchToken,
			}, runner, logger)

			serverErr := make(chan error, 1)
			go func() {
				logger.Info("HTTP server starting", slog.Int("port", port))
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			case err := <-serverErr:
				return goerr.Wrap(err, "HTTP server failed")
			}

			sched.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			// An in-flight run is cancelled and recorded as failed.
			cancelRuns()
			runner.Wait()

			logger.Info("Server shutdown complete")
			return nil
		},
	}
}
