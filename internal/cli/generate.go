package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/crawler"
	"github.com/romangod6/sitemapper/internal/progress"
	"github.com/romangod6/sitemapper/internal/sitemap"
	"github.com/urfave/cli/v3"
)

func cmdGenerate(e *env) *cli.Command {
	var (
		output   string
		tui      bool
		interval time.Duration
	)

	return &cli.Command{
		Name:    "generate",
		Aliases: []string{"g"},
		Usage:   "Crawl the site and write sitemap.xml",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "Output path (overrides output.path)",
				Destination: &output,
			},
			&cli.BoolFlag{
				Name:        "tui",
				Usage:       "Show a live status screen",
				Destination: &tui,
			},
			&cli.DurationFlag{
				Name:        "progress-interval",
				Usage:       "How often to log crawl progress when the status screen is off",
				Value:       10 * time.Second,
				Destination: &interval,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if output == "" {
				output = e.cfg.Output.Path
			}

			// Ctrl+C stops the crawl and keeps what was collected.
			crawlCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			cr := e.newCrawler()
			result, err := crawl(crawlCtx, stop, cr, tui, interval, e.logger)
			if err != nil {
				return err
			}

			if len(result.URLSet.URLs) == 0 {
				return goerr.Wrap(sitemap.ErrEmptySitemap, "nothing to write", goerr.V("base_url", e.cfg.Crawler.BaseURL))
			}
			if err := sitemap.Write(output, result.URLSet); err != nil {
				return err
			}

			printSummary(os.Stdout, output, result)
			return nil
		},
	}
}

func crawl(ctx context.Context, interrupt func(), cr *crawler.Crawler, tui bool, interval time.Duration, logger *slog.Logger) (*crawler.Result, error) {
	statusCtx, stopStatus := context.WithCancel(ctx)
	defer stopStatus()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if tui {
			if err := progress.RunTUI(statusCtx, cr, interrupt); err != nil {
				logger.Warn("Status screen failed", slog.Any("error", err))
			}
			return
		}
		progress.Log(statusCtx, logger, cr, interval)
	}()

	result, err := cr.Generate(ctx)
	stopStatus()
	<-done

	return result, err
}

func printSummary(w io.Writer, path string, result *crawler.Result) {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	if result.Interrupted {
		fmt.Fprintln(w, yellow("Crawl interrupted; partial sitemap saved."))
	}
	fmt.Fprintf(w, "%s %s\n", green("Sitemap written:"), path)
	fmt.Fprintf(w, "  URLs:     %d\n", len(result.URLSet.URLs))
	fmt.Fprintf(w, "  Visited:  %d\n", result.Visited)
	if result.Failed > 0 {
		fmt.Fprintf(w, "  Failed:   %s\n", yellow(result.Failed))
	} else {
		fmt.Fprintf(w, "  Failed:   %d\n", result.Failed)
	}
	if result.Skipped > 0 {
		fmt.Fprintf(w, "  Skipped:  %d\n", result.Skipped)
	}
	fmt.Fprintf(w, "  Duration: %s\n", result.Duration.Round(time.Millisecond))
}
