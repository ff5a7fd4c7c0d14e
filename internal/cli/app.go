package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/crawler"
	"github.com/romangod6/sitemapper/internal/github"
	"github.com/romangod6/sitemapper/internal/mirror"
	"github.com/romangod6/sitemapper/internal/notify"
	"github.com/romangod6/sitemapper/internal/pipeline"
	"github.com/romangod6/sitemapper/internal/release"
	"github.com/romangod6/sitemapper/internal/storage"
)

func (e *env) newCrawler() *crawler.Crawler {
	cfg := e.cfg
	return crawler.NewCrawler(&crawler.CrawlerConfig{
		BaseURL:            cfg.Crawler.BaseURL,
		UserAgent:          cfg.Crawler.UserAgent,
		MaxWorkers:         cfg.Crawler.MaxWorkers,
		MaxDepth:           cfg.Crawler.MaxDepth,
		RequestTimeout:     cfg.GetRequestTimeout(),
		MinDelay:           cfg.GetMinDelay(),
		MaxDelay:           cfg.GetMaxDelay(),
		MaxRetries:         cfg.Crawler.MaxRetries,
		Backoff:            cfg.GetBackoff(),
		IncludePatterns:    cfg.Crawler.IncludePatterns,
		ExcludedExtensions: cfg.Crawler.ExcludedExtensions,
	}, crawler.WithLogger(e.logger))
}

func (e *env) newPublisher() (*release.Publisher, error) {
	cfg := e.cfg
	if err := cfg.ValidatePublish(); err != nil {
		return nil, err
	}

	privateKey := []byte(cfg.GitHub.PrivateKey)
	if len(privateKey) > 0 {
		// accept a path to a PEM file as well as the key itself
		if raw, err := os.ReadFile(cfg.GitHub.PrivateKey); err == nil {
			privateKey = raw
		}
	}

	client, err := github.NewClient(github.Config{
		Token:          cfg.GitHub.Token,
		AppID:          cfg.GitHub.AppID,
		InstallationID: cfg.GitHub.InstallationID,
		PrivateKey:     privateKey,
		BaseURL:        cfg.GitHub.APIURL,
		UploadURL:      cfg.GitHub.UploadURL,
	})
	if err != nil {
		return nil, err
	}

	return release.NewPublisher(client, release.Config{
		Owner:     cfg.Release.Owner,
		Repo:      cfg.Release.Repo,
		Tag:       cfg.Release.Tag,
		Name:      cfg.Release.Name,
		Body:      cfg.Release.Body,
		AssetName: cfg.Release.AssetName,
		Target:    cfg.Release.Target,
	}, e.logger)
}

// closers collects cleanup funcs for resources opened by newRunner.
type closers []func()

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// newRunner wires the pipeline. withCrawl=false publishes the existing
// output file.
func (e *env) newRunner(ctx context.Context, withCrawl bool) (*pipeline.Runner, closers, error) {
	cfg := e.cfg
	var cleanup closers

	publisher, err := e.newPublisher()
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	cleanup = append(cleanup, func() { _ = store.Close() })

	opts := []pipeline.Option{
		pipeline.WithStore(store),
		pipeline.WithLogger(e.logger),
	}

	if cfg.Mirror.Bucket != "" {
		m, err := mirror.NewGCS(ctx, cfg.Mirror.Bucket, cfg.Mirror.Object)
		if err != nil {
			cleanup.Close()
			return nil, nil, err
		}
		cleanup = append(cleanup, func() { _ = m.Close() })
		opts = append(opts, pipeline.WithMirror(m))
	}

	if cfg.Notify.SlackWebhookURL != "" {
		opts = append(opts, pipeline.WithHooks(notify.NewSlack(cfg.Notify.SlackWebhookURL)))
	}
	if cfg.Notify.SentryDSN != "" {
		reporter, err := notify.NewSentry(sentry.ClientOptions{Dsn: cfg.Notify.SentryDSN})
		if err != nil {
			cleanup.Close()
			return nil, nil, goerr.Wrap(err, "failed to configure sentry")
		}
		opts = append(opts, pipeline.WithHooks(reporter))
	}

	var generator pipeline.Generator
	if withCrawl {
		generator = e.newCrawler()
	}

	runner := pipeline.NewRunner(pipeline.Config{
		OutputPath: cfg.Output.Path,
		LogsDir:    cfg.Logs.Dir,
		BaseURL:    cfg.Crawler.BaseURL,
	}, generator, publisher, opts...)

	e.logger.Debug("Pipeline ready",
		slog.Bool("crawl", withCrawl),
		slog.String("database", cfg.Database.Driver),
		slog.Bool("mirror", cfg.Mirror.Bucket != ""),
	)
	return runner, cleanup, nil
}
