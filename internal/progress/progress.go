// Package progress reports crawl status while a sitemap is being generated.
package progress

import (
	"context"
	"log/slog"
	"time"
)

// Snapshot is a point-in-time view of a running crawl.
type Snapshot struct {
	Current  string
	Visited  int
	Queued   int
	Failed   int
	Skipped  int
	Recorded int
}

// Source provides snapshots; the crawler implements it.
type Source interface {
	Snapshot() Snapshot
}

// Log writes a status line every interval until ctx is done.
func Log(ctx context.Context, logger *slog.Logger, src Source, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := src.Snapshot()
			logger.Info("crawl progress",
				slog.String("current", s.Current),
				slog.Int("visited", s.Visited),
				slog.Int("queue", s.Queued),
				slog.Int("recorded", s.Recorded),
				slog.Int("failed", s.Failed),
			)
		}
	}
}
