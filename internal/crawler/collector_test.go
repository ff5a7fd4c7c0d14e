package crawler_test

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/romangod6/sitemapper/internal/crawler"
	"github.com/romangod6/sitemapper/internal/models"
)

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	var deepCalls atomic.Int32

	mux := http.NewServeMux()
	page := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><body>%s</body></html>", body)
	}

	mux.HandleFunc("/learn", func(w http.ResponseWriter, r *http.Request) {
		page(w, `
			<a href="/learn/a">A</a>
			<a href="/learn/b?x=1#frag">B</a>
			<a href="/about">About</a>
			<a href="/learn/guide.pdf">PDF</a>
			<a href="mailto:team@example.com">Mail</a>
			<a href="javascript:void(0)">JS</a>
			<a href="#top">Top</a>
			<a href="http://other.example/learn/x">External</a>
			<a href="/other/learn/latex/Articles">Article</a>
			<a href="/learn/missing">Missing</a>
		`)
	})
	mux.HandleFunc("/learn/a", func(w http.ResponseWriter, r *http.Request) {
		page(w, `<a href="/learn/a/deep">Deep</a><a href="/learn">Back</a>`)
	})
	mux.HandleFunc("/learn/a/deep", func(w http.ResponseWriter, r *http.Request) {
		if deepCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		page(w, "deep")
	})
	mux.HandleFunc("/learn/b", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	})
	mux.HandleFunc("/other/learn/latex/Articles", func(w http.ResponseWriter, r *http.Request) {
		page(w, "article")
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("out-of-scope page fetched: %s", r.URL.Path)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testConfig(baseURL string) *crawler.CrawlerConfig {
	return &crawler.CrawlerConfig{
		BaseURL:            baseURL,
		UserAgent:          "sitemapper-test",
		MaxWorkers:         2,
		RequestTimeout:     5 * time.Second,
		MaxRetries:         2,
		Backoff:            time.Millisecond,
		IncludePatterns:    []string{"/learn/latex/"},
		ExcludedExtensions: []string{".pdf", ".png"},
	}
}

func TestCrawler_Generate(t *testing.T) {
	server := newTestSite(t)
	now := time.Date(2026, 10, 11, 0, 0, 0, 0, time.UTC)

	c := crawler.NewCrawler(testConfig(server.URL+"/learn"), crawler.WithClock(func() time.Time { return now }))
	result, err := c.Generate(context.Background())
	gt.NoError(t, err)
	gt.False(t, result.Interrupted)

	byLoc := make(map[string]models.URL)
	for _, u := range result.URLSet.URLs {
		byLoc[u.Loc] = u
	}

	gt.Equal(t, len(byLoc), 4)
	gt.Equal(t, byLoc[server.URL+"/learn"].Priority, "0.8")
	gt.Equal(t, byLoc[server.URL+"/learn"].ChangeFreq, "weekly")
	gt.Equal(t, byLoc[server.URL+"/learn/a"].Priority, "0.6")
	gt.Equal(t, byLoc[server.URL+"/learn/a/deep"].Priority, "0.4")
	gt.Equal(t, byLoc[server.URL+"/learn/a/deep"].ChangeFreq, "monthly")
	gt.Equal(t, byLoc[server.URL+"/other/learn/latex/Articles"].LastMod, "2026-10-11")

	_, hasJSON := byLoc[server.URL+"/learn/b"]
	gt.False(t, hasJSON)

	snap := c.Snapshot()
	gt.Equal(t, snap.Queued, 0)
	gt.Equal(t, snap.Recorded, 4)
	gt.Equal(t, result.Failed, 1)
}

func TestCrawler_GenerateRetryExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testConfig(server.URL + "/")
	cfg.MaxRetries = 3

	result, err := crawler.NewCrawler(cfg).Generate(context.Background())
	gt.NoError(t, err)
	gt.Equal(t, len(result.URLSet.URLs), 0)
	gt.Equal(t, result.Failed, 1)
	gt.Equal(t, int(calls.Load()), 4)
}

func TestCrawler_GenerateCancelled(t *testing.T) {
	server := newTestSite(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := crawler.NewCrawler(testConfig(server.URL + "/learn"))
	result, err := c.Generate(ctx)
	gt.NoError(t, err)
	gt.True(t, result.Interrupted)
	gt.Equal(t, len(result.URLSet.URLs), 0)
	gt.Equal(t, c.Snapshot().Skipped, 1)
}

func linkingSite(t *testing.T, children int, child http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/learn", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>")
		for i := 0; i < children; i++ {
			fmt.Fprintf(w, `<a href="/learn/page-%d">%d</a>`, i, i)
		}
		fmt.Fprint(w, "</body></html>")
	})
	mux.HandleFunc("/learn/", child)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestCrawler_GenerateStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var served, servedAfterCancel atomic.Int32
	server := linkingSite(t, 40, func(w http.ResponseWriter, r *http.Request) {
		if ctx.Err() != nil {
			servedAfterCancel.Add(1)
		}
		if served.Add(1) == 2 {
			cancel()
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>child</body></html>")
	})

	cfg := testConfig(server.URL + "/learn")
	cfg.MaxWorkers = 1

	c := crawler.NewCrawler(cfg)
	result, err := c.Generate(ctx)
	gt.NoError(t, err)
	gt.True(t, result.Interrupted)
	gt.Equal(t, int(servedAfterCancel.Load()), 0)
	gt.True(t, result.Skipped >= 38)
	gt.Equal(t, c.Snapshot().Queued, 0)
}

func TestCrawler_BreakerSkipsQueuedPages(t *testing.T) {
	var sent atomic.Int32
	server := linkingSite(t, 30, func(w http.ResponseWriter, r *http.Request) {
		sent.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	cfg := testConfig(server.URL + "/learn")
	cfg.MaxWorkers = 1
	cfg.MaxRetries = 0

	c := crawler.NewCrawler(cfg, crawler.WithBreaker(crawler.NewBreaker("test", slog.Default())))
	result, err := c.Generate(context.Background())
	gt.NoError(t, err)

	gt.True(t, int(sent.Load()) < 30)
	gt.True(t, result.Skipped > 0)
	gt.Equal(t, result.Failed, int(sent.Load()))
	gt.Equal(t, result.Failed+result.Skipped, 30)
	gt.Equal(t, len(result.URLSet.URLs), 1)
}

func TestCrawler_GenerateInvalidBaseURL(t *testing.T) {
	_, err := crawler.NewCrawler(testConfig("not a url")).Generate(context.Background())
	gt.Error(t, err)
}
