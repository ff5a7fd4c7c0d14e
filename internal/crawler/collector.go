package crawler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/models"
	"github.com/romangod6/sitemapper/internal/progress"
	"golang.org/x/net/publicsuffix"
)

const (
	ctxDepth   = "depth"
	ctxRetries = "retries"
)

type Crawler struct {
	config  *CrawlerConfig
	logger  *slog.Logger
	now     func() time.Time
	breaker *Breaker

	current  atomic.Value
	visited  atomic.Int64
	queued   atomic.Int64
	failed   atomic.Int64
	skipped  atomic.Int64
	recorded atomic.Int64
}

type CrawlerConfig struct {
	BaseURL            string
	UserAgent          string
	MaxWorkers         int
	MaxDepth           int
	RequestTimeout     time.Duration
	MinDelay           time.Duration
	MaxDelay           time.Duration
	MaxRetries         int
	Backoff            time.Duration
	IncludePatterns    []string
	ExcludedExtensions []string
}

// Result is the outcome of one crawl.
type Result struct {
	URLSet      *models.URLSet
	Visited     int
	Failed      int
	Skipped     int
	Interrupted bool
	Duration    time.Duration
}

type Option func(*Crawler)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) { c.logger = logger }
}

// WithClock overrides the clock used for lastmod dates.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) { c.now = now }
}

func WithBreaker(b *Breaker) Option {
	return func(c *Crawler) { c.breaker = b }
}

func NewCrawler(config *CrawlerConfig, opts ...Option) *Crawler {
	c := &Crawler{
		config: config,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = NewBreaker("crawler", c.logger)
	}
	c.current.Store("Initializing...")
	return c
}

// Snapshot implements progress.Source.
func (c *Crawler) Snapshot() progress.Snapshot {
	current, _ := c.current.Load().(string)
	return progress.Snapshot{
		Current:  current,
		Visited:  int(c.visited.Load()),
		Queued:   int(c.queued.Load()),
		Failed:   int(c.failed.Load()),
		Skipped:  int(c.skipped.Load()),
		Recorded: int(c.recorded.Load()),
	}
}

// urlBuilder collects sitemap entries; safe for concurrent use.
type urlBuilder struct {
	mu      sync.Mutex
	lastMod string
	entries map[string]models.URL
}

func newURLBuilder(now time.Time) *urlBuilder {
	return &urlBuilder{
		lastMod: now.Format("2006-01-02"),
		entries: make(map[string]models.URL),
	}
}

func (b *urlBuilder) add(u *url.URL) bool {
	loc := normalize(u)
	changeFreq, priority := FrequencyPriority(pathDepth(u))

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.entries[loc]; exists {
		return false
	}
	b.entries[loc] = models.URL{
		Loc:        loc,
		LastMod:    b.lastMod,
		ChangeFreq: changeFreq,
		Priority:   priority,
	}
	return true
}

func (b *urlBuilder) urlSet() *models.URLSet {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := models.NewURLSet()
	for _, u := range b.entries {
		set.URLs = append(set.URLs, u)
	}
	sort.Slice(set.URLs, func(i, j int) bool { return set.URLs[i].Loc < set.URLs[j].Loc })
	return set
}

// seenSet remembers every URL that was queued once.
type seenSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func (s *seenSet) markNew(u string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[u]; ok {
		return false
	}
	s.urls[u] = struct{}{}
	return true
}

func (c *Crawler) newCollector(ctx context.Context, host string) (*colly.Collector, error) {
	collector := colly.NewCollector(
		colly.UserAgent(c.config.UserAgent),
		colly.AllowedDomains(host),
		colly.Async(true),
		colly.StdlibContext(ctx),
	)
	collector.WithTransport(newCrawlTransport(ctx, c))

	workers := c.config.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	var randomDelay time.Duration
	if c.config.MaxDelay > c.config.MinDelay {
		randomDelay = c.config.MaxDelay - c.config.MinDelay
	}
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: workers,
		Delay:       c.config.MinDelay,
		RandomDelay: randomDelay,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to set crawl limits")
	}

	if c.config.RequestTimeout > 0 {
		collector.SetRequestTimeout(c.config.RequestTimeout)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create cookie jar")
	}
	collector.SetCookieJar(jar)

	return collector, nil
}

// Generate crawls from the base URL and returns every HTML page found.
// Cancelling ctx stops new requests; the pages collected so far are still
// returned with Interrupted set.
func (c *Crawler) Generate(ctx context.Context) (*Result, error) {
	started := time.Now()
	for _, counter := range []*atomic.Int64{&c.visited, &c.queued, &c.failed, &c.skipped, &c.recorded} {
		counter.Store(0)
	}

	base, err := url.Parse(c.config.BaseURL)
	if err != nil || base.Host == "" {
		return nil, goerr.New("invalid base URL", goerr.V("base_url", c.config.BaseURL))
	}

	filter := newLinkFilter(base, c.config.IncludePatterns, c.config.ExcludedExtensions)
	builder := newURLBuilder(c.now())
	seen := &seenSet{urls: make(map[string]struct{})}

	collector, err := c.newCollector(ctx, base.Hostname())
	if err != nil {
		return nil, err
	}

	c.setupHandlers(ctx, collector, filter, builder, seen)

	start := normalize(base)
	seen.markNew(start)
	c.queued.Add(1)

	c.logger.Info("Starting sitemap crawl",
		slog.String("base_url", c.config.BaseURL),
		slog.Int("max_workers", c.config.MaxWorkers),
	)

	if err := c.enqueue(collector, start, 0); err != nil {
		c.queued.Add(-1)
		return nil, goerr.Wrap(err, "failed to visit base URL", goerr.V("url", start))
	}
	collector.Wait()

	result := &Result{
		URLSet:      builder.urlSet(),
		Visited:     int(c.visited.Load()),
		Failed:      int(c.failed.Load()),
		Skipped:     int(c.skipped.Load()),
		Interrupted: ctx.Err() != nil,
		Duration:    time.Since(started),
	}

	c.logger.Info("Sitemap crawl finished",
		slog.Int("urls", len(result.URLSet.URLs)),
		slog.Int("visited", result.Visited),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped),
		slog.Bool("interrupted", result.Interrupted),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

func (c *Crawler) setupHandlers(ctx context.Context, collector *colly.Collector, filter *linkFilter, builder *urlBuilder, seen *seenSet) {
	// Requests queued after cancellation never reach the transport.
	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			c.abort(r, "context cancelled")
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode != http.StatusOK {
			c.logger.Debug("Skipping page", slog.String("url", r.Request.URL.String()), slog.Int("status", r.StatusCode))
			return
		}
		contentType := r.Headers.Get("Content-Type")
		if !isHTML(contentType) {
			c.logger.Debug("Skipping page", slog.String("url", r.Request.URL.String()), slog.String("content_type", contentType))
			return
		}

		if builder.add(r.Request.URL) {
			c.recorded.Add(1)
		}
	})

	collector.OnHTML("html", func(e *colly.HTMLElement) {
		if e.Response.StatusCode != http.StatusOK {
			return
		}

		for _, href := range ExtractLinks(e.DOM) {
			absolute := e.Request.AbsoluteURL(href)
			if absolute == "" {
				continue
			}
			link, ok := filter.accept(absolute)
			if !ok {
				continue
			}
			depth, _ := e.Request.Ctx.GetAny(ctxDepth).(int)
			if c.config.MaxDepth > 0 && depth+1 > c.config.MaxDepth {
				continue
			}
			if !seen.markNew(link) {
				continue
			}

			c.queued.Add(1)
			if err := c.enqueue(collector, link, depth+1); err != nil {
				c.queued.Add(-1)
				c.logger.Debug("Not visiting link", slog.String("url", link), slog.Any("error", err))
			}
		}
	})

	collector.OnScraped(func(r *colly.Response) {
		c.queued.Add(-1)
		c.visited.Add(1)
	})

	collector.OnError(func(r *colly.Response, err error) {
		if isSkip(err) {
			c.queued.Add(-1)
			c.skipped.Add(1)
			c.logger.Debug("Request skipped", slog.String("url", r.Request.URL.String()), slog.Any("error", err))
			return
		}

		if c.retry(ctx, r) {
			return
		}

		c.queued.Add(-1)
		c.failed.Add(1)
		c.logger.Debug("Failed to fetch page",
			slog.String("url", r.Request.URL.String()),
			slog.Int("status", r.StatusCode),
			slog.Any("error", err),
		)
	})
}

// enqueue schedules a GET with its own context. Request.Visit would share
// the parent's context, which carries per-request retry state.
func (c *Crawler) enqueue(collector *colly.Collector, link string, depth int) error {
	reqCtx := colly.NewContext()
	reqCtx.Put(ctxDepth, depth)
	return collector.Request(http.MethodGet, link, nil, reqCtx, nil)
}

func (c *Crawler) abort(r *colly.Request, reason string) {
	r.Abort()
	c.queued.Add(-1)
	c.skipped.Add(1)
	c.logger.Debug("Request aborted", slog.String("url", r.URL.String()), slog.String("reason", reason))
}

// retry resubmits a request after exponential backoff when the failure is
// transient and attempts remain.
func (c *Crawler) retry(ctx context.Context, r *colly.Response) bool {
	if ctx.Err() != nil || !isRetryable(r.StatusCode) {
		return false
	}
	attempt, _ := r.Request.Ctx.GetAny(ctxRetries).(int)
	if attempt >= c.config.MaxRetries {
		return false
	}

	wait := c.config.Backoff * time.Duration(1<<attempt)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
	}

	r.Request.Ctx.Put(ctxRetries, attempt+1)
	c.logger.Debug("Retrying page",
		slog.String("url", r.Request.URL.String()),
		slog.Int("attempt", attempt+1),
		slog.Int("status", r.StatusCode),
	)
	if err := r.Request.Retry(); err != nil {
		c.logger.Debug("Retry failed", slog.String("url", r.Request.URL.String()), slog.Any("error", err))
		return false
	}
	return true
}

// isRetryable covers throttling, gateway errors and transport failures
// (status 0).
func isRetryable(status int) bool {
	switch status {
	case 0, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isServerFailure(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}
