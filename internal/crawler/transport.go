package crawler

import (
	"context"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
)

var (
	errCrawlCancelled = errors.New("crawl cancelled")
	errBreakerOpen    = errors.New("circuit breaker open")
)

// crawlTransport runs after colly has waited for a parallelism slot, so the
// cancellation and breaker checks apply to the request actually being sent
// rather than to the moment it was queued.
type crawlTransport struct {
	ctx     context.Context
	crawler *Crawler
	base    http.RoundTripper
}

func newCrawlTransport(ctx context.Context, c *Crawler) *crawlTransport {
	base := http.DefaultTransport.(*http.Transport).Clone()
	return &crawlTransport{ctx: ctx, crawler: c, base: base}
}

func (t *crawlTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.ctx.Err(); err != nil {
		return nil, goerr.Wrap(errCrawlCancelled, err.Error(), goerr.V("url", req.URL.String()))
	}

	done, err := t.crawler.breaker.Allow()
	if err != nil {
		return nil, goerr.Wrap(errBreakerOpen, err.Error(), goerr.V("url", req.URL.String()))
	}
	t.crawler.current.Store(req.URL.String())

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		// A request torn down by cancellation says nothing about the site.
		done(errors.Is(err, context.Canceled))
		return nil, err
	}
	done(!isServerFailure(resp.StatusCode))
	return resp, nil
}

// isSkip reports whether a fetch error means the request was never sent or
// was dropped because the crawl is stopping.
func isSkip(err error) bool {
	return errors.Is(err, errCrawlCancelled) ||
		errors.Is(err, errBreakerOpen) ||
		errors.Is(err, context.Canceled)
}
