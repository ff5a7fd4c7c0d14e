package sitemap

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/models"
)

// Stats summarizes a urlset.
type Stats struct {
	Total        int
	ByChangeFreq map[string]int
	ByPriority   map[string]int
	// BySection counts URLs per first path segment ("/" for the root).
	BySection map[string]int
}

func Analyze(set *models.URLSet) Stats {
	s := Stats{
		Total:        len(set.URLs),
		ByChangeFreq: map[string]int{},
		ByPriority:   map[string]int{},
		BySection:    map[string]int{},
	}
	for _, u := range set.URLs {
		s.ByChangeFreq[u.ChangeFreq]++
		s.ByPriority[u.Priority]++
		s.BySection[section(u.Loc)]++
	}
	return s
}

func section(loc string) string {
	u, err := url.Parse(loc)
	if err != nil {
		return "?"
	}
	first, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	return "/" + first
}

// Changes lists the locs added and removed between two urlsets, sorted.
type Changes struct {
	Added   []string
	Removed []string
}

func Diff(before, after *models.URLSet) Changes {
	old := make(map[string]struct{}, len(before.URLs))
	for _, u := range before.URLs {
		old[u.Loc] = struct{}{}
	}
	cur := make(map[string]struct{}, len(after.URLs))
	for _, u := range after.URLs {
		cur[u.Loc] = struct{}{}
	}

	c := Changes{Added: []string{}, Removed: []string{}}
	for loc := range cur {
		if _, ok := old[loc]; !ok {
			c.Added = append(c.Added, loc)
		}
	}
	for loc := range old {
		if _, ok := cur[loc]; !ok {
			c.Removed = append(c.Removed, loc)
		}
	}
	sort.Strings(c.Added)
	sort.Strings(c.Removed)
	return c
}

// Load reads a sitemap from a local path or an http(s) URL.
func Load(ctx context.Context, client *http.Client, source string) (*models.URLSet, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		if _, err := os.Stat(source); err != nil {
			return nil, goerr.Wrap(err, "sitemap not found", goerr.V("path", source))
		}
		return Read(source)
	}

	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid sitemap URL", goerr.V("url", source))
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch sitemap", goerr.V("url", source))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, goerr.New("unexpected status fetching sitemap",
			goerr.V("url", source), goerr.V("status", resp.StatusCode))
	}
	return Decode(resp.Body)
}
