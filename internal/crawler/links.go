package crawler

import (
	"net/url"
	"strings"
)

// linkFilter decides which discovered hrefs belong in the crawl.
type linkFilter struct {
	base               *url.URL
	baseURL            string
	includePatterns    []string
	excludedExtensions []string
}

func newLinkFilter(base *url.URL, includePatterns, excludedExtensions []string) *linkFilter {
	exts := make([]string, 0, len(excludedExtensions))
	for _, ext := range excludedExtensions {
		if ext = strings.ToLower(strings.TrimSpace(ext)); ext != "" {
			exts = append(exts, ext)
		}
	}
	return &linkFilter{
		base:               base,
		baseURL:            normalize(base),
		includePatterns:    includePatterns,
		excludedExtensions: exts,
	}
}

// skipHref reports hrefs that never name a crawlable page.
func skipHref(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" {
		return true
	}
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "#") ||
		strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:")
}

// accept returns the normalized form of an absolute link, or false when the
// link is off-site, outside the crawl scope, or points at an excluded file.
func (f *linkFilter) accept(absolute string) (string, bool) {
	u, err := url.Parse(absolute)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if !strings.EqualFold(u.Host, f.base.Host) {
		return "", false
	}
	normalized := normalize(u)
	if !strings.HasPrefix(normalized, f.baseURL) && !f.matchesInclude(absolute) {
		return "", false
	}

	path := strings.ToLower(u.Path)
	for _, ext := range f.excludedExtensions {
		if strings.HasSuffix(path, ext) {
			return "", false
		}
	}

	return normalized, true
}

func (f *linkFilter) matchesInclude(href string) bool {
	for _, pattern := range f.includePatterns {
		if pattern != "" && strings.Contains(href, pattern) {
			return true
		}
	}
	return false
}

// normalize drops query, params and fragment.
func normalize(u *url.URL) string {
	n := url.URL{
		Scheme: strings.ToLower(u.Scheme),
		Host:   strings.ToLower(u.Host),
		Path:   u.Path,
	}
	if u.RawPath != "" {
		n.RawPath = u.RawPath
	}
	if n.Path == "" {
		n.Path = "/"
	}
	if i := strings.IndexByte(n.Path, ';'); i >= 0 {
		n.Path = n.Path[:i]
		n.RawPath = ""
	}
	return n.String()
}
