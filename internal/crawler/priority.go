package crawler

import (
	"net/url"
	"strings"
)

// Frequency and priority by URL path depth.
var depthPolicy = []struct {
	changeFreq string
	priority   string
}{
	{"daily", "1.0"},
	{"weekly", "0.8"},
	{"monthly", "0.6"},
	{"monthly", "0.4"},
}

// pathDepth counts non-empty path segments; "/" is depth 0.
func pathDepth(u *url.URL) int {
	if u.Path == "/" || u.Path == "" {
		return 0
	}
	depth := 0
	for _, part := range strings.Split(u.Path, "/") {
		if part != "" {
			depth++
		}
	}
	return depth
}

// FrequencyPriority returns the changefreq and priority for a URL depth.
func FrequencyPriority(depth int) (string, string) {
	if depth < 0 {
		depth = 0
	}
	if depth >= len(depthPolicy) {
		depth = len(depthPolicy) - 1
	}
	p := depthPolicy[depth]
	return p.changeFreq, p.priority
}
