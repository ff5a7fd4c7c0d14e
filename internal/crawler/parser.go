package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks returns the raw href of every anchor under sel, skipping
// fragments, javascript: and mailto: links.
func ExtractLinks(sel *goquery.Selection) []string {
	var links []string
	sel.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || skipHref(href) {
			return
		}
		links = append(links, strings.TrimSpace(href))
	})
	return links
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
