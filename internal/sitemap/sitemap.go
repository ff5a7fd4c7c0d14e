// Package sitemap encodes, decodes and validates sitemap protocol files.
package sitemap

import (
	"bytes"
	"encoding/xml"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/models"
)

// MaxURLs is the protocol limit for a single urlset file.
const MaxURLs = 50000

var (
	ErrEmptySitemap   = goerr.New("sitemap has no URLs")
	ErrInvalidSitemap = goerr.New("invalid sitemap")
)

// Encode renders the urlset with an XML header and two-space indentation.
// Entries are sorted by loc so that unchanged sites produce identical files.
func Encode(w io.Writer, set *models.URLSet) error {
	out := *set
	if out.Xmlns == "" {
		out.Xmlns = models.SitemapNamespace
	}
	out.URLs = append([]models.URL(nil), set.URLs...)
	sort.Slice(out.URLs, func(i, j int) bool { return out.URLs[i].Loc < out.URLs[j].Loc })

	if _, err := io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?>`+"\n"); err != nil {
		return goerr.Wrap(err, "failed to write xml header")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(&out); err != nil {
		return goerr.Wrap(err, "failed to encode sitemap")
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return goerr.Wrap(err, "failed to write trailing newline")
	}
	return nil
}

// Write encodes the urlset to path through a temporary file in the same
// directory, so readers never observe a partially written sitemap.
func Write(path string, set *models.URLSet) error {
	var buf bytes.Buffer
	if err := Encode(&buf, set); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return goerr.Wrap(err, "failed to create output directory", goerr.V("dir", dir))
	}

	tmp, err := os.CreateTemp(dir, ".sitemap-*.xml")
	if err != nil {
		return goerr.Wrap(err, "failed to create temporary file", goerr.V("dir", dir))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to write sitemap", goerr.V("path", tmp.Name()))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close sitemap", goerr.V("path", tmp.Name()))
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return goerr.Wrap(err, "failed to set sitemap permissions", goerr.V("path", tmp.Name()))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return goerr.Wrap(err, "failed to move sitemap into place", goerr.V("path", path))
	}
	return nil
}

// Decode parses a urlset document.
func Decode(r io.Reader) (*models.URLSet, error) {
	var set models.URLSet
	if err := xml.NewDecoder(r).Decode(&set); err != nil {
		return nil, goerr.Wrap(ErrInvalidSitemap, "malformed xml", goerr.V("cause", err.Error()))
	}
	return &set, nil
}

// Read decodes the sitemap stored at path.
func Read(path string) (*models.URLSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sitemap", goerr.V("path", path))
	}
	defer f.Close()

	return Decode(f)
}

// Validate checks the properties a published sitemap must hold.
func Validate(set *models.URLSet) error {
	if set == nil || len(set.URLs) == 0 {
		return ErrEmptySitemap
	}
	if len(set.URLs) > MaxURLs {
		return goerr.Wrap(ErrInvalidSitemap, "too many URLs", goerr.V("count", len(set.URLs)), goerr.V("max", MaxURLs))
	}

	seen := make(map[string]struct{}, len(set.URLs))
	for i, u := range set.URLs {
		loc, err := url.Parse(u.Loc)
		if err != nil || (loc.Scheme != "http" && loc.Scheme != "https") || loc.Host == "" {
			return goerr.Wrap(ErrInvalidSitemap, "loc is not an absolute http(s) URL", goerr.V("index", i), goerr.V("loc", u.Loc))
		}
		if _, dup := seen[u.Loc]; dup {
			return goerr.Wrap(ErrInvalidSitemap, "duplicate loc", goerr.V("loc", u.Loc))
		}
		seen[u.Loc] = struct{}{}

		if u.Priority != "" {
			p, err := strconv.ParseFloat(u.Priority, 64)
			if err != nil || p < 0 || p > 1 {
				return goerr.Wrap(ErrInvalidSitemap, "priority out of range", goerr.V("loc", u.Loc), goerr.V("priority", u.Priority))
			}
		}
	}
	return nil
}

// ValidateFile reads and validates the sitemap at path, returning its URL count.
func ValidateFile(path string) (int, error) {
	set, err := Read(path)
	if err != nil {
		return 0, err
	}
	if err := Validate(set); err != nil {
		return 0, goerr.Wrap(err, "sitemap failed validation", goerr.V("path", path))
	}
	return len(set.URLs), nil
}
