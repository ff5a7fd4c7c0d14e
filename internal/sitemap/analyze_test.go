package sitemap_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/romangod6/sitemapper/internal/models"
	"github.com/romangod6/sitemapper/internal/sitemap"
)

func urlSet(entries ...models.URL) *models.URLSet {
	set := models.NewURLSet()
	set.URLs = entries
	return set
}

func TestAnalyze(t *testing.T) {
	set := urlSet(
		models.URL{Loc: "https://example.com/learn", ChangeFreq: "weekly", Priority: "0.8"},
		models.URL{Loc: "https://example.com/learn/latex/Tables", ChangeFreq: "monthly", Priority: "0.4"},
		models.URL{Loc: "https://example.com/", ChangeFreq: "daily", Priority: "1.0"},
	)

	s := sitemap.Analyze(set)
	gt.Equal(t, s.Total, 3)
	gt.Equal(t, s.BySection["/learn"], 2)
	gt.Equal(t, s.BySection["/"], 1)
	gt.Equal(t, s.ByChangeFreq["monthly"], 1)
	gt.Equal(t, s.ByPriority["1.0"], 1)
}

func TestDiff(t *testing.T) {
	before := urlSet(
		models.URL{Loc: "https://example.com/a"},
		models.URL{Loc: "https://example.com/b"},
	)
	after := urlSet(
		models.URL{Loc: "https://example.com/b"},
		models.URL{Loc: "https://example.com/d"},
		models.URL{Loc: "https://example.com/c"},
	)

	c := sitemap.Diff(before, after)
	gt.Equal(t, c.Added, []string{"https://example.com/c", "https://example.com/d"})
	gt.Equal(t, c.Removed, []string{"https://example.com/a"})
}

func TestLoad(t *testing.T) {
	set := urlSet(models.URL{Loc: "https://example.com/learn", Priority: "1.0"})
	path := filepath.Join(t.TempDir(), "sitemap.xml")
	gt.NoError(t, sitemap.Write(path, set))

	t.Run("file", func(t *testing.T) {
		got, err := sitemap.Load(context.Background(), nil, path)
		gt.NoError(t, err)
		gt.Equal(t, len(got.URLs), 1)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := sitemap.Load(context.Background(), nil, filepath.Join(t.TempDir(), "none.xml"))
		gt.Error(t, err)
	})

	t.Run("url", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/sitemap.xml" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			http.ServeFile(w, r, path)
		}))
		defer srv.Close()

		got, err := sitemap.Load(context.Background(), srv.Client(), srv.URL+"/sitemap.xml")
		gt.NoError(t, err)
		gt.Equal(t, got.URLs[0].Loc, "https://example.com/learn")

		_, err = sitemap.Load(context.Background(), srv.Client(), srv.URL+"/missing.xml")
		gt.Error(t, err)
	})
}
