package github_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	githubinfra "github.com/romangod6/sitemapper/internal/github"
	"github.com/romangod6/sitemapper/internal/models"
)

// fakeGitHub serves the subset of the REST API the client uses.
type fakeGitHub struct {
	mu       sync.Mutex
	tags     map[string]string
	releases map[string]map[string]any
	assets   map[int64]map[string]any
	uploads  map[string][]byte
	nextID   int64
	patches  []map[string]any
}

func newFakeGitHub(t *testing.T) (*fakeGitHub, *httptest.Server) {
	f := &fakeGitHub{
		tags:     map[string]string{},
		releases: map[string]map[string]any{},
		assets:   map[int64]map[string]any{},
		uploads:  map[string][]byte{},
		nextID:   100,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/site/commits/{ref}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "sha-"+r.PathValue("ref"))
	})
	getRef := func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		sha, ok := f.tags[r.PathValue("tag")]
		if !ok {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"ref": "refs/tags/" + r.PathValue("tag"), "object": map[string]any{"sha": sha, "type": "commit"}})
	}
	mux.HandleFunc("GET /api/v3/repos/acme/site/git/ref/tags/{tag}", getRef)
	mux.HandleFunc("GET /api/v3/repos/acme/site/git/refs/tags/{tag}", getRef)
	mux.HandleFunc("POST /api/v3/repos/acme/site/git/refs", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Ref, SHA string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.tags[body.Ref[len("refs/tags/"):]] = body.SHA
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]any{"ref": body.Ref})
	})
	mux.HandleFunc("PATCH /api/v3/repos/acme/site/git/refs/tags/{tag}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.tags[r.PathValue("tag")] = body["sha"].(string)
		f.patches = append(f.patches, body)
		f.mu.Unlock()
		writeJSON(w, map[string]any{"ref": "refs/tags/" + r.PathValue("tag")})
	})
	mux.HandleFunc("GET /api/v3/repos/acme/site/releases/{a}/{b}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case r.PathValue("a") == "tags":
			rel, ok := f.releases[r.PathValue("b")]
			if !ok {
				http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
				return
			}
			writeJSON(w, rel)
		case r.PathValue("b") == "assets":
			list := []map[string]any{}
			for _, a := range f.assets {
				list = append(list, a)
			}
			writeJSON(w, list)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("POST /api/v3/repos/acme/site/releases", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.nextID++
		body["id"] = f.nextID
		body["html_url"] = fmt.Sprintf("https://github.com/acme/site/releases/tag/%v", body["tag_name"])
		f.releases[body["tag_name"].(string)] = body
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, body)
	})
	mux.HandleFunc("PATCH /api/v3/repos/acme/site/releases/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, rel := range f.releases {
			if fmt.Sprint(rel["id"]) == r.PathValue("id") {
				rel["name"] = body["name"]
				rel["body"] = body["body"]
				writeJSON(w, rel)
				return
			}
		}
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})
	mux.HandleFunc("DELETE /api/v3/repos/acme/site/releases/assets/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		for id := range f.assets {
			if fmt.Sprint(id) == r.PathValue("id") {
				delete(f.assets, id)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/uploads/repos/acme/site/releases/{id}/assets", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		name := r.URL.Query().Get("name")
		f.mu.Lock()
		f.nextID++
		asset := map[string]any{"id": f.nextID, "name": name, "size": len(data), "browser_download_url": "https://example.com/" + name}
		f.assets[f.nextID] = asset
		f.uploads[name] = data
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, asset)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return f, server
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, server *httptest.Server) *githubinfra.Client {
	t.Helper()
	client, err := githubinfra.NewClientWithHTTP(server.Client(), server.URL+"/api/v3/", server.URL+"/api/uploads/")
	gt.NoError(t, err)
	return client
}

func TestClient_Tags(t *testing.T) {
	f, server := newFakeGitHub(t)
	client := newTestClient(t, server)
	ctx := context.Background()

	sha, err := client.ResolveCommit(ctx, "acme", "site", "main")
	gt.NoError(t, err)
	gt.Equal(t, sha, "sha-main")

	_, found, err := client.GetTag(ctx, "acme", "site", "latest")
	gt.NoError(t, err)
	gt.False(t, found)

	gt.NoError(t, client.CreateTag(ctx, "acme", "site", "latest", "aaa"))
	got, found, err := client.GetTag(ctx, "acme", "site", "latest")
	gt.NoError(t, err)
	gt.True(t, found)
	gt.Equal(t, got, "aaa")

	gt.NoError(t, client.ForceUpdateTag(ctx, "acme", "site", "latest", "bbb"))
	gt.Equal(t, f.tags["latest"], "bbb")
	gt.Equal(t, f.patches[0]["force"], any(true))
}

func TestClient_Releases(t *testing.T) {
	f, server := newFakeGitHub(t)
	client := newTestClient(t, server)
	ctx := context.Background()

	rel, err := client.GetReleaseByTag(ctx, "acme", "site", "latest")
	gt.NoError(t, err)
	gt.Value(t, rel).Nil()

	created, err := client.CreateRelease(ctx, "acme", "site", &models.Release{
		TagName: "latest", Name: "Latest Sitemap", Body: "first", TargetCommitish: "aaa",
	})
	gt.NoError(t, err)
	gt.Number(t, created.ID).Greater(int64(0))

	created.Body = "second"
	updated, err := client.UpdateRelease(ctx, "acme", "site", created)
	gt.NoError(t, err)
	gt.Equal(t, updated.Body, "second")

	path := filepath.Join(t.TempDir(), "sitemap.xml")
	gt.NoError(t, os.WriteFile(path, []byte("<urlset/>"), 0644))

	asset, err := client.UploadAsset(ctx, "acme", "site", created.ID, "sitemap.xml", path)
	gt.NoError(t, err)
	gt.Equal(t, asset.Name, "sitemap.xml")
	gt.Equal(t, string(f.uploads["sitemap.xml"]), "<urlset/>")

	assets, err := client.ListAssets(ctx, "acme", "site", created.ID)
	gt.NoError(t, err)
	gt.Equal(t, len(assets), 1)

	gt.NoError(t, client.DeleteAsset(ctx, "acme", "site", assets[0].ID))
	assets, err = client.ListAssets(ctx, "acme", "site", created.ID)
	gt.NoError(t, err)
	gt.Equal(t, len(assets), 0)
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := githubinfra.NewClient(githubinfra.Config{})
	gt.Error(t, err)

	client, err := githubinfra.NewClient(githubinfra.Config{Token: "t", BaseURL: "https://ghe.example.com/api/v3"})
	gt.NoError(t, err)
	gt.V(t, client).NotNil()
}
