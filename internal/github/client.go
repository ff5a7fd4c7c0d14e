package github

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/models"
)

// Client implements release.GitHubClient on top of go-github.
type Client struct {
	githubClient *github.Client
}

type Config struct {
	Token          string
	AppID          int64
	InstallationID int64
	PrivateKey     []byte
	BaseURL        string
	UploadURL      string
}

// NewClient authenticates with GitHub App credentials when present, and
// with a token otherwise.
func NewClient(cfg Config) (*Client, error) {
	var githubClient *github.Client

	switch {
	case cfg.AppID != 0 && cfg.InstallationID != 0 && len(cfg.PrivateKey) > 0:
		itr, err := ghinstallation.New(http.DefaultTransport, cfg.AppID, cfg.InstallationID, cfg.PrivateKey)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create GitHub App transport")
		}
		if cfg.BaseURL != "" {
			itr.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		}
		githubClient = github.NewClient(&http.Client{Transport: itr})
	case cfg.Token != "":
		githubClient = github.NewClient(nil).WithAuthToken(cfg.Token)
	default:
		return nil, goerr.New("no GitHub credentials configured")
	}

	if err := setEndpoints(githubClient, cfg.BaseURL, cfg.UploadURL); err != nil {
		return nil, err
	}

	return &Client{githubClient: githubClient}, nil
}

// NewClientWithHTTP wraps an existing http.Client; used for tests and
// pre-authenticated transports.
func NewClientWithHTTP(httpClient *http.Client, baseURL, uploadURL string) (*Client, error) {
	githubClient := github.NewClient(httpClient)
	if err := setEndpoints(githubClient, baseURL, uploadURL); err != nil {
		return nil, err
	}
	return &Client{githubClient: githubClient}, nil
}

func setEndpoints(c *github.Client, baseURL, uploadURL string) error {
	if baseURL != "" {
		u, err := url.Parse(withSlash(baseURL))
		if err != nil {
			return goerr.Wrap(err, "invalid GitHub API URL", goerr.V("url", baseURL))
		}
		c.BaseURL = u
		if uploadURL == "" {
			uploadURL = baseURL
		}
	}
	if uploadURL != "" {
		u, err := url.Parse(withSlash(uploadURL))
		if err != nil {
			return goerr.Wrap(err, "invalid GitHub upload URL", goerr.V("url", uploadURL))
		}
		c.UploadURL = u
	}
	return nil
}

func withSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func notFound(resp *github.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}

// ResolveCommit returns the commit SHA a branch, tag or SHA points at.
func (c *Client) ResolveCommit(ctx context.Context, owner, repo, ref string) (string, error) {
	sha, _, err := c.githubClient.Repositories.GetCommitSHA1(ctx, owner, repo, ref, "")
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve commit", goerr.V("repo", owner+"/"+repo), goerr.V("ref", ref))
	}
	return sha, nil
}

// GetTag returns the SHA refs/tags/<tag> points at; found is false when the
// tag does not exist.
func (c *Client) GetTag(ctx context.Context, owner, repo, tag string) (string, bool, error) {
	ref, resp, err := c.githubClient.Git.GetRef(ctx, owner, repo, "tags/"+tag)
	if notFound(resp) {
		return "", false, nil
	}
	if err != nil {
		return "", false, goerr.Wrap(err, "failed to get tag", goerr.V("tag", tag))
	}
	return ref.GetObject().GetSHA(), true, nil
}

func (c *Client) CreateTag(ctx context.Context, owner, repo, tag, sha string) error {
	ref := github.CreateRef{Ref: "refs/tags/" + tag, SHA: sha}
	if _, _, err := c.githubClient.Git.CreateRef(ctx, owner, repo, ref); err != nil {
		return goerr.Wrap(err, "failed to create tag", goerr.V("tag", tag), goerr.V("sha", sha))
	}
	return nil
}

// ForceUpdateTag moves an existing tag, overwriting whatever it pointed at.
func (c *Client) ForceUpdateTag(ctx context.Context, owner, repo, tag, sha string) error {
	update := github.UpdateRef{SHA: sha, Force: github.Ptr(true)}
	if _, _, err := c.githubClient.Git.UpdateRef(ctx, owner, repo, "tags/"+tag, update); err != nil {
		return goerr.Wrap(err, "failed to force-update tag", goerr.V("tag", tag), goerr.V("sha", sha))
	}
	return nil
}

func toRelease(r *github.RepositoryRelease) *models.Release {
	return &models.Release{
		ID:              r.GetID(),
		TagName:         r.GetTagName(),
		Name:            r.GetName(),
		Body:            r.GetBody(),
		TargetCommitish: r.GetTargetCommitish(),
		HTMLURL:         r.GetHTMLURL(),
	}
}

// GetReleaseByTag returns nil when no release exists for the tag.
func (c *Client) GetReleaseByTag(ctx context.Context, owner, repo, tag string) (*models.Release, error) {
	r, resp, err := c.githubClient.Repositories.GetReleaseByTag(ctx, owner, repo, tag)
	if notFound(resp) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get release", goerr.V("tag", tag))
	}
	return toRelease(r), nil
}

func (c *Client) CreateRelease(ctx context.Context, owner, repo string, rel *models.Release) (*models.Release, error) {
	r, _, err := c.githubClient.Repositories.CreateRelease(ctx, owner, repo, &github.RepositoryRelease{
		TagName:         github.Ptr(rel.TagName),
		TargetCommitish: github.Ptr(rel.TargetCommitish),
		Name:            github.Ptr(rel.Name),
		Body:            github.Ptr(rel.Body),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create release", goerr.V("tag", rel.TagName))
	}
	return toRelease(r), nil
}

func (c *Client) UpdateRelease(ctx context.Context, owner, repo string, rel *models.Release) (*models.Release, error) {
	r, _, err := c.githubClient.Repositories.EditRelease(ctx, owner, repo, rel.ID, &github.RepositoryRelease{
		Name: github.Ptr(rel.Name),
		Body: github.Ptr(rel.Body),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update release", goerr.V("release_id", rel.ID))
	}
	return toRelease(r), nil
}

func (c *Client) ListAssets(ctx context.Context, owner, repo string, releaseID int64) ([]*models.ReleaseAsset, error) {
	var assets []*models.ReleaseAsset
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := c.githubClient.Repositories.ListReleaseAssets(ctx, owner, repo, releaseID, opts)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list release assets", goerr.V("release_id", releaseID))
		}
		for _, a := range page {
			assets = append(assets, &models.ReleaseAsset{
				ID:          a.GetID(),
				Name:        a.GetName(),
				Size:        int64(a.GetSize()),
				DownloadURL: a.GetBrowserDownloadURL(),
			})
		}
		if resp.NextPage == 0 {
			return assets, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) DeleteAsset(ctx context.Context, owner, repo string, assetID int64) error {
	if _, err := c.githubClient.Repositories.DeleteReleaseAsset(ctx, owner, repo, assetID); err != nil {
		return goerr.Wrap(err, "failed to delete release asset", goerr.V("asset_id", assetID))
	}
	return nil
}

func (c *Client) UploadAsset(ctx context.Context, owner, repo string, releaseID int64, name, path string) (*models.ReleaseAsset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open asset", goerr.V("path", path))
	}
	defer file.Close()

	a, _, err := c.githubClient.Repositories.UploadReleaseAsset(ctx, owner, repo, releaseID, &github.UploadOptions{
		Name: name,
	}, file)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upload release asset", goerr.V("name", name), goerr.V("release_id", releaseID))
	}

	return &models.ReleaseAsset{
		ID:          a.GetID(),
		Name:        a.GetName(),
		Size:        int64(a.GetSize()),
		DownloadURL: a.GetBrowserDownloadURL(),
	}, nil
}
