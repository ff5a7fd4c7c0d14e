// Package release keeps a floating tag and its release in step with the
// latest generated sitemap.
package release

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/models"
)

// GitHubClient defines the repository operations the publisher needs.
type GitHubClient interface {
	ResolveCommit(ctx context.Context, owner, repo, ref string) (string, error)
	GetTag(ctx context.Context, owner, repo, tag string) (string, bool, error)
	CreateTag(ctx context.Context, owner, repo, tag, sha string) error
	ForceUpdateTag(ctx context.Context, owner, repo, tag, sha string) error
	GetReleaseByTag(ctx context.Context, owner, repo, tag string) (*models.Release, error)
	CreateRelease(ctx context.Context, owner, repo string, rel *models.Release) (*models.Release, error)
	UpdateRelease(ctx context.Context, owner, repo string, rel *models.Release) (*models.Release, error)
	ListAssets(ctx context.Context, owner, repo string, releaseID int64) ([]*models.ReleaseAsset, error)
	DeleteAsset(ctx context.Context, owner, repo string, assetID int64) error
	UploadAsset(ctx context.Context, owner, repo string, releaseID int64, name, path string) (*models.ReleaseAsset, error)
}

type Config struct {
	Owner     string
	Repo      string
	Tag       string
	Name      string
	Body      string
	AssetName string
	Target    string
}

// DefaultBody is used when Config.Body is empty.
const DefaultBody = `Sitemap generated on {{ .GeneratedAt.Format "2006-01-02 15:04 MST" }}.

- Source: {{ .BaseURL }}
- URLs: {{ .URLCount }}
- Commit: {{ .CommitSHA }}
`

// BodyData is the template input for the release description.
type BodyData struct {
	GeneratedAt time.Time
	BaseURL     string
	URLCount    int
	CommitSHA   string
}

type Result struct {
	Release *models.Release
	Asset   *models.ReleaseAsset
}

type Publisher struct {
	client GitHubClient
	config Config
	body   *template.Template
	logger *slog.Logger
}

var fullSHA = regexp.MustCompile(`^[0-9a-f]{40}$`)

func NewPublisher(client GitHubClient, config Config, logger *slog.Logger) (*Publisher, error) {
	if config.Tag == "" {
		config.Tag = models.DefaultTag
	}
	if config.AssetName == "" {
		config.AssetName = models.DefaultAssetName
	}
	if config.Name == "" {
		config.Name = "Latest Sitemap"
	}
	if config.Target == "" {
		config.Target = "main"
	}
	text := config.Body
	if text == "" {
		text = DefaultBody
	}
	body, err := template.New("release-body").Parse(text)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid release body template")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		client: client,
		config: config,
		body:   body,
		logger: logger,
	}, nil
}

// MoveTag points the floating tag at the target commit, creating it when it
// does not exist and force-overwriting it otherwise.
func (p *Publisher) MoveTag(ctx context.Context) (string, error) {
	cfg := p.config

	sha := cfg.Target
	if !fullSHA.MatchString(sha) {
		resolved, err := p.client.ResolveCommit(ctx, cfg.Owner, cfg.Repo, cfg.Target)
		if err != nil {
			return "", err
		}
		sha = resolved
	}

	current, found, err := p.client.GetTag(ctx, cfg.Owner, cfg.Repo, cfg.Tag)
	if err != nil {
		return "", err
	}

	switch {
	case !found:
		if err := p.client.CreateTag(ctx, cfg.Owner, cfg.Repo, cfg.Tag, sha); err != nil {
			return "", err
		}
		p.logger.Info("Created tag", slog.String("tag", cfg.Tag), slog.String("sha", sha))
	case current == sha:
		p.logger.Info("Tag already at target", slog.String("tag", cfg.Tag), slog.String("sha", sha))
	default:
		if err := p.client.ForceUpdateTag(ctx, cfg.Owner, cfg.Repo, cfg.Tag, sha); err != nil {
			return "", err
		}
		p.logger.Info("Moved tag",
			slog.String("tag", cfg.Tag),
			slog.String("from", current),
			slog.String("to", sha),
		)
	}

	return sha, nil
}

// Publish creates or updates the release for the tag and replaces its
// sitemap asset with the file at assetPath.
func (p *Publisher) Publish(ctx context.Context, assetPath string, data BodyData) (*Result, error) {
	cfg := p.config

	var body bytes.Buffer
	if err := p.body.Execute(&body, data); err != nil {
		return nil, goerr.Wrap(err, "failed to render release body")
	}

	rel, err := p.client.GetReleaseByTag(ctx, cfg.Owner, cfg.Repo, cfg.Tag)
	if err != nil {
		return nil, err
	}

	if rel == nil {
		rel, err = p.client.CreateRelease(ctx, cfg.Owner, cfg.Repo, &models.Release{
			TagName:         cfg.Tag,
			TargetCommitish: data.CommitSHA,
			Name:            cfg.Name,
			Body:            body.String(),
		})
		if err != nil {
			return nil, err
		}
		p.logger.Info("Created release", slog.String("tag", cfg.Tag), slog.Int64("release_id", rel.ID))
	} else {
		rel.Name = cfg.Name
		rel.Body = body.String()
		rel, err = p.client.UpdateRelease(ctx, cfg.Owner, cfg.Repo, rel)
		if err != nil {
			return nil, err
		}
		p.logger.Info("Updated release", slog.String("tag", cfg.Tag), slog.Int64("release_id", rel.ID))
	}

	assets, err := p.client.ListAssets(ctx, cfg.Owner, cfg.Repo, rel.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range assets {
		if a.Name != cfg.AssetName {
			continue
		}
		if err := p.client.DeleteAsset(ctx, cfg.Owner, cfg.Repo, a.ID); err != nil {
			return nil, err
		}
		p.logger.Debug("Deleted previous asset", slog.String("name", a.Name), slog.Int64("asset_id", a.ID))
	}

	asset, err := p.client.UploadAsset(ctx, cfg.Owner, cfg.Repo, rel.ID, cfg.AssetName, assetPath)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Uploaded release asset",
		slog.String("name", asset.Name),
		slog.Int64("size", asset.Size),
		slog.String("url", asset.DownloadURL),
	)

	return &Result{Release: rel, Asset: asset}, nil
}
