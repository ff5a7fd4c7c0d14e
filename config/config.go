package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const envPrefix = "SITEMAPPER"

type Config struct {
	Crawler struct {
		BaseURL            string
		UserAgent          string
		MaxWorkers         int
		MaxDepth           int
		RequestTimeout     string
		MinDelay           string
		MaxDelay           string
		MaxRetries         int
		Backoff            string
		IncludePatterns    []string
		ExcludedExtensions []string
	}
	Output struct {
		Path string
	}
	Release struct {
		Owner     string
		Repo      string
		Tag       string
		Name      string
		Body      string
		AssetName string
		Target    string
	}
	GitHub struct {
		Token          string `masq:"secret"`
		APIURL         string
		UploadURL      string
		AppID          int64
		InstallationID int64
		PrivateKey     string `masq:"secret"`
	}
	Schedule struct {
		Cron string
	}
	Server struct {
		Port          int
		DispatchToken string `masq:"secret"`
	}
	Database struct {
		Driver string
		URL    string `masq:"secret"`
	}
	Logs struct {
		Dir string
	}
	Notify struct {
		SlackWebhookURL string `masq:"secret"`
		SentryDSN       string `masq:"secret"`
	}
	Mirror struct {
		Bucket string
		Object string
	}
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.baseurl", "https://www.overleaf.com/learn")
	v.SetDefault("crawler.useragent", defaultUserAgent)
	v.SetDefault("crawler.maxworkers", 5)
	v.SetDefault("crawler.maxdepth", 0)
	v.SetDefault("crawler.requesttimeout", "10s")
	v.SetDefault("crawler.mindelay", "1s")
	v.SetDefault("crawler.maxdelay", "3s")
	v.SetDefault("crawler.maxretries", 3)
	v.SetDefault("crawler.backoff", "1s")
	v.SetDefault("crawler.includepatterns", []string{"/learn/latex/"})
	v.SetDefault("crawler.excludedextensions", []string{
		".pdf", ".doc", ".docx", ".xls", ".xlsx",
		".jpg", ".jpeg", ".png", ".gif",
	})

	v.SetDefault("output.path", "sitemap.xml")

	v.SetDefault("release.tag", "latest")
	v.SetDefault("release.name", "Latest Sitemap")
	v.SetDefault("release.body", "")
	v.SetDefault("release.assetname", "sitemap.xml")
	v.SetDefault("release.target", "main")

	v.SetDefault("schedule.cron", "0 0 * * 0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "memory")
	v.SetDefault("logs.dir", "logs")
	v.SetDefault("mirror.object", "sitemap.xml")

	// Registered so environment overrides reach Unmarshal.
	for _, key := range []string{
		"release.owner", "release.repo",
		"github.token", "github.apiurl", "github.uploadurl",
		"github.privatekey",
		"server.dispatchtoken", "database.url",
		"notify.slackwebhookurl", "notify.sentrydsn", "mirror.bucket",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("github.appid", 0)
	v.SetDefault("github.installationid", 0)
}

// LoadConfig reads config.yaml (from path, or from . and ./config when path
// is empty), then applies SITEMAPPER_* and CI environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// CI-provided variables
	_ = v.BindEnv("github.token", envPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN")
	_ = v.BindEnv("github.apiurl", envPrefix+"_GITHUB_APIURL", "GITHUB_API_URL")
	_ = v.BindEnv("release.target", envPrefix+"_RELEASE_TARGET", "GITHUB_SHA")
	_ = v.BindEnv("repository", envPrefix+"_REPOSITORY", "GITHUB_REPOSITORY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, goerr.Wrap(err, "failed to decode config")
	}

	if config.Release.Owner == "" || config.Release.Repo == "" {
		applyRepository(&config, v.GetString("repository"))
	}

	return &config, nil
}

// applyRepository fills owner and repo from an "owner/repo" string.
func applyRepository(c *Config, repository string) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" {
		return
	}
	if c.Release.Owner == "" {
		c.Release.Owner = owner
	}
	if c.Release.Repo == "" {
		c.Release.Repo = repo
	}
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Crawler.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return goerr.New("crawler base URL must be an absolute http(s) URL", goerr.V("base_url", c.Crawler.BaseURL))
	}
	if c.Crawler.MaxWorkers < 1 {
		return goerr.New("crawler max workers must be at least 1", goerr.V("max_workers", c.Crawler.MaxWorkers))
	}
	if c.Crawler.MaxRetries < 0 {
		return goerr.New("crawler max retries must not be negative", goerr.V("max_retries", c.Crawler.MaxRetries))
	}
	if c.GetMinDelay() > c.GetMaxDelay() {
		return goerr.New("crawler min delay exceeds max delay",
			goerr.V("min_delay", c.Crawler.MinDelay),
			goerr.V("max_delay", c.Crawler.MaxDelay),
		)
	}
	if c.Output.Path == "" {
		return goerr.New("output path is required")
	}
	if c.Release.Tag == "" {
		return goerr.New("release tag is required")
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return goerr.Wrap(err, "invalid schedule", goerr.V("cron", c.Schedule.Cron))
	}
	return nil
}

// ValidatePublish checks the settings needed to move the tag and publish.
func (c *Config) ValidatePublish() error {
	if c.Release.Owner == "" || c.Release.Repo == "" {
		return goerr.New("release owner and repo are required (or set GITHUB_REPOSITORY)")
	}
	hasApp := c.GitHub.AppID != 0 && c.GitHub.InstallationID != 0 && c.GitHub.PrivateKey != ""
	if c.GitHub.Token == "" && !hasApp {
		return goerr.New("a GitHub token or GitHub App credentials are required")
	}
	return nil
}

func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Crawler.RequestTimeout, 10*time.Second)
}

func (c *Config) GetMinDelay() time.Duration {
	return parseDuration(c.Crawler.MinDelay, time.Second)
}

func (c *Config) GetMaxDelay() time.Duration {
	return parseDuration(c.Crawler.MaxDelay, 3*time.Second)
}

func (c *Config) GetBackoff() time.Duration {
	return parseDuration(c.Crawler.Backoff, time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return duration
}
